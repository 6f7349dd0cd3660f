// Package main is the axon service daemon.
//
// It loads a graph, solves neurons on request (HTTP, websockets, the
// REPL) or on schedule, keeps the runs, and optionally publishes them
// to an MQTT broker.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Comcast/axon/config"
	"github.com/Comcast/axon/service"
	"github.com/Comcast/axon/util"
)

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.LUTC)
}

func main() {
	var (
		configFile    = flag.String("c", "", "optional config file (.yaml, .toml, or .json)")
		graphFile     = flag.String("g", "", "graph file (YAML)")
		storeFile     = flag.String("p", "", "optional BoltDB filename for runs")
		httpPort      = flag.String("h", "", "HTTP service port (overrides config)")
		websockets    = flag.Bool("w", false, "start Web sockets service (requires HTTP service)")
		repl          = flag.Bool("r", false, "REPL")
		maxConcurrent = flag.Int("n", 0, "max concurrent processors (overrides config)")
		libDir        = flag.String("i", "", "directory containing script libraries")
		verbose       = flag.Bool("v", false, "verbose")
	)

	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			log.Fatal(err)
		}
	}
	if *graphFile != "" {
		cfg.Graph = *graphFile
	}
	if *storeFile != "" {
		cfg.Store = *storeFile
	}
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}
	if *websockets {
		cfg.WebSockets = true
	}
	if 0 < *maxConcurrent {
		cfg.MaxConcurrent = *maxConcurrent
	}
	if *libDir != "" {
		cfg.Libraries = *libDir
	}
	if *verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	util.SetLogging(cfg.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := service.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			log.Printf("ERROR close: %v", err)
		}
	}()
	log.Printf("loaded %d neurons from %s", s.G.Len(), cfg.Graph)

	if cfg.MQTT != nil {
		p := service.NewMQTTPublisher(cfg.MQTT)
		if err := p.Start(ctx); err != nil {
			log.Fatal(err)
		}
		defer p.Stop()
		runs, unsubscribe := s.Subscribe()
		defer unsubscribe()
		go p.Run(ctx, runs)
	}

	if 0 < len(cfg.Schedules) {
		ss := &service.Schedules{
			S:         s,
			Schedules: cfg.Schedules,
		}
		go func() {
			if err := ss.Run(ctx); err != nil {
				log.Printf("ERROR schedules: %v", err)
			}
		}()
	}

	if *repl {
		go func() {
			if err := s.REPL(ctx, os.Stdin, os.Stdout); err != nil {
				log.Printf("REPL: %s", err)
			}
			cancel()
		}()
	}

	if cfg.HTTPPort != "" {
		if err := s.HTTPServer(ctx, cfg.HTTPPort, cfg.WebSockets); err != nil {
			log.Printf("ERROR HTTP server: %v", err)
		}
	} else {
		<-ctx.Done()
	}

	s.Stop()
	log.Printf("main terminating")
}
