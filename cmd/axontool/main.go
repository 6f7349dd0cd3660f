// Package main renders graph files.
//
//	axontool html [-g] [-css FILE] GRAPH   HTML page on stdout
//	axontool dot [-h NEURON] GRAPH         Graphviz dot on stdout
//	axontool png [-h NEURON] GRAPH BASE    BASE.dot and BASE.png
//	axontool mermaid GRAPH                 Mermaid on stdout
//	axontool describe GRAPH                JSON descriptions
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/Comcast/axon/graph"
	"github.com/Comcast/axon/tools"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: axontool COMMAND [flags] GRAPH

Commands: html, dot, png, mermaid, describe
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func load(fs *flag.FlagSet, n int) (*graph.Graph, error) {
	if fs.NArg() != n {
		usage()
		return nil, fmt.Errorf("wanted %d args but got %d", n, fs.NArg())
	}
	return tools.LoadGraph(context.Background(), fs.Arg(0))
}

func run(cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	var (
		includeGraph = fs.Bool("g", false, "include the graph as JSON")
		css          = fs.String("css", "", "optional CSS file")
		highlight    = fs.String("h", "", "neuron to highlight")
	)
	fs.Parse(args)

	switch cmd {
	case "html":
		g, err := load(fs, 1)
		if err != nil {
			return err
		}
		var cssFiles []string
		if *css != "" {
			cssFiles = []string{*css}
		}
		return tools.RenderGraphPage(g, fs.Arg(0), os.Stdout, cssFiles, *includeGraph)
	case "dot":
		g, err := load(fs, 1)
		if err != nil {
			return err
		}
		return tools.Dot(g, os.Stdout, *highlight)
	case "png":
		g, err := load(fs, 2)
		if err != nil {
			return err
		}
		pngname, err := tools.PNG(g, fs.Arg(1), *highlight)
		if err == nil {
			fmt.Println(pngname)
		}
		return err
	case "mermaid":
		g, err := load(fs, 1)
		if err != nil {
			return err
		}
		return tools.Mermaid(g, os.Stdout, nil)
	case "describe":
		g, err := load(fs, 1)
		if err != nil {
			return err
		}
		bs, err := json.MarshalIndent(tools.Describe(g), "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", bs)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
