package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Comcast/axon/graph"
	"github.com/Comcast/axon/storage"
)

// Handler returns the HTTP API:
//
//	/solve?neuron=NAME  solve and return the run
//	/runs?neuron=NAME   the stored runs for the neuron
//	/run?neuron=NAME&id=ID
//	/neurons            the names in the graph
//	/stats              processor counts
func (s *Service) Handler(ctx context.Context) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/solve", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("neuron")
		run, err := s.Solve(r.Context(), name)
		if run == nil {
			httpError(w, err)
			return
		}
		reply(w, run)
	})

	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.Store.ListRuns(r.Context(), r.URL.Query().Get("neuron"))
		if err != nil {
			httpError(w, err)
			return
		}
		reply(w, runs)
	})

	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		run, err := s.Store.GetRun(r.Context(), q.Get("neuron"), q.Get("id"))
		if err != nil {
			httpError(w, err)
			return
		}
		reply(w, run)
	})

	mux.HandleFunc("/neurons", func(w http.ResponseWriter, r *http.Request) {
		reply(w, s.G.Names())
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		reply(w, s.Stats())
	})

	return mux
}

// Stats are processor counts.
type Stats struct {
	Running   int `json:"running"`
	Blocked   int `json:"blocked"`
	Suspended int `json:"suspended"`
	Queued    int `json:"queued"`
	Heads     int `json:"heads"`
}

func (s *Service) Stats() *Stats {
	var st Stats
	st.Running, st.Blocked, st.Suspended, st.Queued = s.TM.Counts()
	st.Heads = s.TM.ActiveHeads()
	return &st
}

// HTTPServer serves the Handler (and websockets if requested) until
// the context is done.
func (s *Service) HTTPServer(ctx context.Context, port string, websockets bool) error {
	mux := s.Handler(ctx)
	if websockets {
		s.WebSockets(ctx, mux)
	}
	server := &http.Server{
		Addr:    port,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	log.Printf("Service.HTTPServer listening on %s", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func reply(w http.ResponseWriter, x interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(x); err != nil {
		log.Printf("warning: reply encode error %v", err)
	}
}

func httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, graph.ErrNotFound) || errors.Is(err, storage.NotFound) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
