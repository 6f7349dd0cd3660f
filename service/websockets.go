package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Request is a websocket message from a client.  Exactly one field
// should be set.
type Request struct {
	// Solve names a neuron to solve.  The run is sent when it's
	// done.
	Solve string `json:"solve,omitempty"`

	// Runs names a neuron whose stored runs are wanted.
	Runs string `json:"runs,omitempty"`

	// Stop asks all processors to stop.
	Stop bool `json:"stop,omitempty"`
}

// Response is a websocket message to a client.
type Response struct {
	Run     interface{} `json:"run,omitempty"`
	Runs    interface{} `json:"runs,omitempty"`
	Error   string      `json:"error,omitempty"`
	Stopped bool        `json:"stopped,omitempty"`
}

// WebSockets adds /ws/api to the mux.  Every connection gets every
// finished run (a firehose) in addition to replies to its own
// requests.
func (s *Service) WebSockets(ctx context.Context, mux *http.ServeMux) {
	var upgrader = websocket.Upgrader{}

	api := func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error", err)
			return
		}
		defer c.Close()

		// Only one writer at a time.
		var wmu sync.Mutex
		send := func(x interface{}) {
			js, err := json.Marshal(x)
			if err != nil {
				log.Printf("websocket Marshal error %v on %#v", err, x)
				return
			}
			wmu.Lock()
			err = c.WriteMessage(websocket.TextMessage, js)
			wmu.Unlock()
			if err != nil {
				log.Println("websocket write:", err)
			}
		}

		firehose, unsubscribe := s.Subscribe()
		defer unsubscribe()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case run, ok := <-firehose:
					if !ok {
						return
					}
					send(&Response{Run: run})
				}
			}
		}()

		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Println("websocket read error", err)
				}
				break
			}

			var req Request
			if err := json.Unmarshal(message, &req); err != nil {
				send(&Response{Error: fmt.Sprintf("can't parse: %v", err)})
				continue
			}
			s.handle(ctx, &req, send)
		}
	}

	mux.HandleFunc("/ws/api", api)
}

// handle does what the request asks.  A solve runs in the
// background; its run goes out through the firehose.
func (s *Service) handle(ctx context.Context, req *Request, send func(interface{})) {
	switch {
	case req.Solve != "":
		go func() {
			if run, err := s.Solve(ctx, req.Solve); run == nil {
				send(&Response{Error: err.Error()})
			}
		}()
	case req.Runs != "":
		runs, err := s.Store.ListRuns(ctx, req.Runs)
		if err != nil {
			send(&Response{Error: err.Error()})
			return
		}
		send(&Response{Runs: runs})
	case req.Stop:
		s.Stop()
		send(&Response{Stopped: true})
	default:
		send(&Response{Error: "empty request"})
	}
}
