/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package service runs solves on behalf of clients.
//
// A Service solves named neurons of a graph, records each run, and
// tells subscribers (websockets, MQTT) about finished runs.
// Schedules solve neurons periodically.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Comcast/axon/config"
	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/graph"
	"github.com/Comcast/axon/interpreters"
	"github.com/Comcast/axon/neuron"
	"github.com/Comcast/axon/query"
	"github.com/Comcast/axon/storage"
	"github.com/Comcast/axon/storage/bolt"
	"github.com/Comcast/axon/util"

	"github.com/google/uuid"
)

// ErrStopped is the error of a run that was stopped.
var ErrStopped = errors.New("stopped")

type Service struct {
	G     *graph.Graph
	TM    *core.ThreadManager
	Store storage.Storage
	DBs   *query.DBs

	// SubBuffer is the channel capacity for new subscriptions.
	SubBuffer int

	sync.Mutex
	subs    map[int]chan *storage.Run
	nextSub int
}

// NewService makes a Service.  A nil store means runs aren't kept.
func NewService(g *graph.Graph, tm *core.ThreadManager, store storage.Storage) *Service {
	if store == nil {
		store = &storage.NoopStorage{}
	}
	if tm.Values == nil {
		tm.Values = &graph.Values{G: g}
	}
	return &Service{
		G:         g,
		TM:        tm,
		Store:     store,
		SubBuffer: 32,
		subs:      make(map[int]chan *storage.Run),
	}
}

// Build assembles a Service from a configuration: databases, the
// graph, the thread manager, and the store.  The store is opened.
func Build(ctx context.Context, cfg *config.Config) (*Service, error) {
	dbs := query.NewDBs()
	for _, name := range sortedNames(cfg.SQL) {
		db := cfg.SQL[name]
		if _, err := dbs.Open(ctx, name, db.Driver, db.DSN); err != nil {
			dbs.Close()
			return nil, err
		}
	}

	g := graph.New()
	if cfg.Graph != "" {
		is := interpreters.Standard()
		interpreters.SetLibraryDir(is, cfg.Libraries)
		l := &graph.Loader{
			G:            g,
			Interpreters: is,
			Queries:      dbs,
		}
		if err := l.LoadFile(ctx, cfg.Graph); err != nil {
			dbs.Close()
			return nil, fmt.Errorf("graph %s: %w", cfg.Graph, err)
		}
	}

	tm := core.NewThreadManager(cfg.MaxConcurrent)
	tm.Verbose = cfg.Verbose
	if 0 < cfg.ProcessorPool {
		tm.Factory = core.NewProcessorFactory(cfg.ProcessorPool)
	}

	var store storage.Storage = &storage.NoopStorage{}
	if cfg.Store != "" {
		bs, err := bolt.NewStorage(cfg.Store)
		if err != nil {
			dbs.Close()
			return nil, err
		}
		bs.Debug = cfg.Verbose
		store = bs
	}
	if err := store.Open(ctx); err != nil {
		dbs.Close()
		return nil, err
	}

	s := NewService(g, tm, store)
	s.DBs = dbs
	return s, nil
}

// Close closes the store and the databases.
func (s *Service) Close(ctx context.Context) error {
	err := s.Store.Close(ctx)
	if s.DBs != nil {
		if e := s.DBs.Close(); err == nil {
			err = e
		}
	}
	return err
}

// Solve solves the named neuron and waits for all of its splits.
// A cluster is run as code; anything else is solved through its
// links.  The run is stored and published even if it failed.  A
// stopped run keeps the results it had and returns ErrStopped.
func (s *Service) Solve(ctx context.Context, name string) (*storage.Run, error) {
	n, err := s.G.Find(name)
	if err != nil {
		return nil, err
	}

	r := &storage.Run{
		Id:      uuid.NewString(),
		Neuron:  name,
		Started: time.Now().UTC(),
	}
	util.Logf("Service.Solve %s %s", name, r.Id)

	p := s.TM.NewProcessor()
	if c, is := n.(neuron.Cluster); is {
		err = p.PushCluster(c)
	} else {
		p.Push(n)
	}

	var rs *core.SplitResultsDict
	if err == nil {
		rs, err = p.SolveBlocked(ctx)
	}
	r.Finished = time.Now().UTC()
	r.State = p.State.String()

	switch {
	case errors.Is(err, core.ErrProcessorStopped):
		err = ErrStopped
		r.Error = err.Error()
	case err != nil:
		r.Error = err.Error()
	}
	if rs != nil {
		for _, x := range rs.Results() {
			r.Results = append(r.Results, storage.Result{
				Name:   s.G.Label(x.Neuron),
				Weight: x.Weight,
			})
		}
	}
	if err == nil || err == ErrStopped {
		// The whole tree has been retired.
		s.TM.Factory.Recycle(p)
	}

	if e := s.Store.WriteRun(ctx, r); e != nil {
		log.Printf("ERROR Service.Solve WriteRun %s: %v", r.Id, e)
	}
	s.publish(r)

	return r, err
}

// Stop asks every processor to stop.
func (s *Service) Stop() {
	s.TM.StopAll()
}

// Subscribe returns a channel that gets every finished run.  Call
// the returned function to unsubscribe.
func (s *Service) Subscribe() (<-chan *storage.Run, func()) {
	c := make(chan *storage.Run, s.SubBuffer)
	s.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = c
	s.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			s.Lock()
			delete(s.subs, id)
			s.Unlock()
			close(c)
		})
	}
}

func (s *Service) publish(r *storage.Run) {
	s.Lock()
	defer s.Unlock()
	for id, c := range s.subs {
		select {
		case c <- r:
		default:
			log.Printf("warning: subscriber %d blocked", id)
		}
	}
}
