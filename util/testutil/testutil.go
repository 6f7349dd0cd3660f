/* Copyright 2018 Comcast Cable Communications Management, LLC
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

// Package testutil has helpers for tests that drive graphs.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/graph"
	"github.com/Comcast/axon/neuron"
)

// JS renders its argument as JSON or as a string indicating an error.
func JS(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		log.Printf("warning: testutil.JS error %s for %#v", err, x)
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// Graph loads a YAML graph document with the default interpreters.
func Graph(t *testing.T, src string) *graph.Graph {
	t.Helper()
	doc, err := graph.ParseDocument([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	g := graph.New()
	l := &graph.Loader{G: g}
	if err := l.Load(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	return g
}

// Solve runs the named neuron (as code if it's a cluster) and
// returns the results.
func Solve(t *testing.T, g *graph.Graph, name string) []core.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := g.Find(name)
	if err != nil {
		t.Fatal(err)
	}
	tm := core.NewThreadManager(4)
	tm.Values = &graph.Values{G: g}
	p := tm.NewProcessor()
	if c, is := n.(neuron.Cluster); is {
		if err := p.PushCluster(c); err != nil {
			t.Fatal(err)
		}
	} else {
		p.Push(n)
	}
	rs, err := p.SolveBlocked(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return rs.Results()
}

// Labels gives the graph's labels for the results' neurons.
func Labels(g *graph.Graph, rs []core.Result) []string {
	acc := make([]string, len(rs))
	for i, r := range rs {
		acc[i] = g.Label(r.Neuron)
	}
	return acc
}
