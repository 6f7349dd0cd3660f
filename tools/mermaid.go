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

package tools

import (
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/axon/graph"
)

type MermaidOpts struct {
	// ShowCode puts each code list's statements in its box.
	ShowCode bool `json:"showCode"`

	// CodeFill is the fill color for code lists.
	CodeFill string `json:"codeFill,omitempty"`
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) flowchart
// for the named neurons of the graph and their links.
func Mermaid(g *graph.Graph, w io.Writer, opts *MermaidOpts) error {
	if opts == nil {
		opts = &MermaidOpts{
			ShowCode: true,
			CodeFill: "#bcf2db",
		}
	}

	fmt.Fprintf(w, "graph LR\n")

	nids := make(map[string]string)
	node := func(name string, e *Entry) string {
		if nid, already := nids[name]; already {
			return nid
		}
		nid := fmt.Sprintf("n%d", len(nids)+1)
		nids[name] = nid

		label := quote(name)
		switch {
		case e == nil:
			fmt.Fprintf(w, "  %s(\"%s\")\n", nid, label)
		case e.Kind == "code":
			if opts.ShowCode && 0 < len(e.Code) {
				label += "<br/><pre>" + quote(strings.Join(e.Code, "\n")) + "</pre>"
			}
			fmt.Fprintf(w, "  %s[\"%s\"]\n", nid, label)
			if opts.CodeFill != "" {
				fmt.Fprintf(w, "  style %s fill:%s\n", nid, opts.CodeFill)
			}
		case e.Kind == "var" || e.Kind == "global":
			fmt.Fprintf(w, "  %s{{\"%s\"}}\n", nid, label)
		default:
			fmt.Fprintf(w, "  %s(\"%s\")\n", nid, label)
		}
		return nid
	}

	entries := Describe(g)
	for _, e := range entries {
		node(e.Name, e)
	}
	for _, e := range entries {
		from := nids[e.Name]
		for _, l := range e.Links {
			to := node(l.To, nil)
			fmt.Fprintf(w, "  %s -- \"%s\" --> %s\n", from, quote(l.Meaning), to)
		}
	}

	_, err := fmt.Fprintf(w, "\n")
	return err
}

func quote(s string) string {
	return strings.Replace(s, `"`, `'`, -1)
}
