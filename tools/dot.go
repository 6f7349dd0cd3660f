package tools

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Comcast/axon/graph"

	"gopkg.in/yaml.v2"
)

// Dot makes a Graphviz dot file for the named neurons of the graph
// and their links.  The optional highlight names a neuron to draw
// in red.
func Dot(g *graph.Graph, w io.Writer, highlight string) error {
	entries := Describe(g)

	fmt.Fprintf(w, "digraph G {\n")
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=LR,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "12"]
`)

	ids := make(map[string]string, len(entries))
	id := func(label string) string {
		if x, have := ids[label]; have {
			return x
		}
		x := fmt.Sprintf("n%d", len(ids))
		ids[label] = x
		return x
	}

	for _, e := range entries {
		label := htmlEscape(e.Name)
		if e.Doc != "" {
			doc := e.Doc
			if 40 < len(doc) {
				if period := strings.Index(doc, ". "); 0 < period {
					doc = doc[0 : period+1]
				}
			}
			label += "<BR/><FONT POINT-SIZE='8'>" + htmlEscape(doc) + "</FONT>"
		}

		fillcolor := "#99ddc8"
		shape := "record"
		style := "filled"
		switch e.Kind {
		case "code":
			shape = "note"
			fillcolor = "#bcf2db"
			src := strings.Join(e.Code, "\n")
			label += `<FONT POINT-SIZE="6">` +
				`<BR/>` + strings.Replace(htmlEscape(src)+"\n", "\n", `<BR ALIGN="LEFT"/>`, -1) +
				`</FONT>`
		case "var", "global":
			fillcolor = "#52aa5e"
			style += ",dashed"
		case "text", "int", "double", "list":
			fillcolor = "#2d93ad"
			bs, err := yaml.Marshal(e.Value)
			if err != nil {
				bs = []byte(err.Error())
			}
			label += `<FONT POINT-SIZE="8"><BR/>` +
				strings.Replace(htmlEscape(strings.TrimSpace(string(bs))), "\n", `<BR ALIGN="LEFT"/>`, -1) +
				`</FONT>`
		}
		color := "black"
		if e.Name == highlight {
			color = "red"
			fillcolor = "#f98b8b"
		}
		fmt.Fprintf(w, "  %s [shape=\"%s\", style=\"%s\", color=\"%s\", fillcolor=\"%s\", label=<%s> ]\n",
			id(e.Name), shape, style, color, fillcolor, label)
	}

	for _, e := range entries {
		for _, l := range e.Links {
			if _, have := ids[l.To]; !have {
				fmt.Fprintf(w, "  %s [style=\"dotted\", label=<%s> ]\n", id(l.To), htmlEscape(l.To))
			}
			fmt.Fprintf(w, "  %s -> %s [ label = <%s> ]\n", id(e.Name), id(l.To), htmlEscape(l.Meaning))
		}
	}

	_, err := fmt.Fprintf(w, "}\n")
	return err
}

// PNG generates a PNG image based on output from Dot.
//
// This function will write two files: basename.dot and basename.png.
func PNG(g *graph.Graph, basename string, highlight string) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err = Dot(g, dotfile, highlight); err != nil {
		dotfile.Close()
		return pngname, err
	}
	if err = dotfile.Close(); err != nil {
		return pngname, err
	}
	if err := exec.Command("dot", "-Tpng", "-Gstart=1", "-o", pngname, dotname).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

func htmlEscape(s string) string {
	s = strings.Replace(s, "&", "&amp;", -1)
	s = strings.Replace(s, "<", "&lt;", -1)
	s = strings.Replace(s, ">", "&gt;", -1)
	return s
}
