package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"

	"github.com/Comcast/axon/graph"
	"github.com/Comcast/axon/interpreters"

	md "github.com/russross/blackfriday/v2"
)

// RenderGraphHTML writes a table of the named neurons.  Docs are
// Markdown.
func RenderGraphHTML(g *graph.Graph, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f(`<div class="neurons"><table>`)
	for _, e := range Describe(g) {
		name := html.EscapeString(e.Name)
		f(`<tr class="neuron"><td><span id="%s" class="neuronName">%s</span><div class="kind">%s</div></td><td>`, name, name, e.Kind)
		if e.Doc != "" {
			f(`<div class="neuronDoc doc">%s</div>`, md.Run([]byte(e.Doc)))
		}
		if e.Value != nil {
			f(`<div class="value"><code>%s</code></div>`, html.EscapeString(fmt.Sprint(e.Value)))
		}
		if 0 < len(e.Code) {
			f(`<div class="code"><pre>`)
			for _, line := range e.Code {
				f(`%s`, html.EscapeString(line))
			}
			f(`</pre></div>`)
		}
		if 0 < len(e.Links) {
			f(`<div class="links"><table>`)
			for _, l := range e.Links {
				f(`<tr><td><a href="#%s">%s</a></td><td><a href="#%s"><code>%s</code></a></td></tr>`,
					html.EscapeString(l.Meaning), html.EscapeString(l.Meaning),
					html.EscapeString(l.To), html.EscapeString(l.To))
			}
			f(`</table></div>`)
		}
		f(`</td></tr>`)
	}
	f(`</table></div>`)

	return nil
}

// RenderGraphPage writes a whole HTML page.  With includeGraph, the
// page gets the entries as JSON in thisGraph for scripts to draw.
func RenderGraphPage(g *graph.Graph, title string, out io.Writer, cssFiles []string, includeGraph bool) error {
	if cssFiles == nil {
		cssFiles = []string{"/static/graph-html.css"}
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, html.EscapeString(title))

	if includeGraph {
		js, err := json.Marshal(Describe(g))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, `
  <script src="/static/graph-html.js"></script>
  <script>
  var thisGraph = %s;
  </script>
`, js)
	}

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, html.EscapeString(title))

	if includeGraph {
		fmt.Fprintf(out, `<div id="graph"></div>`)
	}

	if err := RenderGraphHTML(g, out); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, `
  </body>
</html>
`)
	return err
}

// LoadGraph reads a YAML graph document.  Scripts are compiled but
// SQL queries aren't available.
func LoadGraph(ctx context.Context, filename string) (*graph.Graph, error) {
	g := graph.New()
	l := &graph.Loader{
		G:            g,
		Interpreters: interpreters.Standard(),
	}
	if err := l.LoadFile(ctx, filename); err != nil {
		return nil, err
	}
	return g, nil
}

func ReadAndRenderGraphPage(filename string, cssFiles []string, out io.Writer, includeGraph bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, err := LoadGraph(ctx, filename)
	if err != nil {
		return err
	}
	return RenderGraphPage(g, filename, out, cssFiles, includeGraph)
}
