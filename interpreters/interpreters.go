// Package interpreters gathers the script interpreters.
package interpreters

import (
	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/interpreters/goja"
	"github.com/Comcast/axon/interpreters/noop"
)

// Standard returns the usual interpreters: "goja" (and its alias
// "ecmascript"), "goja-libs" (with inlined requires), and "noop".
func Standard() core.InterpretersMap {
	is := core.NewInterpretersMap()

	g := goja.NewInterpreter()
	is["goja"] = g
	is["ecmascript"] = g

	libs := goja.NewInterpreter()
	libs.InlineRequires = true
	is["goja-libs"] = libs

	is["noop"] = noop.NewInterpreter()

	return is
}

// SetLibraryDir makes the goja interpreters in the map look for
// "file://" libraries in dir.
func SetLibraryDir(is core.InterpretersMap, dir string) {
	provider := goja.MakeFileLibraryProvider(dir)
	for _, i := range is {
		if g, is := i.(*goja.Interpreter); is {
			g.LibraryProvider = provider
		}
	}
}
