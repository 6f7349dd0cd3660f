package goja

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// InlineRequires generates new source code that replaces the
// require("name") statements at the top of src with the code those
// statements reference.
//
// Defining a require() function in the runtime would need eval at
// runtime, which would prevent precompilation.  Inlining keeps
// script instructions compilable when a graph is loaded.
//
// Only the leading lines that start with "require(" are considered,
// so the rest of the source can use top-level return.
func InlineRequires(ctx context.Context, src string, provider func(context.Context, string) (string, error)) (string, error) {
	var n int
	for n < len(src) {
		end := strings.IndexByte(src[n:], '\n')
		if end < 0 {
			end = len(src) - n
		} else {
			end++
		}
		line := strings.TrimSpace(src[n : n+end])
		if line != "" && !strings.HasPrefix(line, "require(") {
			break
		}
		n += end
	}
	if n == 0 {
		return src, nil
	}

	prologue, rest := src[:n], src[n:]
	prog, err := parser.ParseFile(nil, "", prologue, 0)
	if err != nil {
		return "", err
	}

	var acc strings.Builder
	for _, s := range prog.Body {
		exps, is := s.(*ast.ExpressionStatement)
		if !is {
			return "", fmt.Errorf("bad require statement: %T", s)
		}
		call, is := exps.Expression.(*ast.CallExpression)
		if !is {
			return "", fmt.Errorf("bad require statement: %T", exps.Expression)
		}
		id, is := call.Callee.(*ast.Identifier)
		if !is || id.Name != "require" {
			return "", fmt.Errorf("bad require statement")
		}
		if len(call.ArgumentList) != 1 {
			return "", fmt.Errorf("bad require args: %d", len(call.ArgumentList))
		}
		lit, is := call.ArgumentList[0].(*ast.StringLiteral)
		if !is {
			return "", fmt.Errorf("bad require arg: %T", call.ArgumentList[0])
		}
		lib, err := provider(ctx, string(lit.Value))
		if err != nil {
			return "", err
		}
		acc.WriteString(lib)
		acc.WriteString("\n")
	}
	acc.WriteString(rest)
	return acc.String(), nil
}
