package goja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/neuron"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"golang.org/x/net/publicsuffix"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Exec if the execution is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)

	// ErrNoValues is returned when the processor has no
	// core.ValueMapper.
	ErrNoValues = errors.New("no value mapper")
)

// init adds an Interpreter as one of the DefaultInterpreters
func init() {
	core.DefaultInterpreters["goja"] = NewInterpreter()
}

// Interpreter implements core.Interpreter using Goja, which is a Go
// implementation of ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
type Interpreter struct {

	// Testing is used to expose or hide some runtime
	// capabilities.
	Testing bool

	// InlineRequires makes Compile replace top-level require()
	// calls with the required libraries.
	InlineRequires bool

	// LibraryProvider resolves library names.  If nil,
	// DefaultLibraryProvider is used.
	LibraryProvider func(ctx context.Context, i *Interpreter, libraryName string) (string, error)
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// ProvideLibrary resolves the library name into a library.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	if i.LibraryProvider != nil {
		return i.LibraryProvider(ctx, i, name)
	}
	return DefaultLibraryProvider(ctx, i, name)
}

var DefaultLibraryProvider = MakeFileLibraryProvider(".")

// LibraryClient fetches "http" and "https" libraries.  Cookies are
// kept per registrable domain.
var LibraryClient = newLibraryClient()

func newLibraryClient() *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		log.Printf("warning: library client without cookies: %v", err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
	}
}

// MakeFileLibraryProvider makes a provider for names that are URLs
// with protocols of "file", "http", and "https".  File names are
// relative to dir.
func MakeFileLibraryProvider(dir string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if 2 != len(parts) {
			return "", fmt.Errorf("bad link '%s'", name)
		}
		switch parts[0] {
		case "file":
			filename := filepath.Clean(parts[1])
			if strings.HasPrefix(filename, "..") || filepath.IsAbs(filename) {
				return "", fmt.Errorf("library '%s' is outside %s", name, dir)
			}
			bs, err := os.ReadFile(filepath.Join(dir, filename))
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			req, err := http.NewRequestWithContext(ctx, "GET", name, nil)
			if err != nil {
				return "", err
			}
			resp, err := LibraryClient.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("library fetch status %s", resp.Status)
			}
			bs, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", err
			}
			return string(bs), nil
		default:
			return "", fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

func MakeMapLibraryProvider(srcs map[string]string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// AsSource accepts either a string or a map with "code" and
// (optionally) "requires" properties.
//
// The YAML parser at github.com/jsccast/yaml returns
// map[string]interface{}, but map[interface{}]interface{} works too.
func AsSource(src interface{}) (code string, libs []string, err error) {
	switch vv := src.(type) {
	case string:
		return vv, nil, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			s, is := k.(string)
			if !is {
				return "", nil, fmt.Errorf("bad src key (%T)", k)
			}
			m[s] = v
		}
		return parseSource(m)
	case map[string]interface{}:
		return parseSource(vv)
	}
	return "", nil, fmt.Errorf("bad Goja source (%T)", src)
}

func parseSource(m map[string]interface{}) (code string, libs []string, err error) {
	code, is := m["code"].(string)
	if !is {
		return "", nil, errors.New("bad Goja code")
	}
	switch vv := m["requires"].(type) {
	case nil:
	case string:
		libs = []string{vv}
	case []string:
		libs = vv
	case []interface{}:
		for _, x := range vv {
			s, is := x.(string)
			if !is {
				return "", nil, errors.New("bad library")
			}
			libs = append(libs, s)
		}
	default:
		return "", nil, fmt.Errorf("bad requires (%T)", vv)
	}
	return code, libs, nil
}

// Compile calls goja.Compile on the source after prepending the
// required libraries.
//
// This method can block if the interpreter's library provider
// blocks.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (interface{}, error) {
	code, libs, err := AsSource(src)
	if err != nil {
		return nil, err
	}

	if i.InlineRequires {
		provide := func(ctx context.Context, name string) (string, error) {
			return i.ProvideLibrary(ctx, name)
		}
		if code, err = InlineRequires(ctx, code, provide); err != nil {
			return nil, err
		}
	}

	code = wrapSrc(code)

	var libsSrc string
	for _, lib := range libs {
		libSrc, err := i.ProvideLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		libsSrc += libSrc + "\n"
	}

	obj, err := goja.Compile("", libsSrc+code, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, code)
	}

	return obj, nil
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func export(x interface{}) interface{} {
	if v, is := x.(goja.Value); is {
		return v.Export()
	}
	return x
}

// Exec implements the core.Interpreter method of the same name.
//
// The following properties are available from the runtime at _.
//
//	args: the solved arguments as Go values.
//	push(x), pop(), peek(): the processor's neuron stack.
//	set(i, x): store x in the i-th (unsolved) argument, which must
//	  be a variable.
//	result(x, w): add x to the results with weight w.
//	weight(w): increase the processor's weight.
//
// Some useful utilities:
//
//	gensym(): generate a random string.
//	cronNext(expr): the next time for the cron expression.
//	esc(s): URL query-escape the given string.
//	log(x): log x as JSON.
//
// The Testing flag must be set to see sleep(ms).
//
// The script's return value (or each element if it's an array)
// becomes the instruction's results.
func (i *Interpreter) Exec(ctx context.Context, p *core.Processor, args []neuron.Neuron, src interface{}, compiled interface{}) ([]neuron.Neuron, error) {
	vm := p.Values()
	if vm == nil {
		return nil, ErrNoValues
	}

	if compiled == nil {
		var err error
		if compiled, err = i.Compile(ctx, src); err != nil {
			return nil, err
		}
	}
	prog, is := compiled.(*goja.Program)
	if !is {
		return nil, fmt.Errorf("Goja bad compilation: %T %#v", compiled, compiled)
	}

	solved, err := p.SolveArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	xs := make([]interface{}, len(solved))
	for j, n := range solved {
		xs[j] = vm.FromNeuron(n)
	}

	o := goja.New()

	toNeuron := func(x interface{}) neuron.Neuron {
		n, err := vm.ToNeuron(export(x))
		if err != nil {
			protest(o, err.Error())
		}
		return n
	}

	env := map[string]interface{}{
		"args":   xs,
		"serial": p.Serial(),
	}
	o.Set("_", env)

	if i.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}

	env["push"] = func(x interface{}) {
		p.Push(toNeuron(x))
	}

	env["pop"] = func() interface{} {
		n := p.Pop()
		if n == nil {
			return nil
		}
		return vm.FromNeuron(n)
	}

	env["peek"] = func() interface{} {
		return vm.FromNeuron(p.Peek())
	}

	env["set"] = func(at int, x interface{}) {
		if at < 0 || len(args) <= at {
			protest(o, fmt.Sprintf("no argument %d", at))
		}
		v, is := args[at].(core.Assignable)
		if !is {
			protest(o, fmt.Sprintf("argument %d isn't a variable", at))
		}
		var ns []neuron.Neuron
		if ys, is := export(x).([]interface{}); is {
			for _, y := range ys {
				ns = append(ns, toNeuron(y))
			}
		} else {
			ns = []neuron.Neuron{toNeuron(x)}
		}
		if err := v.StoreValue(p, ns); err != nil {
			protest(o, err.Error())
		}
	}

	env["result"] = func(x interface{}, w float64) {
		p.AddResult(toNeuron(x), w)
	}

	env["weight"] = func(w float64) {
		p.IncreaseWeight(w)
	}

	env["gensym"] = func() interface{} {
		return uuid.NewString()
	}

	env["cronNext"] = func(x interface{}) interface{} {
		cronExpr, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		c, err := cronexpr.Parse(cronExpr)
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	env["esc"] = func(x interface{}) interface{} {
		s, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		return url.QueryEscape(s)
	}

	env["log"] = func(x interface{}) interface{} {
		x = export(x)
		js, err := json.Marshal(&x)
		if err != nil {
			log.Println("goja.log (can't marshal: " + err.Error() + ")")
		} else {
			log.Println(string(js))
		}
		return x
	}

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If Exec calls cancel() after RunProgram returns,
		// then the interrupt is harmless.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(prog)
	cancel()

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, Interrupted
		}
		return nil, err
	}

	switch x := v.Export().(type) {
	case nil:
		return nil, nil
	case []interface{}:
		acc := make([]neuron.Neuron, 0, len(x))
		for _, y := range x {
			n, err := vm.ToNeuron(y)
			if err != nil {
				return nil, err
			}
			acc = append(acc, n)
		}
		return acc, nil
	default:
		n, err := vm.ToNeuron(x)
		if err != nil {
			return nil, err
		}
		return []neuron.Neuron{n}, nil
	}
}
