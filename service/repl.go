package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
)

var errQuit = errors.New("quit")

type lineReader interface {
	Readline() (string, error)
	Close() error
}

type scanLines struct {
	s *bufio.Scanner
}

func (r *scanLines) Readline() (string, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.s.Text(), nil
}

func (r *scanLines) Close() error {
	return nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newLineReader uses readline (with history and completion) on a
// terminal and plain lines otherwise.
func (s *Service) newLineReader(in io.Reader, out io.Writer) (lineReader, error) {
	if f, is := in.(*os.File); is && isTerminal(f) {
		names := func(string) []string {
			return s.G.Names()
		}
		return readline.NewEx(&readline.Config{
			Prompt:          "axon> ",
			Stdin:           f,
			Stdout:          out,
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
			AutoComplete: readline.NewPrefixCompleter(
				readline.PcItem("solve", readline.PcItemDynamic(names)),
				readline.PcItem("runs", readline.PcItemDynamic(names)),
				readline.PcItem("neurons"),
				readline.PcItem("stats"),
				readline.PcItem("stop"),
				readline.PcItem("help"),
				readline.PcItem("quit"),
			),
		})
	}
	return &scanLines{s: bufio.NewScanner(in)}, nil
}

// REPL reads commands until EOF or "quit".
func (s *Service) REPL(ctx context.Context, in io.Reader, out io.Writer) error {
	lr, err := s.newLineReader(in, out)
	if err != nil {
		return err
	}
	defer lr.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := lr.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.command(ctx, line, out); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func (s *Service) command(ctx context.Context, line string, out io.Writer) error {
	parts := strings.Fields(line)
	arg := func() (string, error) {
		if len(parts) != 2 {
			return "", fmt.Errorf("usage: %s NEURON", parts[0])
		}
		return parts[1], nil
	}

	switch parts[0] {
	case "quit", "exit":
		return errQuit
	case "help":
		fmt.Fprintln(out, "solve NEURON, runs NEURON, neurons, stats, stop, quit")
	case "solve":
		name, err := arg()
		if err != nil {
			return err
		}
		r, err := s.Solve(ctx, name)
		if r == nil {
			return err
		}
		fmt.Fprintf(out, "run %s %s\n", r.Id, r.State)
		for _, x := range r.Results {
			fmt.Fprintf(out, "  %s %g\n", x.Name, x.Weight)
		}
		return err
	case "runs":
		name, err := arg()
		if err != nil {
			return err
		}
		runs, err := s.Store.ListRuns(ctx, name)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s %s %d results %s\n", r.Started.Format("2006-01-02T15:04:05.000Z"), r.Id, len(r.Results), r.Error)
		}
	case "neurons":
		for _, name := range s.G.Names() {
			fmt.Fprintln(out, name)
		}
	case "stats":
		st := s.Stats()
		fmt.Fprintf(out, "running %d blocked %d suspended %d queued %d heads %d\n",
			st.Running, st.Blocked, st.Suspended, st.Queued, st.Heads)
	case "stop":
		s.Stop()
	default:
		return fmt.Errorf("unknown command %q", parts[0])
	}
	return nil
}
