package query

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/graph"
	"github.com/Comcast/axon/neuron"
)

func testDB(t *testing.T) *DBs {
	t.Helper()
	ctx := context.Background()
	dbs := NewDBs()
	t.Cleanup(func() { dbs.Close() })
	db, err := dbs.Open(ctx, "test", "", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range []string{
		`CREATE TABLE likes (who TEXT, what TEXT, how INTEGER)`,
		`INSERT INTO likes VALUES ('homer', 'beer', 3), ('homer', 'donuts', 5), ('marge', 'tea', 2)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatal(err)
		}
	}
	return dbs
}

func TestCursor(t *testing.T) {
	ctx := context.Background()
	dbs := testDB(t)
	g := graph.New()
	tm := core.NewThreadManager(1)
	tm.Values = &graph.Values{G: g}
	p := tm.NewProcessor()

	src, err := dbs.NewQuery("", `SELECT what, how FROM likes WHERE who = ? ORDER BY how`, []neuron.Neuron{g.NewText("homer")})
	if err != nil {
		t.Fatal(err)
	}
	cur, err := src.Open(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	row, ok, err := cur.Next(ctx)
	if err != nil || !ok {
		t.Fatal(ok, err)
	}
	if len(row) != 2 || row[0].(*graph.Text).Value != "beer" || row[1].(*graph.Int).Value != 3 {
		t.Fatalf("row %v", row)
	}

	forks, err := cur.Fork(2)
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range append(forks, cur) {
		row, ok, err := c.Next(ctx)
		if err != nil || !ok {
			t.Fatalf("cursor %d: %v %v", i, ok, err)
		}
		if row[0].(*graph.Text).Value != "donuts" {
			t.Fatalf("cursor %d: %v", i, row)
		}
		if _, ok, _ := c.Next(ctx); ok {
			t.Fatalf("cursor %d has too many rows", i)
		}
	}
	if err := cur.GotoEnd(); err != nil {
		t.Fatal(err)
	}
}

func TestUnknownDB(t *testing.T) {
	dbs := NewDBs()
	if _, err := dbs.NewQuery("nope", "SELECT 1", nil); err == nil {
		t.Fatal("found a database")
	}
}

func TestForQuery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dbs := testDB(t)
	g := graph.New()
	doc, err := graph.ParseDocument([]byte(`
neurons:
  What: {var: ""}
  How: {var: ""}
code:
  main:
    - cond:
        kind: forquery
        source: {query: "SELECT what, how FROM likes ORDER BY how"}
        vars: [What, How]
        branches:
          - do:
              - {do: addResult, args: [How, What]}
`))
	if err != nil {
		t.Fatal(err)
	}
	l := &graph.Loader{G: g, Queries: dbs}
	if err := l.Load(ctx, doc); err != nil {
		t.Fatal(err)
	}
	main, _ := g.Find("main")

	tm := core.NewThreadManager(2)
	tm.Values = &graph.Values{G: g}
	p := tm.NewProcessor()
	if err := p.PushCluster(main.(neuron.Cluster)); err != nil {
		t.Fatal(err)
	}
	rs, err := p.SolveBlocked(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := rs.Results()
	if len(got) != 3 || got[0].Neuron.(*graph.Text).Value != "donuts" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitThenQuery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dbs := testDB(t)
	db, _ := dbs.Get("")
	g := graph.New()
	tm := core.NewThreadManager(2)
	tm.Values = &graph.Values{G: g}

	what := &core.Variable{Name: "What"}
	g.Add(what)
	var rows atomic.Int32
	count := &core.Statement{
		Instruction: core.InstructionFunc(func(ctx context.Context, p *core.Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
			rows.Add(1)
			return nil, nil
		}),
	}
	g.Add(count)
	split := &core.Statement{
		Name:        "split",
		Instruction: core.Instructions["split"],
		Args:        []neuron.Neuron{neuron.Empty, neuron.Empty, g.NewText("1"), g.NewText("2")},
	}
	g.Add(split)
	q := &Query{DB: db, SQL: `SELECT what FROM likes ORDER BY how`}
	g.Add(q)
	fq := &core.ConditionalStatement{
		Kind:     core.ForQuery,
		Source:   q,
		LoopVars: []core.Assignable{what},
		Conditions: []*core.ConditionalExpression{{
			Statements: g.NewList(count),
		}},
	}
	g.Add(fq)

	p := tm.NewProcessor()
	if err := p.PushCluster(g.NewList(split, fq)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SolveBlocked(ctx); err != nil {
		t.Fatal(err)
	}
	if rows.Load() != 6 {
		t.Fatalf("%d rows", rows.Load())
	}
}
