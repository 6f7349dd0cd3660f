// Package query provides SQL row sources for ForQuery conditionals.
//
// Databases are opened through database/sql.  The pure-Go SQLite
// driver is registered as "sqlite".
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/neuron"

	_ "modernc.org/sqlite"
)

// DefaultDriver is used when a database is opened without a driver.
var DefaultDriver = "sqlite"

// ErrNoValues is returned when the processor has no
// core.ValueMapper to convert columns.
var ErrNoValues = errors.New("no value mapper")

// DBs holds named databases.
type DBs struct {
	sync.RWMutex

	// Default is the name used for queries that don't name a
	// database.
	Default string

	dbs map[string]*sql.DB
}

func NewDBs() *DBs {
	return &DBs{
		dbs: make(map[string]*sql.DB),
	}
}

// Open opens and pings a database and adds it under the name.  The
// first database becomes the Default.
func (r *DBs) Open(ctx context.Context, name, driver, dsn string) (*sql.DB, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" {
		// Every connection would get its own database.
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database %s: %w", name, err)
	}
	r.Add(name, db)
	return db, nil
}

// Add registers an open database.
func (r *DBs) Add(name string, db *sql.DB) {
	r.Lock()
	if r.Default == "" {
		r.Default = name
	}
	r.dbs[name] = db
	r.Unlock()
}

// Get returns the named database.  The empty name means Default.
func (r *DBs) Get(name string) (*sql.DB, error) {
	r.RLock()
	defer r.RUnlock()
	if name == "" {
		name = r.Default
	}
	db, have := r.dbs[name]
	if !have {
		return nil, fmt.Errorf("no database %q", name)
	}
	return db, nil
}

// Names returns the database names in order.
func (r *DBs) Names() []string {
	r.RLock()
	acc := make([]string, 0, len(r.dbs))
	for name := range r.dbs {
		acc = append(acc, name)
	}
	r.RUnlock()
	sort.Strings(acc)
	return acc
}

// Close closes every database.
func (r *DBs) Close() error {
	r.Lock()
	defer r.Unlock()
	var first error
	for name, db := range r.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = fmt.Errorf("database %s: %w", name, err)
		}
	}
	r.dbs = make(map[string]*sql.DB)
	r.Default = ""
	return first
}

// NewQuery makes a Query against the named database.
func (r *DBs) NewQuery(db, sql string, args []neuron.Neuron) (core.ForEachSource, error) {
	d, err := r.Get(db)
	if err != nil {
		return nil, err
	}
	return &Query{DB: d, SQL: sql, Args: args}, nil
}

// Query is a core.ForEachSource that runs SQL.  The arguments are
// solved and converted with the processor's core.ValueMapper.
type Query struct {
	core.Code
	DB   *sql.DB
	SQL  string
	Args []neuron.Neuron
}

func (q *Query) Open(ctx context.Context, p *core.Processor) (core.RowCursor, error) {
	vm := p.Values()
	if vm == nil {
		return nil, ErrNoValues
	}
	vs, err := p.SolveArgs(ctx, q.Args)
	if err != nil {
		return nil, err
	}
	args := make([]interface{}, len(vs))
	for i, v := range vs {
		args[i] = vm.FromNeuron(v)
	}
	rows, err := q.DB.QueryContext(ctx, q.SQL, args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &Cursor{
		rows: rows,
		cols: len(cols),
		vm:   vm,
	}, nil
}

// Cursor reads rows from a database.  After a Fork, it reads from
// memory.
type Cursor struct {
	sync.Mutex
	rows     *sql.Rows
	cols     int
	vm       core.ValueMapper
	buffered *core.SliceCursor
}

func (c *Cursor) Next(ctx context.Context) ([]neuron.Neuron, bool, error) {
	c.Lock()
	defer c.Unlock()
	if c.buffered != nil {
		return c.buffered.Next(ctx)
	}
	return c.next()
}

func (c *Cursor) next() ([]neuron.Neuron, bool, error) {
	if c.rows == nil {
		return nil, false, nil
	}
	if !c.rows.Next() {
		err := c.rows.Err()
		c.rows.Close()
		c.rows = nil
		return nil, false, err
	}
	vals := make([]interface{}, c.cols)
	ptrs := make([]interface{}, c.cols)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, false, err
	}
	row := make([]neuron.Neuron, c.cols)
	for i, v := range vals {
		n, err := c.vm.ToNeuron(v)
		if err != nil {
			return nil, false, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = n
	}
	return row, true, nil
}

func (c *Cursor) GotoEnd() error {
	c.Lock()
	defer c.Unlock()
	if c.buffered != nil {
		return c.buffered.GotoEnd()
	}
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	return err
}

// Fork reads the remaining rows into memory.  This cursor and the n
// new ones all continue from there.
func (c *Cursor) Fork(n int) ([]core.RowCursor, error) {
	c.Lock()
	defer c.Unlock()
	if c.buffered == nil {
		var rest [][]neuron.Neuron
		for {
			row, ok, err := c.next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			rest = append(rest, row)
		}
		c.buffered = core.NewSliceCursor(rest)
	}
	return c.buffered.Fork(n)
}
