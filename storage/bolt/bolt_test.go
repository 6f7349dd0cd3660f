package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Comcast/axon/storage"
)

func TestImpl(t *testing.T) {
	var _ storage.Storage = &Storage{}
	var _ storage.Storage = &storage.NoopStorage{}
}

func TestBasics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewStorage(filepath.Join(t.TempDir(), "storage.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteRun(ctx, &storage.Run{}); err != ErrNotOpen {
		t.Fatalf("got %v", err)
	}
	if err := s.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := s.Close(ctx); err != nil {
			t.Fatal(err)
		}
	}()

	then := time.Date(2019, 5, 1, 12, 0, 0, 123456789, time.UTC)
	runs := []*storage.Run{
		{
			Id:       "b",
			Neuron:   "homer",
			Started:  then,
			Finished: then.Add(time.Second),
			State:    "normal",
			Results: []storage.Result{
				{Name: "beer", Weight: 2},
				{Name: "donuts", Weight: 1},
			},
		},
		{
			Id:      "a",
			Neuron:  "homer",
			Started: then.Add(time.Minute),
			Error:   "processor stopped",
		},
	}
	for _, r := range runs {
		if err := s.WriteRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	r, err := s.GetRun(ctx, "homer", "b")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Started.Equal(then) || len(r.Results) != 2 || r.Results[0].Name != "beer" {
		t.Fatalf("got %#v", r)
	}

	rs, err := s.ListRuns(ctx, "homer")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 2 || rs[0].Id != "b" || rs[1].Id != "a" {
		t.Fatalf("got %v", rs)
	}

	if rs, err = s.ListRuns(ctx, "marge"); err != nil || len(rs) != 0 {
		t.Fatalf("got %v %v", rs, err)
	}

	if err := s.RemRun(ctx, "homer", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRun(ctx, "homer", "b"); !errors.Is(err, storage.NotFound) {
		t.Fatalf("got %v", err)
	}
	if _, err := s.GetRun(ctx, "bart", "b"); !errors.Is(err, storage.NotFound) {
		t.Fatalf("got %v", err)
	}
}
