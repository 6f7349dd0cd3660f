package storage

import "context"

// NoopStorage forgets everything.
type NoopStorage struct {
}

func (s *NoopStorage) Open(ctx context.Context) error {
	return nil
}

func (s *NoopStorage) Close(ctx context.Context) error {
	return nil
}

func (s *NoopStorage) WriteRun(ctx context.Context, r *Run) error {
	return nil
}

func (s *NoopStorage) GetRun(ctx context.Context, neuron, id string) (*Run, error) {
	return nil, NotFound
}

func (s *NoopStorage) ListRuns(ctx context.Context, neuron string) ([]*Run, error) {
	return nil, nil
}

func (s *NoopStorage) RemRun(ctx context.Context, neuron, id string) error {
	return nil
}
