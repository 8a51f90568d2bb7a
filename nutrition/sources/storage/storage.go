package storage

import (
	"context"
	"errors"
)

// ProductState loads the raw local product reference catalog (JSON).
type ProductState interface {
	Load(ctx context.Context) ([]byte, error)
}

// TestProductState is a simple in-memory implementation for testing
type TestProductState struct {
	data []byte
	err  error
}

func NewTestProductState(data []byte) *TestProductState {
	return &TestProductState{data: data}
}

func NewTestProductStateWithError() *TestProductState {
	return &TestProductState{err: errors.New("not found")}
}

func (t *TestProductState) Load(ctx context.Context) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}
