package mocks

import (
	"context"
	"time"
)

// MockCacher is a mock implementation of the Cacher interface.
type MockCacher struct {
	GetFunc func(ctx context.Context, key string, dest any) error
	SetFunc func(ctx context.Context, key string, value any, ttl time.Duration) error
}

func (m *MockCacher) Get(ctx context.Context, key string, dest any) error {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key, dest)
	}
	return notImplemented("Get")
}

func (m *MockCacher) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return nil
}
