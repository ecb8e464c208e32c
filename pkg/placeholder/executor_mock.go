package placeholder

import (
	"context"
	"errors"
)

// MockExecutor is a mock implementation of Executor for testing
type MockExecutor struct {
	Values map[string]string
}

func (m *MockExecutor) GitConfig(ctx context.Context, dir string, key string) (string, error) {
	if v, ok := m.Values[key]; ok {
		return v, nil
	}
	return "", errors.New("key not set")
}
