package store

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// MemoryMedium is an in-process medium used by tests and as the degraded
// backend when durable storage is disabled entirely.
type MemoryMedium struct {
	mu       sync.RWMutex
	values   map[string][]byte
	disabled bool
}

// NewMemory creates an empty in-memory medium.
func NewMemory() *MemoryMedium {
	return &MemoryMedium{values: make(map[string][]byte)}
}

// SetDisabled toggles simulated storage failure: while disabled, every
// operation behaves like a medium that rejects all access.
func (m *MemoryMedium) SetDisabled(disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = disabled
}

func (m *MemoryMedium) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disabled {
		return nil, false, eris.New("memory: medium disabled")
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryMedium) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return eris.New("memory: medium disabled")
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

func (m *MemoryMedium) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return eris.New("memory: medium disabled")
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryMedium) Probe(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disabled {
		return eris.New("memory: medium disabled")
	}
	return nil
}

func (m *MemoryMedium) Usage(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disabled {
		return 0, eris.New("memory: medium disabled")
	}
	var used int64
	for _, v := range m.values {
		used += int64(len(v))
	}
	return used, nil
}

func (m *MemoryMedium) Close() error {
	return nil
}
