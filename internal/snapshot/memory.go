package snapshot

import (
	"context"
	"sync"
)

// MemoryBackend keeps the encoded document so every Load hands out a fresh
// copy.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(_ context.Context) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	return Decode(b.data)
}

func (b *MemoryBackend) Save(_ context.Context, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
	return nil
}

// SetRaw replaces the stored document verbatim.
func (b *MemoryBackend) SetRaw(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
}

func (b *MemoryBackend) Close() error { return nil }
