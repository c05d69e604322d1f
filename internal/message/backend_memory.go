package message

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBackend keeps records in process. It backs tests and the "memory" storage driver.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[Key]CapturedMessage
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: map[Key]CapturedMessage{}}
}

func (b *MemoryBackend) Update(ctx context.Context, key Key, fn UpdateFunc) (Change, error) {
	if err := ctx.Err(); err != nil {
		return Change{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var before *CapturedMessage
	if current, ok := b.records[key]; ok {
		snapshot := current.Clone()
		before = &snapshot
	}
	next, changed := fn(before)
	if changed {
		b.records[key] = next.Clone()
	}
	return Change{Before: before, After: next, Changed: changed}, nil
}

func (b *MemoryBackend) Get(ctx context.Context, key Key) (CapturedMessage, error) {
	if err := ctx.Err(); err != nil {
		return CapturedMessage{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	record, ok := b.records[key]
	if !ok {
		return CapturedMessage{}, ErrNotFound
	}
	return record.Clone(), nil
}

func (b *MemoryBackend) List(ctx context.Context, conversationID string, limit int) ([]CapturedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	items := make([]CapturedMessage, 0)
	for key, record := range b.records {
		if key.ConversationID == conversationID {
			items = append(items, record.Clone())
		}
	}
	b.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		ti, tj := sortTime(items[i]), sortTime(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return items[i].MessageID > items[j].MessageID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (b *MemoryBackend) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for key, record := range b.records {
		if record.LastModifiedAt.Before(before) {
			delete(b.records, key)
			n++
		}
	}
	return n, nil
}
