package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"salesbot_backend/platform/fsstore"
)

const fileStateName = "conversations.json"

// FileBackend keeps every record in memory and persists a full snapshot via
// atomic rename on each write. One writer at a time touches the snapshot;
// readers see an immutable map that is replaced on commit.
type FileBackend struct {
	path string
	now  func() time.Time

	writeMu sync.Mutex
	mu      sync.RWMutex
	records map[string]*Conversation
}

// OpenFileBackend loads dir/conversations.json, creating the directory if needed.
func OpenFileBackend(dir string) (*FileBackend, error) {
	if err := fsstore.EnsureDir(dir); err != nil {
		return nil, err
	}
	b := &FileBackend{
		path:    filepath.Join(dir, fileStateName),
		now:     func() time.Time { return time.Now().UTC() },
		records: map[string]*Conversation{},
	}

	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read conversation snapshot: %w", err)
	}
	if len(raw) == 0 {
		return b, nil
	}

	var list []*Conversation
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode conversation snapshot: %w", err)
	}
	for _, conv := range list {
		if conv == nil || !conv.Key.Valid() {
			continue
		}
		if conv.Facts == nil {
			conv.Facts = map[string]string{}
		}
		b.records[conv.Key.String()] = conv
	}
	return b, nil
}

func (b *FileBackend) Load(_ context.Context, key Key) (*Conversation, error) {
	b.mu.RLock()
	conv, ok := b.records[key.String()]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

func (b *FileBackend) Update(ctx context.Context, key Key, mutate func(c *Conversation) error) (*Conversation, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	current, ok := b.records[key.String()]
	b.mu.RUnlock()

	var working *Conversation
	if ok {
		working = current.Clone()
	} else {
		working = New(key, b.now())
	}
	if err := mutate(working); err != nil {
		return working, err
	}

	next := make(map[string]*Conversation, len(b.records)+1)
	b.mu.RLock()
	for k, v := range b.records {
		next[k] = v
	}
	b.mu.RUnlock()
	next[key.String()] = working

	if err := b.persist(next); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.records = next
	b.mu.Unlock()
	return working.Clone(), nil
}

func (b *FileBackend) List(_ context.Context, channel string) ([]*Conversation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Conversation, 0, len(b.records))
	for _, conv := range b.records {
		if channel != "" && conv.Key.Channel != channel {
			continue
		}
		out = append(out, conv.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

func (b *FileBackend) persist(records map[string]*Conversation) error {
	list := make([]*Conversation, 0, len(records))
	for _, conv := range records {
		list = append(list, conv)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key.String() < list[j].Key.String() })

	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation snapshot: %w", err)
	}
	return fsstore.WriteAtomic(b.path, raw)
}
