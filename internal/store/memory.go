package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryStore keeps documents in process. It backs local mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	subsMu sync.Mutex
	subs   map[int]*memorySub
	nextID int
}

type memorySub struct {
	prefix string
	ch     chan Change
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		subs: make(map[int]*memorySub),
	}
}

func (m *MemoryStore) Get(_ context.Context, path string, dest any) error {
	m.mu.RLock()
	raw, ok := m.docs[path]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return errors.Wrapf(json.Unmarshal(raw, dest), "decode %s", path)
}

func (m *MemoryStore) Set(_ context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	m.mu.Lock()
	m.docs[path] = raw
	m.mu.Unlock()
	m.publish(Change{Path: path, Op: OpSet, At: time.Now().UTC()})
	return nil
}

func (m *MemoryStore) Update(_ context.Context, path string, partial map[string]any) error {
	m.mu.Lock()
	raw, ok := m.docs[path]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	merged, err := mergeJSON(raw, partial)
	if err != nil {
		m.mu.Unlock()
		return errors.Wrapf(err, "merge %s", path)
	}
	m.docs[path] = merged
	m.mu.Unlock()
	m.publish(Change{Path: path, Op: OpUpdate, At: time.Now().UTC()})
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	_, ok := m.docs[path]
	delete(m.docs, path)
	m.mu.Unlock()
	if ok {
		m.publish(Change{Path: path, Op: OpRemove, At: time.Now().UTC()})
	}
	return nil
}

func (m *MemoryStore) Take(_ context.Context, path string, dest any) error {
	m.mu.Lock()
	raw, ok := m.docs[path]
	delete(m.docs, path)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.publish(Change{Path: path, Op: OpRemove, At: time.Now().UTC()})
	return errors.Wrapf(json.Unmarshal(raw, dest), "decode %s", path)
}

func (m *MemoryStore) List(_ context.Context, prefix string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte)
	for path, raw := range m.docs {
		if matches(prefix, path) {
			cp := make([]byte, len(raw))
			copy(cp, raw)
			out[path] = cp
		}
	}
	return out, nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, prefix string) (<-chan Change, func(), error) {
	sub := &memorySub{prefix: prefix, ch: make(chan Change, 64)}

	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = sub
	m.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
			close(sub.ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return sub.ch, cancel, nil
}

// Paths returns every stored path, sorted.
func (m *MemoryStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for p := range m.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *MemoryStore) publish(c Change) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, s := range m.subs {
		if !matches(s.prefix, c.Path) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			// slow subscriber, drop
		}
	}
}

func mergeJSON(raw []byte, partial map[string]any) ([]byte, error) {
	doc := make(map[string]any)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for k, v := range partial {
		doc[k] = v
	}
	return json.Marshal(doc)
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }
