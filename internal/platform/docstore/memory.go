package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memDoc struct {
	doc Document
	seq uint64
}

// Memory keeps documents in process. It backs tests and APP_ENV=dev runs without
// infrastructure.
type Memory struct {
	mu   sync.RWMutex
	now  func() time.Time
	seq  uint64
	cols map[Path]map[uuid.UUID]*memDoc
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, cols: make(map[Path]map[uuid.UUID]*memDoc)}
}

func (m *Memory) List(ctx context.Context, col Path) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	entries := make([]*memDoc, 0, len(m.cols[col]))
	for _, d := range m.cols[col] {
		entries = append(entries, d)
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].doc.CreatedAt.Equal(entries[j].doc.CreatedAt) {
			return entries[i].doc.CreatedAt.Before(entries[j].doc.CreatedAt)
		}
		return entries[i].seq < entries[j].seq
	})
	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, cloneDoc(e.doc))
	}
	return docs, nil
}

func (m *Memory) Get(ctx context.Context, col Path, id uuid.UUID) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.cols[col][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDoc(d.doc), nil
}

func (m *Memory) Count(ctx context.Context, col Path) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cols[col]), nil
}

func (m *Memory) Add(ctx context.Context, col Path, data any) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	raw, err := encode(data)
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(col, raw), nil
}

func (m *Memory) AddIfBelow(ctx context.Context, col Path, max int, data any) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	raw, err := encode(data)
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cols[col]) >= max {
		return Document{}, ErrLimitReached
	}
	return m.insert(col, raw), nil
}

// insert requires m.mu held for writing.
func (m *Memory) insert(col Path, raw json.RawMessage) Document {
	m.seq++
	d := &memDoc{
		doc: Document{ID: uuid.New(), Data: append(json.RawMessage(nil), raw...), CreatedAt: m.now().UTC()},
		seq: m.seq,
	}
	if m.cols[col] == nil {
		m.cols[col] = make(map[uuid.UUID]*memDoc)
	}
	m.cols[col][d.doc.ID] = d
	return cloneDoc(d.doc)
}

func (m *Memory) Update(ctx context.Context, col Path, id uuid.UUID, patch map[string]any) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.cols[col][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	fields := map[string]any{}
	if err := json.Unmarshal(d.doc.Data, &fields); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	for k, v := range patch {
		fields[k] = v
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}
	now := m.now().UTC()
	d.doc.Data = raw
	d.doc.UpdatedAt = &now
	return cloneDoc(d.doc), nil
}

func (m *Memory) Delete(ctx context.Context, col Path, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cols[col], id)
	return nil
}

func (m *Memory) DeleteAll(ctx context.Context, col Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cols, col)
	return nil
}

func cloneDoc(d Document) Document {
	out := d
	out.Data = append(json.RawMessage(nil), d.Data...)
	if d.UpdatedAt != nil {
		t := *d.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}
