package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore 进程内存储（单机部署与测试使用）
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]json.RawMessage
	subscribers map[*memorySubscriber]struct{}
}

type memorySubscriber struct {
	query Query
	ch    chan []Record
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]json.RawMessage),
		subscribers: make(map[*memorySubscriber]struct{}),
	}
}

// PutIfAbsent 键不存在时写入
func (s *MemoryStore) PutIfAbsent(ctx context.Context, collection, id string, record any) (bool, error) {
	data, err := encode(record)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[collection]
	if coll == nil {
		coll = make(map[string]json.RawMessage)
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return false, nil
	}
	coll[id] = data
	s.notifyLocked(collection)
	return true, nil
}

// Update 合并顶层字段
func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	merged, err := mergePatch(data, patch)
	if err != nil {
		return err
	}
	s.collections[collection][id] = merged
	s.notifyLocked(collection)
	return nil
}

// Get 读取单条记录
func (s *MemoryStore) Get(ctx context.Context, collection, id string, dest any) error {
	s.mu.Lock()
	data, ok := s.collections[collection][id]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Record{ID: id, Data: data}.Decode(dest)
}

// List 查询集合
func (s *MemoryStore) List(ctx context.Context, q Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(q)
}

// Subscribe 订阅集合快照
func (s *MemoryStore) Subscribe(ctx context.Context, q Query) (<-chan []Record, error) {
	sub := &memorySubscriber{query: q, ch: make(chan []Record, 1)}

	s.mu.Lock()
	snap, err := s.snapshotLocked(q)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	offer(sub.ch, snap)
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subscribers, sub)
		close(sub.ch)
		s.mu.Unlock()
	}()
	return sub.ch, nil
}

func (s *MemoryStore) snapshotLocked(q Query) ([]Record, error) {
	coll := s.collections[q.Collection]
	records := make([]Record, 0, len(coll))
	for id, data := range coll {
		records = append(records, Record{ID: id, Data: data})
	}
	return applyQuery(records, q)
}

func (s *MemoryStore) notifyLocked(collection string) {
	for sub := range s.subscribers {
		if sub.query.Collection != collection {
			continue
		}
		snap, err := s.snapshotLocked(sub.query)
		if err != nil {
			continue
		}
		offer(sub.ch, snap)
	}
}
