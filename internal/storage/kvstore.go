package storage

import (
	"context"
	"sync"
)

// KVStore 简单幂等键值存储，last-writer-wins 语义。
// 用于公钥材料缓存和授权签名缓存。本子系统不需要删除/淘汰接口：
// 缓存失效是逻辑上的（过期、作用域校验），不做物理删除。
type KVStore interface {
	// Get 读取键值；键不存在时返回 (nil, nil)
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入键值
	Set(ctx context.Context, key string, value []byte) error
}

// MemoryStore 进程内键值存储
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore 创建进程内键值存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
	}
}

// Get 读取键值
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, nil
	}

	// 返回拷贝，避免调用方修改底层数据
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set 写入键值
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored
	return nil
}
