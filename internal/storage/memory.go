package storage

import (
	"errors"
	"strings"
)

// MemoryDB is a map-backed DB for tests and throwaway sessions. Nothing
// survives the process.
type MemoryDB struct {
	data map[string][]byte
}

// NewMemory creates an empty in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
	}
}

func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errors.New("key not found")
	}
	return v, nil
}

func (m *MemoryDB) Put(key, value []byte) error {
	m.data[string(key)] = value
	return nil
}

func (m *MemoryDB) Delete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

func (m *MemoryDB) Has(key []byte) (bool, error) {
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach visits every key under prefix in map order, which is deliberately
// unstable: callers that need ordering must not rely on the store for it.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	for k, v := range m.data {
		if strings.HasPrefix(k, p) {
			if err := fn([]byte(k), v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MemoryDB) Close() error {
	return nil
}
