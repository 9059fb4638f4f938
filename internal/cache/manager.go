package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Manager fronts the disk tier with the memory tier. Disk hits are promoted
// into memory.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache

	mu       sync.Mutex
	promoted int64
}

// NewManager opens both tiers. DiskPath must be set.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DiskPath == "" {
		return nil, errors.New("cache disk path is required")
	}

	disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("unable to open disk cache: %w", err)
	}

	return &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		disk:   disk,
	}, nil
}

// Get looks in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.memory.Get(key); ok {
		return data, true
	}

	data, ok := m.disk.Get(key)
	if !ok {
		return nil, false
	}
	if err := m.memory.Put(key, data); err == nil {
		m.mu.Lock()
		m.promoted++
		m.mu.Unlock()
	}
	return data, true
}

// Put writes through to both tiers. A clip too large for memory is still
// stored on disk.
func (m *Manager) Put(key string, value []byte) error {
	if err := m.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", err)
	}
	if err := m.disk.Put(key, value); err != nil {
		if errors.Is(err, ErrItemTooLarge) {
			log.Debug("Clip too large for disk cache", "key", key, "bytes", len(value))
			return nil
		}
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key string) error {
	return errors.Join(m.memory.Delete(key), m.disk.Delete(key))
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	return errors.Join(m.memory.Clear(), m.disk.Clear())
}

// Stats returns combined counters: hits from either tier, misses from disk.
func (m *Manager) Stats() Stats {
	mem, disk := m.memory.Stats(), m.disk.Stats()
	s := disk
	s.Hits += mem.Hits
	if mem.LastAccess.After(s.LastAccess) {
		s.LastAccess = mem.LastAccess
	}
	return s
}

// LevelStats returns the counters of each tier.
func (m *Manager) LevelStats() map[Level]Stats {
	return map[Level]Stats{
		LevelMemory: m.memory.Stats(),
		LevelDisk:   m.disk.Stats(),
	}
}

// Promotions returns how many disk hits were copied into memory.
func (m *Manager) Promotions() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promoted
}

// Close persists the disk index.
func (m *Manager) Close() error {
	return m.disk.Close()
}
