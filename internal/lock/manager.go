// Package lock serializes writers on a repository. Snapshot creation is a
// multi-step write (blobs, tree, snapshot object, ref advance); an exclusive
// advisory lock on the repository's lock file keeps concurrent writers from
// interleaving those steps. Readers never take the lock.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// Manager hands out exclusive per-repository write locks. The flock gives
// cross-process exclusion; the in-process mutex map keeps goroutines in the
// same process from contending on a shared file descriptor.
type Manager struct {
	mu    sync.Mutex
	repos map[string]*sync.Mutex
}

// NewManager creates a lock manager.
func NewManager() *Manager {
	return &Manager{repos: make(map[string]*sync.Mutex)}
}

// Guard is a held repository lock. Release it exactly once.
type Guard struct {
	file *os.File
	mu   *sync.Mutex
}

// Acquire blocks until the exclusive lock on repoRoot's lock file is held.
func (m *Manager) Acquire(repoRoot string) (*Guard, error) {
	m.mu.Lock()
	repoMu, ok := m.repos[repoRoot]
	if !ok {
		repoMu = &sync.Mutex{}
		m.repos[repoRoot] = repoMu
	}
	m.mu.Unlock()

	repoMu.Lock()

	path := filepath.Join(repoRoot, "repo.lock")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		repoMu.Unlock()
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		repoMu.Unlock()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &Guard{file: file, mu: repoMu}, nil
}

// Release drops the lock.
func (g *Guard) Release() error {
	defer g.mu.Unlock()
	if err := syscall.Flock(int(g.file.Fd()), syscall.LOCK_UN); err != nil {
		g.file.Close()
		return fmt.Errorf("unlock: %w", err)
	}
	return g.file.Close()
}
