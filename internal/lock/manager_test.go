package lock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	m := NewManager()
	root := t.TempDir()

	g, err := m.Acquire(root)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "repo.lock"))
	assert.NoError(t, err)

	require.NoError(t, g.Release())

	// Reacquirable after release.
	g2, err := m.Acquire(root)
	require.NoError(t, err)
	require.NoError(t, g2.Release())
}

func TestAcquireBlocksSecondWriter(t *testing.T) {
	m := NewManager()
	root := t.TempDir()

	g, err := m.Acquire(root)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		g2, err := m.Acquire(root)
		assert.NoError(t, err)
		close(acquired)
		g2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired lock while first held it")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, g.Release())

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second writer never acquired lock after release")
	}
}

func TestConcurrentWritersSerialize(t *testing.T) {
	m := NewManager()
	root := t.TempDir()

	const writers = 8
	var inside int
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := m.Acquire(root)
			if !assert.NoError(t, err) {
				return
			}
			inside++
			v := inside
			time.Sleep(time.Millisecond)
			// No other writer ran in between.
			assert.Equal(t, v, inside)
			assert.NoError(t, g.Release())
		}()
	}
	wg.Wait()
	assert.Equal(t, writers, inside)
}

func TestIndependentReposDoNotContend(t *testing.T) {
	m := NewManager()

	g1, err := m.Acquire(t.TempDir())
	require.NoError(t, err)
	defer g1.Release()

	done := make(chan struct{})
	go func() {
		g2, err := m.Acquire(t.TempDir())
		assert.NoError(t, err)
		g2.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different repository blocked")
	}
}
