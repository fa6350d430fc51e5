// Package devloop implements the Dev Loop & Watcher (H) of §4.6:
// debounced file-change detection, the shared in-memory infrastructure
// map, the running-process registry, and the six-step reload pipeline
// that ties them together. Runs only in development.
package devloop

import "sync"

// Coordinator implements the "processing coordinator" cooperative
// mutex of §4.6: reloads acquire it exclusively; admin tool calls that
// introspect or mutate state acquire it shared or wait. It is a thin,
// domain-named wrapper over sync.RWMutex, the same shared-state idiom
// used throughout the corpus — the naming just makes the reload
// pipeline's intent explicit instead of reading as generic Lock/RLock.
type Coordinator struct {
	mu sync.RWMutex
}

func (c *Coordinator) AcquireExclusive() { c.mu.Lock() }
func (c *Coordinator) ReleaseExclusive() { c.mu.Unlock() }
func (c *Coordinator) AcquireShared()    { c.mu.RLock() }
func (c *Coordinator) ReleaseShared()    { c.mu.RUnlock() }
