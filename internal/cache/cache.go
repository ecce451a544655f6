package cache

import (
	"sync"

	"github.com/lapline/lapline/pkg/core"
)

// Registry caches entities and teams when they are announced to avoid subsequent db reads.
// Latency in these calls is critical to quickly process incoming samples.
type Registry struct {
	m        sync.Mutex
	Entities map[uint16]core.Entity
	Teams    map[string]core.Team
}

func NewRegistry() *Registry {
	return &Registry{
		m:        sync.Mutex{},
		Entities: make(map[uint16]core.Entity),
		Teams:    make(map[string]core.Team),
	}
}

func (c *Registry) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.Entities = make(map[uint16]core.Entity)
	c.Teams = make(map[string]core.Team)
}

func (c *Registry) Lock() {
	c.m.Lock()
}

func (c *Registry) Unlock() {
	c.m.Unlock()
}

func (c *Registry) GetEntity(id uint16) (core.Entity, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if e, ok := c.Entities[id]; ok {
		return e, true
	}
	return core.Entity{}, false
}

func (c *Registry) GetTeam(name string) (core.Team, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if t, ok := c.Teams[name]; ok {
		return t, true
	}
	return core.Team{}, false
}

func (c *Registry) AddEntity(e core.Entity) {
	c.m.Lock()
	defer c.m.Unlock()
	c.Entities[e.ID] = e
}

func (c *Registry) AddTeam(t core.Team) {
	c.m.Lock()
	defer c.m.Unlock()
	c.Teams[t.Name] = t
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
