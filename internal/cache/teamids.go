package cache

import "sync"

// TeamIDCache maps team names to their database IDs for the current session
type TeamIDCache struct {
	mu  sync.RWMutex
	ids map[string]uint
}

// NewTeamIDCache creates a new TeamIDCache
func NewTeamIDCache() *TeamIDCache {
	return &TeamIDCache{
		ids: make(map[string]uint),
	}
}

// Get retrieves a team database ID by name
func (c *TeamIDCache) Get(name string) (uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[name]
	return id, ok
}

// Set stores a team database ID by name
func (c *TeamIDCache) Set(name string, id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[name] = id
}

// Delete removes a team by name
func (c *TeamIDCache) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, name)
}

// Reset clears all teams from the cache
func (c *TeamIDCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[string]uint)
}
