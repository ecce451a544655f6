package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapline/lapline/pkg/core"
)

func TestRegistry_NewRegistry(t *testing.T) {
	reg := NewRegistry()

	require.NotNil(t, reg)
	assert.NotNil(t, reg.Entities)
	assert.NotNil(t, reg.Teams)
	assert.Len(t, reg.Entities, 0)
	assert.Len(t, reg.Teams, 0)
}

func TestRegistry_AddAndGetEntity(t *testing.T) {
	reg := NewRegistry()

	entity := core.Entity{
		ID:   42,
		Name: "Test Entity",
		Team: "Red",
	}

	reg.AddEntity(entity)

	got, ok := reg.GetEntity(42)
	require.True(t, ok, "expected to find entity with ID 42")
	assert.Equal(t, uint16(42), got.ID)
	assert.Equal(t, "Test Entity", got.Name)
	assert.Equal(t, "Red", got.Team)
}

func TestRegistry_GetEntity_NotFound(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.GetEntity(999)
	assert.False(t, ok, "expected not to find entity with ID 999")
}

func TestRegistry_AddAndGetTeam(t *testing.T) {
	reg := NewRegistry()

	team := core.Team{
		Name:  "Blue",
		Color: "#0000ff",
	}

	reg.AddTeam(team)

	got, ok := reg.GetTeam("Blue")
	require.True(t, ok, "expected to find team Blue")
	assert.Equal(t, "Blue", got.Name)
	assert.Equal(t, "#0000ff", got.Color)
}

func TestRegistry_GetTeam_NotFound(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.GetTeam("Nobody")
	assert.False(t, ok, "expected not to find team Nobody")
}

func TestRegistry_Reset(t *testing.T) {
	reg := NewRegistry()

	// Add some data
	reg.AddEntity(core.Entity{ID: 1, Name: "Entity 1"})
	reg.AddEntity(core.Entity{ID: 2, Name: "Entity 2"})
	reg.AddTeam(core.Team{Name: "Red"})

	// Verify data exists
	assert.Len(t, reg.Entities, 2)
	assert.Len(t, reg.Teams, 1)

	// Reset
	reg.Reset()

	// Verify data is cleared
	assert.Len(t, reg.Entities, 0)
	assert.Len(t, reg.Teams, 0)

	// Verify we can still add data after reset
	reg.AddEntity(core.Entity{ID: 3, Name: "Entity 3"})
	_, ok := reg.GetEntity(3)
	assert.True(t, ok, "expected to find entity added after reset")
}

func TestRegistry_LockUnlock(t *testing.T) {
	reg := NewRegistry()

	// Test Lock/Unlock don't cause deadlock
	reg.Lock()
	// Directly modify the map while holding the lock
	reg.Entities[1] = core.Entity{ID: 1, Name: "Direct Add"}
	reg.Unlock()

	// Verify the data was added
	got, ok := reg.GetEntity(1)
	require.True(t, ok, "expected to find entity added while holding lock")
	assert.Equal(t, "Direct Add", got.Name)
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	// Concurrent writes
	for i := uint16(0); i < 100; i++ {
		wg.Add(2)
		go func(id uint16) {
			defer wg.Done()
			reg.AddEntity(core.Entity{ID: id, Name: "Entity"})
		}(i)
		go func(id uint16) {
			defer wg.Done()
			reg.AddTeam(core.Team{Name: "Team" + string(rune('A'+id%26))})
		}(i)
	}
	wg.Wait()

	// Verify counts
	assert.Len(t, reg.Entities, 100)
	assert.Len(t, reg.Teams, 26)

	// Concurrent reads
	for i := uint16(0); i < 100; i++ {
		wg.Add(2)
		go func(id uint16) {
			defer wg.Done()
			reg.GetEntity(id)
		}(i)
		go func(id uint16) {
			defer wg.Done()
			reg.GetTeam("Team" + string(rune('A'+id%26)))
		}(i)
	}
	wg.Wait()
}

// SafeCounter tests

func TestSafeCounter_InitialValue(t *testing.T) {
	c := &SafeCounter{}
	assert.Equal(t, int(0), c.Value())
}

func TestSafeCounter_Set(t *testing.T) {
	c := &SafeCounter{}

	c.Set(42)
	assert.Equal(t, int(42), c.Value())

	c.Set(100)
	assert.Equal(t, int(100), c.Value())

	c.Set(0)
	assert.Equal(t, int(0), c.Value())
}

func TestSafeCounter_Inc(t *testing.T) {
	c := &SafeCounter{}

	c.Inc()
	assert.Equal(t, int(1), c.Value())

	c.Inc()
	c.Inc()
	assert.Equal(t, int(3), c.Value())
}

func TestSafeCounter_Concurrent(t *testing.T) {
	c := &SafeCounter{}
	var wg sync.WaitGroup

	// Concurrent increments
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, int(1000), c.Value())
}
