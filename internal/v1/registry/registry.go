// Package registry tracks the live rooms by join code. Rooms are created
// through the lobby and removed at shutdown; an unknown code is a 404, never
// an implicit room.
package registry

import (
	"sort"
	"sync"

	"github.com/tmtu/watchroom/internal/v1/metrics"
	"github.com/tmtu/watchroom/internal/v1/room"
)

// Registry is a concurrency-safe map of join code to running room.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room.Room
}

func New() *Registry {
	return &Registry{rooms: make(map[string]*room.Room)}
}

// Find returns the room registered under code.
func (reg *Registry) Find(code string) (*room.Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[code]
	return r, ok
}

// Register puts a room under code, silently replacing any previous holder.
// The caller owns the replaced room's shutdown.
func (reg *Registry) Register(code string, r *room.Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.rooms[code]; !exists {
		metrics.ActiveRooms.Inc()
	}
	reg.rooms[code] = r
}

// RegisterIfAbsent puts a room under code only if the code is free. It
// reports whether the room was installed; when it was not, the caller still
// owns the room it tried to register.
func (reg *Registry) RegisterIfAbsent(code string, r *room.Room) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.rooms[code]; exists {
		return false
	}
	metrics.ActiveRooms.Inc()
	reg.rooms[code] = r
	return true
}

// Remove forgets the code and returns the room that held it, if any. The
// room keeps running; stopping it is the caller's job.
func (reg *Registry) Remove(code string) (*room.Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[code]
	if ok {
		delete(reg.rooms, code)
		metrics.ActiveRooms.Dec()
	}
	return r, ok
}

// Codes returns a sorted snapshot of every registered join code.
func (reg *Registry) Codes() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	codes := make([]string, 0, len(reg.rooms))
	for code := range reg.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len reports the number of registered rooms.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
