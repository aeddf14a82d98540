package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
)

// arena hands out the opaque uint64 handles the renderer core sees and maps them
// back to the driver objects. Handle 0 is never issued.
type arena[T any] struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]T
}

func newArena[T any]() *arena[T] {
	return &arena[T]{items: make(map[uint64]T)}
}

func (a *arena[T]) put(v T) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	a.items[a.next] = v
	return a.next
}

func (a *arena[T]) get(h uint64) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.items[h]
	return v, ok
}

// take removes h and returns what it referred to.
func (a *arena[T]) take(h uint64) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.items[h]
	if ok {
		delete(a.items, h)
	}
	return v, ok
}

// drain removes every entry for which match is true and returns them.
func (a *arena[T]) drain(match func(T) bool) []T {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []T
	for h, v := range a.items {
		if match(v) {
			out = append(out, v)
			delete(a.items, h)
		}
	}
	return out
}

func (a *arena[T]) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

func errUnknownHandle(kind string, h uint64) error {
	return errors.Newf("unknown %s handle %d", kind, h)
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that has all of propertyFlags.
func FindMemoryIndex(memory vk.PhysicalDeviceMemoryProperties, typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return 0, errors.Newf("no memory type matches filter %#x with properties %#x", typeFilter, uint32(propertyFlags))
}
