package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IdentifierPool hands out unique identifiers and remembers who owns them.
type IdentifierPool struct {
	mutex  sync.RWMutex
	owners map[uuid.UUID]interface{}
}

func NewIdentifierPool() *IdentifierPool {
	return &IdentifierPool{
		owners: make(map[uuid.UUID]interface{}),
	}
}

func (p *IdentifierPool) Acquire(owner interface{}) uuid.UUID {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	id := uuid.New()
	for _, taken := p.owners[id]; taken; _, taken = p.owners[id] {
		id = uuid.New()
	}
	p.owners[id] = owner
	return id
}

func (p *IdentifierPool) Release(id uuid.UUID) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, ok := p.owners[id]; !ok {
		return fmt.Errorf("identifier '%s' was never acquired. Nothing was done", id)
	}
	delete(p.owners, id)
	return nil
}

func (p *IdentifierPool) Owner(id uuid.UUID) (interface{}, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	o, ok := p.owners[id]
	return o, ok
}

func (p *IdentifierPool) Len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return len(p.owners)
}
