package location

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryRepo is an in-memory Repository.
type MemoryRepo struct {
	mu     sync.RWMutex
	types  []*AddressLevelType
	levels map[string]*AddressLevel
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{levels: make(map[string]*AddressLevel)}
}

// AddTypes registers address level types.
func (r *MemoryRepo) AddTypes(types ...*AddressLevelType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, types...)
}

// AddLevels registers address levels. TypeName is filled from the
// registered types when empty.
func (r *MemoryRepo) AddLevels(levels ...*AddressLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range levels {
		if l.TypeName == "" {
			for _, t := range r.types {
				if t.UUID == l.TypeUUID {
					l.TypeName = t.Name
				}
			}
		}
		r.levels[l.UUID] = l
	}
}

func (r *MemoryRepo) LevelTypes(_ context.Context) ([]*AddressLevelType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*AddressLevelType, 0, len(r.types))
	for _, t := range r.types {
		if !t.Voided {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MemoryRepo) LevelByUUID(_ context.Context, uuid string) (*AddressLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.levels[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressLevelNotFound, uuid)
	}
	return l, nil
}

func (r *MemoryRepo) LevelsByTitle(_ context.Context, title string) ([]*AddressLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*AddressLevel
	for _, l := range r.levels {
		if !l.Voided && strings.EqualFold(l.Title, title) {
			out = append(out, l)
		}
	}
	return out, nil
}
