package location

import (
	"context"
	"sync"
)

// CachedHierarchy memoises the wrapped Hierarchy for one import or export
// run. Many subjects share a village, so each lineage is read once.
type CachedHierarchy struct {
	next Hierarchy

	mu       sync.RWMutex
	levels   []string
	lineages map[string]map[string]string
}

// NewCachedHierarchy wraps next with a per-run cache. Build a new one for
// every run so that edits to the hierarchy show up in the next one.
func NewCachedHierarchy(next Hierarchy) *CachedHierarchy {
	return &CachedHierarchy{
		next:     next,
		lineages: make(map[string]map[string]string),
	}
}

func (h *CachedHierarchy) LevelTypeNames(ctx context.Context) ([]string, error) {
	h.mu.RLock()
	levels := h.levels
	h.mu.RUnlock()
	if levels != nil {
		return levels, nil
	}

	levels, err := h.next.LevelTypeNames(ctx)
	if err != nil {
		return nil, err
	}
	if levels == nil {
		levels = []string{}
	}
	h.mu.Lock()
	h.levels = levels
	h.mu.Unlock()
	return levels, nil
}

func (h *CachedHierarchy) Lineage(ctx context.Context, levelUUID string) (map[string]string, error) {
	h.mu.RLock()
	cached, ok := h.lineages[levelUUID]
	h.mu.RUnlock()
	if ok {
		return cached, nil
	}

	lineage, err := h.next.Lineage(ctx, levelUUID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.lineages[levelUUID] = lineage
	h.mu.Unlock()
	return lineage, nil
}
