package location

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Hierarchy is the view of the address hierarchy used by import and export.
type Hierarchy interface {
	// LevelTypeNames returns the level type names, most specific first.
	LevelTypeNames(ctx context.Context) ([]string, error)
	// Lineage maps level type name to title for a location and all its
	// ancestors.
	Lineage(ctx context.Context, levelUUID string) (map[string]string, error)
}

// Service implements Hierarchy over a Repository. It reads through on every
// call; wrap it in NewCachedHierarchy for the length of a run.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new location service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "location").Logger(),
	}
}

func (s *Service) LevelTypeNames(ctx context.Context) ([]string, error) {
	types, err := s.repo.LevelTypes(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(types, func(i, j int) bool { return types[i].Level < types[j].Level })
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	return names, nil
}

func (s *Service) Lineage(ctx context.Context, levelUUID string) (map[string]string, error) {
	out := make(map[string]string)
	seen := make(map[string]bool)
	for next := levelUUID; next != ""; {
		if seen[next] {
			return nil, fmt.Errorf("address level %s: cycle in parent chain", levelUUID)
		}
		seen[next] = true
		l, err := s.repo.LevelByUUID(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("lineage of %s: %w", levelUUID, err)
		}
		out[l.TypeName] = l.Title
		next = l.ParentUUID
	}
	return out, nil
}
