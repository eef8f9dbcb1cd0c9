package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/avni/avni-server/internal/domain/schema"
)

// Resolver turns a Location cell into address level UUIDs.
type Resolver struct {
	repo      Repository
	delimiter string
}

// NewResolver creates a resolver splitting multi-select cells on delimiter,
// a comma when zero.
func NewResolver(repo Repository, delimiter rune) *Resolver {
	if delimiter == 0 {
		delimiter = ','
	}
	return &Resolver{repo: repo, delimiter: string(delimiter)}
}

// ResolveForUpload accepts an address level UUID or title. Multi-select
// elements take a delimited list and yield a list of UUIDs.
func (r *Resolver) ResolveForUpload(ctx context.Context, fe *schema.FormElement, token string) (any, error) {
	if !fe.IsMultiSelect() {
		return r.resolve(ctx, strings.TrimSpace(token))
	}
	var out []any
	for _, part := range strings.Split(token, r.delimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, err := r.resolve(ctx, part)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, token string) (string, error) {
	if _, err := uuid.Parse(token); err == nil {
		l, err := r.repo.LevelByUUID(ctx, token)
		if err == nil {
			return l.UUID, nil
		}
		if !errors.Is(err, ErrAddressLevelNotFound) {
			return "", err
		}
	}
	levels, err := r.repo.LevelsByTitle(ctx, token)
	if err != nil {
		return "", err
	}
	switch len(levels) {
	case 0:
		return "", fmt.Errorf("Location '%s' not found", token)
	case 1:
		return levels[0].UUID, nil
	}
	return "", fmt.Errorf("Location '%s' is ambiguous, use its UUID", token)
}
