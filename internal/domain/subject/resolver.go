package subject

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/avni/avni-server/internal/domain/schema"
)

// Resolver turns a Subject cell into subject UUIDs. Tokens are subject
// UUIDs or ids from the previous system.
type Resolver struct {
	lookup    Lookup
	delimiter string
}

// NewResolver creates a resolver splitting multi-select cells on delimiter,
// a comma when zero.
func NewResolver(lookup Lookup, delimiter rune) *Resolver {
	if delimiter == 0 {
		delimiter = ','
	}
	return &Resolver{lookup: lookup, delimiter: string(delimiter)}
}

// ResolveForUpload resolves token. Multi-select elements take a delimited
// list.
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
		ind, err := r.lookup.ByUUID(ctx, token)
		if err == nil {
			return ind.UUID, nil
		}
		if !errors.Is(err, ErrSubjectNotFound) {
			return "", err
		}
	}
	ind, err := r.lookup.ByLegacyID(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			return "", fmt.Errorf("Subject '%s' not found", token)
		}
		return "", err
	}
	return ind.UUID, nil
}
