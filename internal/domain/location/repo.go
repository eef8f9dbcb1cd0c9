package location

import (
	"context"
	"errors"
)

var ErrAddressLevelNotFound = errors.New("address level not found")

// Repository reads the address hierarchy.
type Repository interface {
	LevelTypes(ctx context.Context) ([]*AddressLevelType, error)
	LevelByUUID(ctx context.Context, uuid string) (*AddressLevel, error)
	LevelsByTitle(ctx context.Context, title string) ([]*AddressLevel, error)
}
