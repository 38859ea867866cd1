package service

import (
	"context"
	"errors"
	"fmt"

	"bomcore/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DirectoryLookup resolves customer codes to identifiers for BOM-edge
// scoping. One lookup is constructed per request: it memoizes only within its
// own lifetime, so a long-running process can never serve a stale mapping the
// way a module-level cache would.
type DirectoryLookup struct {
	repo repository.CustomerRepository
	seen map[string]uuid.UUID
}

func NewDirectoryLookup(repo repository.CustomerRepository) *DirectoryLookup {
	return &DirectoryLookup{repo: repo, seen: make(map[string]uuid.UUID)}
}

// Resolve maps an opaque customer code to its id. Unknown or inactive codes
// return ErrNotFound.
func (l *DirectoryLookup) Resolve(ctx context.Context, code string) (uuid.UUID, error) {
	if id, ok := l.seen[code]; ok {
		return id, nil
	}
	c, err := l.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, fmt.Errorf("customer %q: %w", code, ErrNotFound)
		}
		return uuid.Nil, err
	}
	l.seen[code] = c.ID
	return c.ID, nil
}
