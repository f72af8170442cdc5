// Package contacts keeps the alias address book used to send payments by
// name instead of raw chain addresses.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/payrail/payrail/internal/chain"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/store"
)

// ErrUnknownContact marks lookups for aliases that were never added.
var ErrUnknownContact = errors.New("unknown contact")

// Service validates and stores contacts. Address validation delegates to the
// adapter of the default token's chain, so a Solana alias cannot be saved
// with an EVM address.
type Service struct {
	registry *model.Registry
	repo     store.ContactRepository
	logger   *slog.Logger

	mu       sync.RWMutex
	adapters map[model.Chain]chain.Adapter
}

func NewService(registry *model.Registry, repo store.ContactRepository, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		repo:     repo,
		adapters: make(map[model.Chain]chain.Adapter),
		logger:   logger.With("component", "contacts"),
	}
}

// RegisterAdapter wires the address validator for one chain; an adapter
// registered for the same chain replaces the previous one. Contacts whose
// default token lives on an unregistered chain are stored without address
// validation.
func (s *Service) RegisterAdapter(adapter chain.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[adapter.Chain()] = adapter
}

func (s *Service) validator(c model.Chain) (chain.Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adapter, ok := s.adapters[c]
	return adapter, ok
}

// Add stores a contact under its normalized alias, replacing any existing
// record with the same alias.
func (s *Service) Add(ctx context.Context, c model.Contact) error {
	c.Alias = model.NormalizeAlias(c.Alias)
	if c.Alias == "" {
		return fmt.Errorf("contact alias is empty")
	}
	if c.Address == "" {
		return fmt.Errorf("contact address is empty")
	}

	token, ok := s.registry.Lookup(c.Token)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownToken, c.Token)
	}
	c.Token = token.Symbol

	if adapter, ok := s.validator(token.Chain); ok {
		if err := adapter.ValidateAddress(c.Address); err != nil {
			return fmt.Errorf("contact %s: %w", c.Alias, err)
		}
	}

	if c.AddedAt.IsZero() {
		c.AddedAt = time.Now().UTC()
	}
	if err := s.repo.Upsert(ctx, c); err != nil {
		return fmt.Errorf("store contact %s: %w", c.Alias, err)
	}
	s.logger.Info("contact stored", "alias", c.Alias, "token", c.Token)
	return nil
}

// Resolve looks up a contact by alias. Absence is reported through the bool,
// not an error, so callers decide whether it is fatal.
func (s *Service) Resolve(ctx context.Context, alias string) (model.Contact, bool, error) {
	c, found, err := s.repo.Find(ctx, model.NormalizeAlias(alias))
	if err != nil {
		return model.Contact{}, false, fmt.Errorf("resolve contact %s: %w", alias, err)
	}
	return c, found, nil
}

// List returns all contacts ordered by alias.
func (s *Service) List(ctx context.Context) ([]model.Contact, error) {
	contacts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// Remove deletes a contact and reports whether it existed.
func (s *Service) Remove(ctx context.Context, alias string) (bool, error) {
	normalized := model.NormalizeAlias(alias)
	removed, err := s.repo.Delete(ctx, normalized)
	if err != nil {
		return false, fmt.Errorf("remove contact %s: %w", normalized, err)
	}
	if removed {
		s.logger.Info("contact removed", "alias", normalized)
	}
	return removed, nil
}
