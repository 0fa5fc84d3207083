package allocator

import (
	"context"
	"errors"

	"salonid/internal/core/apperror"
	"salonid/internal/core/identifier"
)

// ValidateFormat reports whether id is well formed and carries a known prefix.
// It performs no I/O.
func (s *Service) ValidateFormat(id string) bool {
	prefix, _, ok := identifier.Parse(id)
	return ok && s.prefixes.KnownPrefix(prefix)
}

// Validate checks the format of id and that it was issued.
//
// With entityType, the prefix must match the entity's prefix and the
// registry record must carry that entity type; aliases sharing a prefix are
// still distinct entity types. An unknown entityType is an InvalidEntity error.
// Without entityType, any known prefix is accepted.
func (s *Service) Validate(ctx context.Context, id string, entityType *string) (bool, error) {
	prefix, _, ok := identifier.Parse(id)
	if !ok {
		return false, nil
	}

	if entityType == nil {
		if !s.prefixes.KnownPrefix(prefix) {
			return false, nil
		}
		return s.Exists(ctx, id)
	}

	entity, want, err := s.resolve(*entityType)
	if err != nil {
		return false, err
	}
	if want != prefix {
		return false, nil
	}

	exists, err := s.registry.ExistsWithEntity(ctx, id, entity)
	if err != nil {
		return false, apperror.NewStoreUnavailable("exists_with_entity", err)
	}
	return exists, nil
}

// Exists reports whether id was issued, regardless of entity type.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	if _, _, ok := identifier.Parse(id); !ok {
		return false, nil
	}
	_, err := s.registry.Get(ctx, id)
	if errors.Is(err, identifier.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperror.NewStoreUnavailable("get", err)
	}
	return true, nil
}

// Lookup returns the registry record of an issued id.
func (s *Service) Lookup(ctx context.Context, id string) (*identifier.GeneratedID, error) {
	if _, _, ok := identifier.Parse(id); !ok {
		return nil, apperror.NewValidation("malformed identifier").WithDetail("id", id)
	}
	rec, err := s.registry.Get(ctx, id)
	if errors.Is(err, identifier.ErrNotFound) {
		return nil, apperror.NewNotFound("identifier", id)
	}
	if err != nil {
		return nil, apperror.NewStoreUnavailable("get", err)
	}
	return rec, nil
}

// EntityOf returns the entity type id was issued for.
func (s *Service) EntityOf(ctx context.Context, id string) (string, error) {
	rec, err := s.Lookup(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.EntityType, nil
}

// Entities lists the configured entity types, sorted.
func (s *Service) Entities() []string {
	return s.prefixes.Entities()
}

// PrefixTable returns the entity -> prefix mapping.
func (s *Service) PrefixTable() map[string]string {
	return s.prefixes.Entries()
}

// PrefixFor returns the prefix configured for entityType.
func (s *Service) PrefixFor(entityType string) (string, error) {
	_, prefix, err := s.resolve(entityType)
	return prefix, err
}
