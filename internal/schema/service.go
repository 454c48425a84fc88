// Package schema is the client side of the field schema: a read-through
// cache over the schema endpoints plus local validation of definitions.
package schema

import (
	"context"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/state"
)

// API is the schema half of the document service.
type API interface {
	GetSchema(ctx context.Context) (entity.Schema, error)
	SetSchema(ctx context.Context, s entity.Schema) (entity.Schema, error)
	AddField(ctx context.Context, spec entity.FieldSpec) (entity.Schema, error)
	DeleteField(ctx context.Context, name string) (entity.Schema, error)
	ResetSchema(ctx context.Context) (entity.Schema, error)
}

type Service struct {
	api    API
	cache  *state.SchemaCache
	logger *slog.Logger
}

func NewService(api API, cache *state.SchemaCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = &state.SchemaCache{}
	}
	return &Service{api: api, cache: cache, logger: logger}
}

// Get returns the cached schema, fetching it on first use.
func (s *Service) Get(ctx context.Context) (entity.Schema, error) {
	if cached, ok := s.cache.Get(); ok {
		return cached, nil
	}
	return s.Refresh(ctx)
}

// Refresh always fetches and replaces the cache.
func (s *Service) Refresh(ctx context.Context) (entity.Schema, error) {
	fresh, err := s.api.GetSchema(ctx)
	if err != nil {
		s.logger.Warn("schema.get.failed", "error", err)
		return entity.Schema{}, err
	}
	s.cache.Set(fresh)
	s.logger.Debug("schema.refreshed", "fields", fresh.Len())
	return fresh, nil
}

// SetDefinition validates raw JSON locally, then replaces the server schema.
func (s *Service) SetDefinition(ctx context.Context, raw []byte) (entity.Schema, error) {
	def, err := ParseDefinition(raw)
	if err != nil {
		return entity.Schema{}, err
	}
	return s.mutate(ctx, "set", func(ctx context.Context) (entity.Schema, error) {
		return s.api.SetSchema(ctx, def)
	})
}

// AddField validates spec locally, then adds it. Type aliases are accepted.
func (s *Service) AddField(ctx context.Context, spec entity.FieldSpec) (entity.Schema, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return entity.Schema{}, common.InputError("field name is required")
	}
	ft, ok := constants.CanonicalizeFieldType(string(spec.Type))
	if !ok {
		return entity.Schema{}, common.InputError("type must be one of " + strings.Join(constants.FieldTypesAsStrings(), ", "))
	}
	spec.Type = ft
	if spec.Type != constants.FieldDate {
		spec.Format = ""
	}
	if err := ValidateFieldSpec(spec); err != nil {
		return entity.Schema{}, err
	}
	return s.mutate(ctx, "add_field", func(ctx context.Context) (entity.Schema, error) {
		return s.api.AddField(ctx, spec)
	})
}

func (s *Service) DeleteField(ctx context.Context, name string) (entity.Schema, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return entity.Schema{}, common.InputError("field name is required")
	}
	return s.mutate(ctx, "delete_field", func(ctx context.Context) (entity.Schema, error) {
		return s.api.DeleteField(ctx, name)
	})
}

func (s *Service) Reset(ctx context.Context) (entity.Schema, error) {
	return s.mutate(ctx, "reset", s.api.ResetSchema)
}

// mutate runs op and refreshes the cache from its response. When the
// response carries no fields the cache is re-read from the server.
func (s *Service) mutate(ctx context.Context, name string, op func(context.Context) (entity.Schema, error)) (entity.Schema, error) {
	out, err := op(ctx)
	if err != nil {
		s.logger.Warn("schema."+name+".failed", "error", err)
		return entity.Schema{}, err
	}
	if out.Len() == 0 {
		s.cache.Invalidate()
		return s.Refresh(ctx)
	}
	s.cache.Set(out)
	s.logger.Info("schema."+name+".ok", "fields", out.Len())
	return out, nil
}
