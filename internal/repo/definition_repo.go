package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

const definitionsPrefix = "definitions/"

// DefinitionRepo — репозиторий определений pipeline.
//
// Определение хранится под ключом definitions/<id>.
type DefinitionRepo struct {
	store Store
}

// NewDefinitionRepo создаёт новый DefinitionRepo.
func NewDefinitionRepo(store Store) *DefinitionRepo {
	return &DefinitionRepo{store: store}
}

// DefinitionKey возвращает ключ определения.
func DefinitionKey(id string) string {
	return definitionsPrefix + id
}

// Save сохраняет определение.
// CreatedAt сохраняется от предыдущей версии, UpdatedAt обновляется.
func (r *DefinitionRepo) Save(ctx context.Context, def *domain.PipelineDefinition) error {
	if def.ID == "" || strings.Contains(def.ID, "/") {
		return fmt.Errorf("%w: definition id %q", ErrInvalidKey, def.ID)
	}

	now := time.Now().UTC()
	existing, err := r.Get(ctx, def.ID)
	switch {
	case err == nil:
		def.CreatedAt = existing.CreatedAt
	case isNotFound(err):
		def.CreatedAt = now
	default:
		return err
	}
	def.UpdatedAt = now

	if err := setJSON(ctx, r.store, DefinitionKey(def.ID), def); err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	return nil
}

// Get возвращает определение по ID.
func (r *DefinitionRepo) Get(ctx context.Context, id string) (*domain.PipelineDefinition, error) {
	var def domain.PipelineDefinition
	if err := getJSON(ctx, r.store, DefinitionKey(id), &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// List возвращает все определения, отсортированные по ID.
func (r *DefinitionRepo) List(ctx context.Context) ([]domain.PipelineDefinition, error) {
	keys, err := r.store.List(ctx, definitionsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	defs := make([]domain.PipelineDefinition, 0, len(keys))
	for _, key := range keys {
		var def domain.PipelineDefinition
		if err := getJSON(ctx, r.store, key, &def); err != nil {
			// ключ мог быть удалён между List и Get
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Delete удаляет определение.
// Возвращает ErrNotFound, если определения нет.
func (r *DefinitionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.store.Get(ctx, DefinitionKey(id)); err != nil {
		return err
	}
	return r.store.Delete(ctx, DefinitionKey(id))
}
