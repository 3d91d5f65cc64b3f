package repo

import (
	"context"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ScheduleRepo — репозиторий состояния расписаний.
//
// Состояние хранится под ключом schedules/<defID>, чтобы время
// следующего запуска переживало рестарт планировщика.
type ScheduleRepo struct {
	store Store
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(store Store) *ScheduleRepo {
	return &ScheduleRepo{store: store}
}

// ScheduleKey возвращает ключ состояния расписания.
func ScheduleKey(defID string) string {
	return "schedules/" + defID
}

// Get возвращает состояние расписания или ErrNotFound.
func (r *ScheduleRepo) Get(ctx context.Context, defID string) (*domain.ScheduleState, error) {
	var state domain.ScheduleState
	if err := getJSON(ctx, r.store, ScheduleKey(defID), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save сохраняет состояние расписания.
func (r *ScheduleRepo) Save(ctx context.Context, state *domain.ScheduleState) error {
	if err := setJSON(ctx, r.store, ScheduleKey(state.DefinitionID), state); err != nil {
		return fmt.Errorf("save schedule state: %w", err)
	}
	return nil
}

// Delete удаляет состояние расписания.
func (r *ScheduleRepo) Delete(ctx context.Context, defID string) error {
	return r.store.Delete(ctx, ScheduleKey(defID))
}
