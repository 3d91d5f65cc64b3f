package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
)

// DefaultHistoryLimit — сколько записей истории хранится на определение.
const DefaultHistoryLimit = 20

// RunRepo — репозиторий снимков run.
//
// Ключи:
//   - runs/<defID>/latest  — последний run определения (полный снимок)
//   - runs/<defID>/history — краткие записи, новые первыми
//   - runs/by-id/<runID>   — полный снимок по ID run
type RunRepo struct {
	store        Store
	historyLimit int
}

// NewRunRepo создаёт новый RunRepo.
// historyLimit <= 0 означает DefaultHistoryLimit.
func NewRunRepo(store Store, historyLimit int) *RunRepo {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &RunRepo{store: store, historyLimit: historyLimit}
}

// LatestRunKey возвращает ключ последнего run определения.
func LatestRunKey(defID string) string {
	return "runs/" + defID + "/latest"
}

// HistoryKey возвращает ключ истории run определения.
func HistoryKey(defID string) string {
	return "runs/" + defID + "/history"
}

// RunKey возвращает ключ снимка run по ID.
func RunKey(runID uuid.UUID) string {
	return "runs/by-id/" + runID.String()
}

// SaveLatest сохраняет снимок как последний run определения
// и как запись по ID run.
func (r *RunRepo) SaveLatest(ctx context.Context, run *domain.PipelineRun) error {
	if err := setJSON(ctx, r.store, RunKey(run.ID), run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if err := setJSON(ctx, r.store, LatestRunKey(run.DefinitionID), run); err != nil {
		return fmt.Errorf("save latest run: %w", err)
	}
	return nil
}

// GetLatest возвращает последний run определения.
func (r *RunRepo) GetLatest(ctx context.Context, defID string) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	if err := getJSON(ctx, r.store, LatestRunKey(defID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Discard удаляет последний run определения.
// История и запись по ID остаются.
func (r *RunRepo) Discard(ctx context.Context, defID string) error {
	if _, err := r.store.Get(ctx, LatestRunKey(defID)); err != nil {
		return err
	}
	return r.store.Delete(ctx, LatestRunKey(defID))
}

// Get возвращает снимок run по ID.
func (r *RunRepo) Get(ctx context.Context, runID uuid.UUID) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	if err := getJSON(ctx, r.store, RunKey(runID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// History возвращает историю run определения, новые первыми.
func (r *RunRepo) History(ctx context.Context, defID string) ([]domain.RunSummary, error) {
	var history []domain.RunSummary
	err := getJSON(ctx, r.store, HistoryKey(defID), &history)
	if err != nil {
		if isNotFound(err) {
			return []domain.RunSummary{}, nil
		}
		return nil, err
	}
	return history, nil
}

// AppendHistory добавляет run в начало истории определения.
//
// Запись с тем же ID заменяется. Записи сверх лимита отбрасываются
// вместе со снимками по ID.
func (r *RunRepo) AppendHistory(ctx context.Context, run *domain.PipelineRun) error {
	history, err := r.History(ctx, run.DefinitionID)
	if err != nil {
		return err
	}

	updated := make([]domain.RunSummary, 0, len(history)+1)
	updated = append(updated, run.Summary())
	for _, s := range history {
		if s.ID != run.ID {
			updated = append(updated, s)
		}
	}

	var dropped []domain.RunSummary
	if len(updated) > r.historyLimit {
		dropped = updated[r.historyLimit:]
		updated = updated[:r.historyLimit]
	}

	if err := setJSON(ctx, r.store, HistoryKey(run.DefinitionID), updated); err != nil {
		return fmt.Errorf("save history: %w", err)
	}

	for _, s := range dropped {
		if err := r.store.Delete(ctx, RunKey(s.ID)); err != nil {
			return fmt.Errorf("prune run %s: %w", s.ID, err)
		}
	}
	return nil
}
