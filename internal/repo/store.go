package repo

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store — key-value хранилище JSON-документов.
//
// Используется для определений pipeline и снимков run. Схемы нет:
// значение — любой JSON. При одновременной записи одного ключа
// побеждает последняя запись.
type Store interface {
	// Get возвращает значение по ключу или ErrNotFound.
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// Set сохраняет значение, перезаписывая существующее.
	Set(ctx context.Context, key string, value json.RawMessage) error

	// Delete удаляет ключ. Удаление отсутствующего ключа не ошибка.
	Delete(ctx context.Context, key string) error

	// List возвращает отсортированные ключи с указанным префиксом.
	List(ctx context.Context, prefix string) ([]string, error)
}

// getJSON читает ключ и декодирует значение в dst.
func getJSON(ctx context.Context, s Store, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// setJSON кодирует src и сохраняет по ключу.
func setJSON(ctx context.Context, s Store, key string, src any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
