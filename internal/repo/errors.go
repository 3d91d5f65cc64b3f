package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — ключ отсутствует в хранилище.
	ErrNotFound = errors.New("not found")

	// ErrInvalidKey — пустой или некорректный ключ.
	ErrInvalidKey = errors.New("invalid key")
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
