package login

import (
	"context"

	"github.com/udisondev/wrauth/internal/model"
)

// UserCatalog определяет интерфейс каталога аккаунтов.
// Используется для dependency injection в тестах.
type UserCatalog interface {
	// LookupUser возвращает аккаунт по имени.
	// Возвращает nil, nil если аккаунт не найден.
	LookupUser(ctx context.Context, username string) (*model.UserRecord, error)

	// DisplaynameTaken проверяет, занят ли никнейм.
	DisplaynameTaken(ctx context.Context, displayname string) (bool, error)

	// UpdateDisplayname сохраняет никнейм, выбранный при первом входе.
	UpdateDisplayname(ctx context.Context, username, displayname string) error
}
