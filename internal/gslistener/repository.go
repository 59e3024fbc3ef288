package gslistener

import (
	"context"

	"github.com/udisondev/wrauth/internal/model"
)

// ServerCatalog определяет интерфейс каталога игровых серверов.
// Используется для dependency injection в тестах.
type ServerCatalog interface {
	// ListActiveServers возвращает зарегистрированные активные серверы.
	ListActiveServers(ctx context.Context) ([]model.ServerRecord, error)
}
