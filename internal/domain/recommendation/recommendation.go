// Package recommendation подбирает персональный набор модулей по анкете новичка.
// Основной путь - внешний сервис; локальный детерминированный подбор используется,
// когда сервис недоступен или вернул слишком мало модулей.
package recommendation

import (
	"context"

	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
)

// MinRemoteModules - минимальное число валидных модулей в ответе сервиса.
const MinRemoteModules = 5

// Method описывает, откуда взялась рекомендация.
type Method string

const (
	MethodRemote   Method = "remote"
	MethodFallback Method = "fallback"
)

// Result - итоговая рекомендация.
type Result struct {
	Modules []course.ModuleID `json:"modules"`
	Method  Method            `json:"method"`

	// RemoteMethod - тег, который вернул внешний сервис (например, "ai").
	RemoteMethod string `json:"remoteMethod,omitempty"`
}

// RemoteResult - сырой ответ внешнего сервиса.
type RemoteResult struct {
	Modules []string
	Method  string
}

// Remote - внешний сервис рекомендаций.
type Remote interface {
	Recommend(ctx context.Context, signals onboarding.Signals) (RemoteResult, error)
}

// AcceptRemote фильтрует ответ сервиса: оставляет только модули из каталога
// без дублей, сохраняя порядок сервиса. ok=false, если валидных меньше MinRemoteModules.
func AcceptRemote(ids []string, catalog *course.Catalog) ([]course.ModuleID, bool) {
	seen := make(map[course.ModuleID]struct{}, len(ids))
	out := make([]course.ModuleID, 0, len(ids))
	for _, raw := range ids {
		id := course.ModuleID(raw)
		if !catalog.Contains(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) < MinRemoteModules {
		return nil, false
	}
	return out, true
}
