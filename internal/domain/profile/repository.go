package profile

import (
	"context"
	"errors"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressMutation вычисляет новый прогресс из текущего.
// Вызывается внутри атомарной операции хранилища; возврат ошибки отменяет запись.
// ErrProgressUnchanged означает "записывать нечего": MutateProgress вернёт
// текущее состояние без ошибки, ревизия не изменится.
type ProgressMutation func(current Progress) (Progress, error)

// ErrProgressUnchanged возвращается мутацией, которой нечего менять.
var ErrProgressUnchanged = errors.New("progress unchanged")

// Repository определяет операции над профилями.
type Repository interface {
	// Create создаёт профиль.
	// Возвращает ErrProfileAlreadyExists, если профиль уже есть.
	Create(ctx context.Context, p *Profile) error

	// GetByID возвращает профиль.
	// Возвращает ErrProfileNotFound, если профиль не найден.
	GetByID(ctx context.Context, id UserID) (*Profile, error)

	// GetProgress читает только прогресс (одним запросом).
	// Возвращает ErrProfileNotFound, если профиль не найден.
	GetProgress(ctx context.Context, id UserID) (Progress, error)

	// MutateProgress атомарно читает прогресс, применяет mutation и записывает
	// множество глав и баланс одной записью, увеличивая Revision на единицу.
	// Параллельные вызовы для одного пользователя сериализуются.
	MutateProgress(ctx context.Context, id UserID, mutation ProgressMutation) (Progress, error)

	// UpdateDisplayName меняет имя.
	// Возвращает ErrProfileNotFound, если профиль не найден.
	UpdateDisplayName(ctx context.Context, id UserID, name string) error

	// Delete удаляет профиль.
	// Возвращает ErrProfileNotFound, если профиль не найден.
	Delete(ctx context.Context, id UserID) error

	// ListIDs возвращает идентификаторы профилей по возрастанию, начиная после opts.After.
	ListIDs(ctx context.Context, opts ListOptions) ([]UserID, error)
}

// ListOptions - параметры постраничного обхода.
type ListOptions struct {
	After UserID
	Limit int
}

// DefaultListOptions возвращает значения по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 500}
}

// WithAfter задаёт курсор.
func (o ListOptions) WithAfter(id UserID) ListOptions {
	o.After = id
	return o
}
