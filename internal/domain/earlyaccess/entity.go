// Package earlyaccess содержит заявки на ранний доступ.
// Заявка создаётся один раз на email и больше никогда не меняется.
package earlyaccess

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// MaxNameLength - ограничение длины имени в рунах.
const MaxNameLength = 100

// Signup - заявка на ранний доступ.
type Signup struct {
	ID        string
	Name      string
	Email     shared.Email
	CreatedAt time.Time
}

// NewSignup проверяет имя и email и создаёт заявку.
func NewSignup(name, email string) (*Signup, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, shared.NewDomainError("early_access", "Validate", shared.ErrInvalidInput, "name is required")
	}

	addr, err := shared.NewEmail(email)
	if err != nil {
		return nil, err
	}

	return &Signup{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     addr,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Repository - хранилище заявок, только вставка.
type Repository interface {
	// Insert сохраняет заявку.
	// Возвращает ErrAlreadyRegistered, если такой email уже есть.
	Insert(ctx context.Context, s *Signup) error
}
