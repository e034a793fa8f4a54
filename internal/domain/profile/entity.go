// Package profile содержит доменную модель профиля ученика:
// учебный трек, завершённые главы и баланс vibe coins.
package profile

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// MaxDisplayNameLength - ограничение длины имени в рунах.
const MaxDisplayNameLength = 64

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// UserID - идентификатор пользователя, выданный провайдером аутентификации (UUID).
type UserID string

// ParseUserID проверяет и нормализует идентификатор.
func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", shared.WrapError("profile", "ParseUserID", shared.ErrInvalidID, "user id must be a UUID", err)
	}
	return UserID(id.String()), nil
}

// String возвращает строковое представление.
func (id UserID) String() string { return string(id) }

// IsValid проверяет формат UUID.
func (id UserID) IsValid() bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}

// NormalizeDisplayName обрезает пробелы и проверяет длину.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", shared.ErrInvalidDisplayName
	}
	return name, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Profile - профиль ученика. Создаётся после онбординга, удаляется вместе с аккаунтом.
// Прогресс меняется только через ProgressMutation, имя - только через Rename.
type Profile struct {
	ID           UserID
	DisplayName  string
	Email        string
	LearningPath onboarding.PathLabel
	Progress     Progress
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewProfileParams - параметры для создания профиля.
type NewProfileParams struct {
	ID           UserID
	DisplayName  string
	Email        string
	LearningPath onboarding.PathLabel
}

// NewProfile создаёт профиль с пустым прогрессом.
func NewProfile(params NewProfileParams) (*Profile, error) {
	if !params.ID.IsValid() {
		return nil, shared.ErrInvalidUserID
	}

	name, err := NormalizeDisplayName(params.DisplayName)
	if err != nil {
		return nil, err
	}

	if !params.LearningPath.IsValid() {
		return nil, shared.NewDomainError("profile", "Create", shared.ErrInvalidInput, "unknown learning path")
	}

	now := time.Now().UTC()
	return &Profile{
		ID:           params.ID,
		DisplayName:  name,
		Email:        strings.ToLower(strings.TrimSpace(params.Email)),
		LearningPath: params.LearningPath,
		Progress:     EmptyProgress(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Rename меняет отображаемое имя.
func (p *Profile) Rename(name string) error {
	normalized, err := NormalizeDisplayName(name)
	if err != nil {
		return err
	}
	p.DisplayName = normalized
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// HasPublicName возвращает true, если профиль может появиться в лидерборде.
func (p *Profile) HasPublicName() bool {
	return strings.TrimSpace(p.DisplayName) != ""
}
