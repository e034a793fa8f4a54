// Package leaderboard содержит доменную модель лидерборда:
// проекцию профилей, упорядоченную по балансу vibe coins.
package leaderboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

const (
	// DefaultLimit - размер топа по умолчанию.
	DefaultLimit = 10
	// MaxLimit - максимальный размер топа.
	MaxLimit = 100
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank представляет позицию в лидерборде. Начинается с 1.
type Rank int

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// IsPodium возвращает true для первых трёх мест.
func (r Rank) IsPodium() bool {
	return r >= 1 && r <= 3
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// NormalizeLimit приводит лимит к допустимому диапазону.
// Ноль означает "по умолчанию", отрицательный лимит - ошибка.
func NormalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, shared.ErrInvalidLimit
	case limit == 0:
		return DefaultLimit, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	default:
		return limit, nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - одна строка лидерборда.
type Entry struct {
	Rank   Rank   `json:"rank"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// HasName возвращает true, если у записи есть отображаемое имя.
func (e Entry) HasName() bool {
	return strings.TrimSpace(e.Name) != ""
}

// Build отбрасывает записи без имени, сортирует по очкам (убывание),
// при равенстве - по имени и ID, проставляет ранги и обрезает до limit.
func Build(candidates []Entry, limit int) []Entry {
	out := make([]Entry, 0, len(candidates))
	for _, e := range candidates {
		if !e.HasName() {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = Rank(i + 1)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - результат одной загрузки топа.
type Snapshot struct {
	Entries   []Entry   `json:"entries"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// IsZero возвращает true, если топ ещё ни разу не загружался.
func (s Snapshot) IsZero() bool {
	return s.FetchedAt.IsZero()
}

// Top возвращает первые n записей.
func (s Snapshot) Top(n int) []Entry {
	if n <= 0 || n >= len(s.Entries) {
		out := make([]Entry, len(s.Entries))
		copy(out, s.Entries)
		return out
	}
	out := make([]Entry, n)
	copy(out, s.Entries[:n])
	return out
}

// RankOf ищет позицию пользователя в снимке.
func (s Snapshot) RankOf(userID string) (Rank, bool) {
	for _, e := range s.Entries {
		if e.ID == userID {
			return e.Rank, true
		}
	}
	return 0, false
}

// IsStale проверяет, устарел ли снимок.
func (s Snapshot) IsStale(maxAge time.Duration, now time.Time) bool {
	if s.IsZero() {
		return true
	}
	return now.Sub(s.FetchedAt) > maxAge
}
