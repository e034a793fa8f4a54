package onboarding

import (
	"strings"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MinVibecodeLevel = 0
	MaxVibecodeLevel = 4

	maxDreamProjectLen = 2000
)

// Experience - самооценка опыта по четырём направлениям (шкала 1-5).
type Experience struct {
	HTMLCSS    int `json:"htmlCss"`
	JavaScript int `json:"javascript"`
	React      int `json:"react"`
	Backend    int `json:"backend"`
}

// Ratings возвращает оценки в фиксированном порядке.
func (e Experience) Ratings() []int {
	return []int{e.HTMLCSS, e.JavaScript, e.React, e.Backend}
}

// Average возвращает среднее арифметическое оценок.
func (e Experience) Average() float64 {
	r := e.Ratings()
	sum := 0
	for _, v := range r {
		sum += v
	}
	return float64(sum) / float64(len(r))
}

// Validate проверяет диапазон каждой оценки.
func (e Experience) Validate() error {
	for _, v := range e.Ratings() {
		if v < MinRating || v > MaxRating {
			return shared.NewDomainError("onboarding", "Validate", shared.ErrValueOutOfRange,
				"experience ratings must be between 1 and 5")
		}
	}
	return nil
}

// Signals - всё, что новичок сообщил о себе в анкете.
type Signals struct {
	Name          string
	Experience    Experience
	VibecodeLevel int
	DreamProject  string
	Path          PathLabel
}

// AverageExperience возвращает средний опыт.
func (s Signals) AverageExperience() float64 {
	return s.Experience.Average()
}

// Validate проверяет анкету целиком.
func (s Signals) Validate() error {
	if err := s.Experience.Validate(); err != nil {
		return err
	}
	if s.VibecodeLevel < MinVibecodeLevel || s.VibecodeLevel > MaxVibecodeLevel {
		return shared.NewDomainError("onboarding", "Validate", shared.ErrValueOutOfRange,
			"vibecode level must be between 0 and 4")
	}
	if len(s.DreamProject) > maxDreamProjectLen {
		return shared.NewDomainError("onboarding", "Validate", shared.ErrInvalidInput,
			"dream project description is too long")
	}
	if s.Path != "" && !s.Path.IsValid() {
		return shared.NewDomainError("onboarding", "Validate", shared.ErrInvalidInput,
			"unknown learning path")
	}
	return nil
}

// WithClassifiedPath заполняет трек, если он не задан явно.
func (s Signals) WithClassifiedPath() Signals {
	if s.Path == "" {
		s.Path = ClassifyLearningPath(s.AverageExperience(), s.VibecodeLevel)
	}
	return s
}

// MentionsAny проверяет, встречается ли в описании проекта любое из слов (без учёта регистра).
func (s Signals) MentionsAny(keywords ...string) bool {
	text := strings.ToLower(s.DreamProject)
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
