// Package onboarding содержит доменную логику анкеты новичка:
// самооценку опыта, средний балл и классификацию учебного трека.
package onboarding

import (
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING PATH
// ══════════════════════════════════════════════════════════════════════════════

// PathLabel - учебный трек, который определяет набор модулей по умолчанию.
type PathLabel string

const (
	PathBeginner    PathLabel = "beginner"
	PathBuilder     PathLabel = "builder"
	PathDeveloper   PathLabel = "developer"
	PathSpeedrunner PathLabel = "speedrunner"
	PathExpert      PathLabel = "expert"
)

// IsValid проверяет, что трек входит в перечисление.
func (p PathLabel) IsValid() bool {
	switch p {
	case PathBeginner, PathBuilder, PathDeveloper, PathSpeedrunner, PathExpert:
		return true
	}
	return false
}

// String возвращает строковое представление.
func (p PathLabel) String() string { return string(p) }

// ParsePathLabel разбирает трек из строки (регистр не важен).
func ParsePathLabel(s string) (PathLabel, error) {
	p := PathLabel(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown learning path %q", s)
	}
	return p, nil
}

// ClassifyLearningPath выбирает трек по среднему опыту и знакомству с вайбкодингом.
// Порядок проверок важен: срабатывает первое подходящее правило.
func ClassifyLearningPath(avgExperience float64, vibecodeLevel int) PathLabel {
	switch {
	case vibecodeLevel >= 4 && avgExperience >= 3:
		return PathExpert
	case vibecodeLevel >= 3 && avgExperience >= 2:
		return PathSpeedrunner
	case avgExperience >= 4 && vibecodeLevel <= 1:
		return PathDeveloper
	case vibecodeLevel >= 1 || avgExperience >= 2:
		return PathBuilder
	default:
		return PathBeginner
	}
}
