package recommendation

import (
	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
)

// Пороговые значения локального подбора.
const (
	fundamentalsBelow = 2.0
	frameworkBelow    = 3.0
	advancedFrom      = 3.0
	aiToolingBelow    = 3
	projectTier2From  = 3.0
	projectTier3From  = 4.0
)

// backendKeywords - слова в описании проекта, при которых нужен бэкенд.
var backendKeywords = []string{"app", "saas"}

// Fallback детерминированно подбирает модули по анкете.
// Чистая функция: результат зависит только от signals и каталога.
//
//   - core - всегда;
//   - fundamentals - при среднем опыте < 2;
//   - framework - при среднем опыте < 3;
//   - advanced - при среднем опыте >= 3;
//   - ai-tooling - при знакомстве с вайбкодингом < 3;
//   - backend - если в описании проекта есть "app" или "saas";
//   - проект tier 1 - всегда, tier 2 - с опыта 3, tier 3 - с опыта 4.
//
// Результат без дублей и отсортирован по порядку каталога.
func Fallback(signals onboarding.Signals, catalog *course.Catalog) []course.ModuleID {
	avg := signals.AverageExperience()

	var picked []course.ModuleID
	add := func(cat course.Category) {
		picked = append(picked, catalog.ByCategory(cat)...)
	}

	add(course.CategoryCore)
	if avg < fundamentalsBelow {
		add(course.CategoryFundamentals)
	}
	if avg < frameworkBelow {
		add(course.CategoryFramework)
	}
	if avg >= advancedFrom {
		add(course.CategoryAdvanced)
	}
	if signals.VibecodeLevel < aiToolingBelow {
		add(course.CategoryAITooling)
	}
	if signals.MentionsAny(backendKeywords...) {
		add(course.CategoryBackend)
	}

	for _, m := range catalog.Modules() {
		if m.Category != course.CategoryProject {
			continue
		}
		switch {
		case m.Tier <= 1:
			picked = append(picked, m.ID)
		case m.Tier == 2 && avg >= projectTier2From:
			picked = append(picked, m.ID)
		case m.Tier >= 3 && avg >= projectTier3From:
			picked = append(picked, m.ID)
		}
	}

	return catalog.Normalize(picked)
}
