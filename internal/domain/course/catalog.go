// Package course содержит статический каталог курса: модули, главы и их стоимость в vibe coins.
// Каталог загружается один раз при старте и дальше только читается.
package course

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ModuleID - идентификатор модуля (например, "html-css").
type ModuleID string

// String возвращает строковое представление.
func (id ModuleID) String() string { return string(id) }

// ChapterID - идентификатор главы, уникален только внутри своего модуля.
type ChapterID string

// String возвращает строковое представление.
func (id ChapterID) String() string { return string(id) }

// Category группирует модули для рекомендаций.
type Category string

const (
	CategoryCore         Category = "core"
	CategoryFundamentals Category = "fundamentals"
	CategoryFramework    Category = "framework"
	CategoryAITooling    Category = "ai-tooling"
	CategoryBackend      Category = "backend"
	CategoryAdvanced     Category = "advanced"
	CategoryProject      Category = "project"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Chapter - минимальная завершаемая единица курса.
type Chapter struct {
	ID      ChapterID `yaml:"id" json:"id"`
	Title   string    `yaml:"title" json:"title"`
	Content []string  `yaml:"content" json:"content"`
	Tips    []string  `yaml:"tips" json:"tips,omitempty"`
	Task    string    `yaml:"task" json:"task,omitempty"`
	Points  int       `yaml:"points" json:"points"`
}

// HasTask возвращает true, если у главы есть практическое задание.
func (c Chapter) HasTask() bool {
	return strings.TrimSpace(c.Task) != ""
}

// Module - модуль курса с упорядоченным списком глав.
type Module struct {
	ID          ModuleID  `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description" json:"description"`
	Category    Category  `yaml:"category" json:"category"`
	Tier        int       `yaml:"tier" json:"tier,omitempty"`
	Chapters    []Chapter `yaml:"chapters" json:"chapters"`
}

// TotalPoints возвращает сумму очков всех глав модуля.
func (m Module) TotalPoints() int {
	total := 0
	for _, ch := range m.Chapters {
		total += ch.Points
	}
	return total
}

// Chapter ищет главу по идентификатору.
func (m Module) Chapter(id ChapterID) (Chapter, bool) {
	for _, ch := range m.Chapters {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chapter{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - неизменяемый упорядоченный набор модулей.
// Порядок модулей в каталоге является каноническим порядком курса.
type Catalog struct {
	modules  []Module
	position map[ModuleID]int
}

// NewCatalog проверяет модули и строит каталог.
// Возвращает ошибку при дублях модулей/глав и неположительных очках.
func NewCatalog(modules []Module) (*Catalog, error) {
	if len(modules) == 0 {
		return nil, fmt.Errorf("catalog: no modules")
	}

	position := make(map[ModuleID]int, len(modules))
	for i, m := range modules {
		if !shared.IsSlug(string(m.ID)) {
			return nil, fmt.Errorf("catalog: module #%d has invalid id %q", i, m.ID)
		}
		if _, dup := position[m.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate module %q", m.ID)
		}
		if len(m.Chapters) == 0 {
			return nil, fmt.Errorf("catalog: module %q has no chapters", m.ID)
		}

		seen := make(map[ChapterID]struct{}, len(m.Chapters))
		for _, ch := range m.Chapters {
			if !shared.IsSlug(string(ch.ID)) {
				return nil, fmt.Errorf("catalog: module %q has a chapter with invalid id %q", m.ID, ch.ID)
			}
			if _, dup := seen[ch.ID]; dup {
				return nil, fmt.Errorf("catalog: duplicate chapter %q in module %q", ch.ID, m.ID)
			}
			if ch.Points <= 0 {
				return nil, fmt.Errorf("catalog: chapter %s/%s must have positive points, got %d", m.ID, ch.ID, ch.Points)
			}
			seen[ch.ID] = struct{}{}
		}
		position[m.ID] = i
	}

	copied := make([]Module, len(modules))
	copy(copied, modules)

	return &Catalog{modules: copied, position: position}, nil
}

// Modules возвращает копию списка модулей в каноническом порядке.
func (c *Catalog) Modules() []Module {
	out := make([]Module, len(c.modules))
	copy(out, c.modules)
	return out
}

// Len возвращает количество модулей.
func (c *Catalog) Len() int {
	return len(c.modules)
}

// Contains проверяет, есть ли модуль в каталоге.
func (c *Catalog) Contains(id ModuleID) bool {
	_, ok := c.position[id]
	return ok
}

// Module возвращает модуль по идентификатору.
func (c *Catalog) Module(id ModuleID) (Module, bool) {
	idx, ok := c.position[id]
	if !ok {
		return Module{}, false
	}
	return c.modules[idx], true
}

// Chapter возвращает главу модуля.
func (c *Catalog) Chapter(moduleID ModuleID, chapterID ChapterID) (Chapter, bool) {
	m, ok := c.Module(moduleID)
	if !ok {
		return Chapter{}, false
	}
	return m.Chapter(chapterID)
}

// Position возвращает позицию модуля в каноническом порядке или -1.
func (c *Catalog) Position(id ModuleID) int {
	idx, ok := c.position[id]
	if !ok {
		return -1
	}
	return idx
}

// ByCategory возвращает модули категории в каноническом порядке.
func (c *Catalog) ByCategory(cat Category) []ModuleID {
	var out []ModuleID
	for _, m := range c.modules {
		if m.Category == cat {
			out = append(out, m.ID)
		}
	}
	return out
}

// TotalPoints возвращает сумму очков всего курса.
func (c *Catalog) TotalPoints() int {
	total := 0
	for _, m := range c.modules {
		total += m.TotalPoints()
	}
	return total
}

// Normalize убирает неизвестные модули и дубли, затем сортирует
// по каноническому порядку каталога.
func (c *Catalog) Normalize(ids []ModuleID) []ModuleID {
	seen := make(map[ModuleID]struct{}, len(ids))
	out := make([]ModuleID, 0, len(ids))
	for _, id := range ids {
		if !c.Contains(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return c.position[out[i]] < c.position[out[j]]
	})
	return out
}
