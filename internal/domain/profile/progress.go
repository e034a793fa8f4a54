package profile

import (
	"encoding/json"
	"sort"

	"github.com/vibecoding/vibe-academy/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETED CHAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// CompletedChapters - отображение "модуль -> множество завершённых глав".
// Множество, а не список: глава не может быть завершена дважды.
// Нулевое значение (nil) - валидное пустое состояние для чтения.
type CompletedChapters map[course.ModuleID]map[course.ChapterID]struct{}

// NewCompletedChapters создаёт множество из снимка вида {module: [chapters]}.
// Дубли в снимке схлопываются.
func NewCompletedChapters(snapshot map[string][]string) CompletedChapters {
	cc := make(CompletedChapters, len(snapshot))
	for m, chapters := range snapshot {
		for _, ch := range chapters {
			cc.add(course.ModuleID(m), course.ChapterID(ch))
		}
	}
	return cc
}

// Has проверяет, завершена ли глава. Отсутствующий модуль - пустое множество.
func (cc CompletedChapters) Has(moduleID course.ModuleID, chapterID course.ChapterID) bool {
	set, ok := cc[moduleID]
	if !ok {
		return false
	}
	_, done := set[chapterID]
	return done
}

func (cc CompletedChapters) add(moduleID course.ModuleID, chapterID course.ChapterID) {
	set, ok := cc[moduleID]
	if !ok {
		set = make(map[course.ChapterID]struct{})
		cc[moduleID] = set
	}
	set[chapterID] = struct{}{}
}

func (cc CompletedChapters) remove(moduleID course.ModuleID, chapterID course.ChapterID) {
	set, ok := cc[moduleID]
	if !ok {
		return
	}
	delete(set, chapterID)
	if len(set) == 0 {
		delete(cc, moduleID)
	}
}

// Clone возвращает глубокую копию.
func (cc CompletedChapters) Clone() CompletedChapters {
	out := make(CompletedChapters, len(cc))
	for m, set := range cc {
		copied := make(map[course.ChapterID]struct{}, len(set))
		for ch := range set {
			copied[ch] = struct{}{}
		}
		out[m] = copied
	}
	return out
}

// InModule возвращает завершённые главы модуля в отсортированном виде.
func (cc CompletedChapters) InModule(moduleID course.ModuleID) []course.ChapterID {
	set := cc[moduleID]
	out := make([]course.ChapterID, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count возвращает общее количество завершённых глав.
func (cc CompletedChapters) Count() int {
	n := 0
	for _, set := range cc {
		n += len(set)
	}
	return n
}

// Snapshot возвращает сериализуемое представление с отсортированными главами.
func (cc CompletedChapters) Snapshot() map[string][]string {
	out := make(map[string][]string, len(cc))
	for m := range cc {
		chapters := cc.InModule(m)
		ids := make([]string, len(chapters))
		for i, ch := range chapters {
			ids[i] = string(ch)
		}
		out[string(m)] = ids
	}
	return out
}

// MarshalJSON сериализует множество в {module: [chapters]}.
func (cc CompletedChapters) MarshalJSON() ([]byte, error) {
	return json.Marshal(cc.Snapshot())
}

// UnmarshalJSON разбирает {module: [chapters]} с удалением дублей.
func (cc *CompletedChapters) UnmarshalJSON(data []byte) error {
	var snapshot map[string][]string
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	*cc = NewCompletedChapters(snapshot)
	return nil
}

// Points считает сумму очков завершённых глав по каталогу.
// Модули и главы, которых нет в каталоге, дают ноль.
func (cc CompletedChapters) Points(catalog *course.Catalog) int {
	total := 0
	for m, set := range cc {
		module, ok := catalog.Module(m)
		if !ok {
			continue
		}
		for ch := range set {
			if chapter, ok := module.Chapter(ch); ok {
				total += chapter.Points
			}
		}
	}
	return total
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress - хранимое состояние прогресса пользователя.
// Множество глав и баланс всегда записываются вместе.
// Revision выдаёт хранилище: она растёт на единицу с каждой записью,
// поэтому из двух снимков одного пользователя новее тот, у кого она больше.
type Progress struct {
	CompletedChapters CompletedChapters `json:"completedChapters"`
	VibeCoins         int               `json:"vibeCoins"`
	Revision          int64             `json:"revision"`
}

// NewerThan сообщает, что p записан позже other.
// Нулевая ревизия (снимок без ревизии) не сравнима и считается новее.
func (p Progress) NewerThan(other Progress) bool {
	if p.Revision == 0 || other.Revision == 0 {
		return true
	}
	return p.Revision > other.Revision
}

// Clone возвращает глубокую копию.
func (p Progress) Clone() Progress {
	return Progress{
		CompletedChapters: p.CompletedChapters.Clone(),
		VibeCoins:         p.VibeCoins,
		Revision:          p.Revision,
	}
}

// EmptyProgress возвращает состояние нового пользователя.
func EmptyProgress() Progress {
	return Progress{CompletedChapters: CompletedChapters{}, VibeCoins: 0}
}

// ToggleResult - результат переключения главы.
type ToggleResult struct {
	Completed bool
	Delta     int
}

// Toggle переворачивает состояние главы и пересчитывает баланс:
// +points при завершении, max(0, total-points) при отмене.
// Исходный Progress не изменяется.
func (p Progress) Toggle(moduleID course.ModuleID, chapterID course.ChapterID, points int) (Progress, ToggleResult) {
	next := p.Clone()

	if next.CompletedChapters.Has(moduleID, chapterID) {
		next.CompletedChapters.remove(moduleID, chapterID)
		next.VibeCoins = p.VibeCoins - points
		if next.VibeCoins < 0 {
			next.VibeCoins = 0
		}
		return next, ToggleResult{Completed: false, Delta: next.VibeCoins - p.VibeCoins}
	}

	next.CompletedChapters.add(moduleID, chapterID)
	next.VibeCoins = p.VibeCoins + points
	return next, ToggleResult{Completed: true, Delta: points}
}

// Complete отмечает главу завершённой. Повторный вызов ничего не меняет.
func (p Progress) Complete(moduleID course.ModuleID, chapterID course.ChapterID, points int) (Progress, bool) {
	if p.CompletedChapters.Has(moduleID, chapterID) {
		return p, false
	}
	next, _ := p.Toggle(moduleID, chapterID, points)
	return next, true
}

// Reconciled возвращает прогресс с балансом, пересчитанным по каталогу.
func (p Progress) Reconciled(catalog *course.Catalog) (Progress, bool) {
	expected := p.CompletedChapters.Points(catalog)
	if expected == p.VibeCoins {
		return p, false
	}
	next := p.Clone()
	next.VibeCoins = expected
	return next, true
}

// ══════════════════════════════════════════════════════════════════════════════
// MODULE PROJECTION
// ══════════════════════════════════════════════════════════════════════════════

// ChapterState - состояние одной главы на странице модуля.
type ChapterState struct {
	ChapterID course.ChapterID `json:"chapterId"`
	Title     string           `json:"title"`
	Points    int              `json:"points"`
	Completed bool             `json:"completed"`
}

// ModuleProgress - проекция прогресса по одному модулю.
type ModuleProgress struct {
	ModuleID       course.ModuleID `json:"moduleId"`
	Title          string          `json:"title"`
	CompletedCount int             `json:"completedCount"`
	TotalChapters  int             `json:"totalChapters"`
	EarnedPoints   int             `json:"earnedPoints"`
	TotalPoints    int             `json:"totalPoints"`
	Percent        int             `json:"percent"`
	Chapters       []ChapterState  `json:"chapters"`
}

// IsCompleted возвращает true, если все главы модуля завершены.
func (mp ModuleProgress) IsCompleted() bool {
	return mp.TotalChapters > 0 && mp.CompletedCount == mp.TotalChapters
}

// ForModule строит проекцию модуля. Главы, которых нет в модуле, игнорируются.
func (p Progress) ForModule(m course.Module) ModuleProgress {
	mp := ModuleProgress{
		ModuleID:      m.ID,
		Title:         m.Title,
		TotalChapters: len(m.Chapters),
		TotalPoints:   m.TotalPoints(),
		Chapters:      make([]ChapterState, 0, len(m.Chapters)),
	}

	for _, ch := range m.Chapters {
		done := p.CompletedChapters.Has(m.ID, ch.ID)
		if done {
			mp.CompletedCount++
			mp.EarnedPoints += ch.Points
		}
		mp.Chapters = append(mp.Chapters, ChapterState{
			ChapterID: ch.ID,
			Title:     ch.Title,
			Points:    ch.Points,
			Completed: done,
		})
	}

	if mp.TotalChapters > 0 {
		mp.Percent = mp.CompletedCount * 100 / mp.TotalChapters
	}
	return mp
}
