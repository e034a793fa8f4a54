package recommender

import (
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/recommendation"
)

// ══════════════════════════════════════════════════════════════════════════════
// DATA TRANSFER OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ExperienceDTO is the self-assessment block of a request.
type ExperienceDTO struct {
	HTMLCSS    int `json:"htmlCss"`
	JavaScript int `json:"javascript"`
	React      int `json:"react"`
	Backend    int `json:"backend"`
}

// RecommendRequestDTO is the body sent to the recommendation service.
type RecommendRequestDTO struct {
	Name          string        `json:"name"`
	Experience    ExperienceDTO `json:"experience"`
	VibecodeLevel int           `json:"vibecodeLevel"`
	DreamProject  string        `json:"dreamProject"`
	Path          string        `json:"path"`
}

// RecommendResponseDTO is the service reply. Error is set instead of Modules
// when the service could not produce a recommendation.
type RecommendResponseDTO struct {
	Modules []string `json:"modules"`
	Method  string   `json:"method"`
	Error   string   `json:"error,omitempty"`
}

// APIErrorDTO is the body of a non-2xx response.
type APIErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func requestFromSignals(s onboarding.Signals) RecommendRequestDTO {
	return RecommendRequestDTO{
		Name: s.Name,
		Experience: ExperienceDTO{
			HTMLCSS:    s.Experience.HTMLCSS,
			JavaScript: s.Experience.JavaScript,
			React:      s.Experience.React,
			Backend:    s.Experience.Backend,
		},
		VibecodeLevel: s.VibecodeLevel,
		DreamProject:  s.DreamProject,
		Path:          string(s.Path),
	}
}

func (r RecommendResponseDTO) toDomain() recommendation.RemoteResult {
	return recommendation.RemoteResult{
		Modules: r.Modules,
		Method:  r.Method,
	}
}
