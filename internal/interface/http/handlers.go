package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vibecoding/vibe-academy/internal/application/command"
	"github.com/vibecoding/vibe-academy/internal/application/query"
	"github.com/vibecoding/vibe-academy/internal/application/saga"
	"github.com/vibecoding/vibe-academy/internal/application/validation"
	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type earlyAccessRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type earlyAccessResponse struct {
	SignupID string `json:"signupId"`
	Email    string `json:"email"`
}

type questionnaire struct {
	Name          string                  `json:"name" validate:"notblank,max=64"`
	Experience    command.ExperienceInput `json:"experience"`
	VibecodeLevel int                     `json:"vibecodeLevel" validate:"gte=0,lte=4"`
	DreamProject  string                  `json:"dreamProject" validate:"max=2000"`
	Path          string                  `json:"path" validate:"learning_path"`
}

func (q questionnaire) signals() onboarding.Signals {
	return onboarding.Signals{
		Name: q.Name,
		Experience: onboarding.Experience{
			HTMLCSS:    q.Experience.HTMLCSS,
			JavaScript: q.Experience.JavaScript,
			React:      q.Experience.React,
			Backend:    q.Experience.Backend,
		},
		VibecodeLevel: q.VibecodeLevel,
		DreamProject:  q.DreamProject,
		Path:          onboarding.PathLabel(q.Path),
	}
}

type onboardingRequest struct {
	questionnaire
	Email string `json:"email"`
}

type onboardingResponse struct {
	UserID         string               `json:"userId"`
	DisplayName    string               `json:"displayName"`
	LearningPath   onboarding.PathLabel `json:"learningPath"`
	ClassifiedPath onboarding.PathLabel `json:"classifiedPath"`
	Modules        []course.ModuleID    `json:"modules"`
	Method         string               `json:"method"`
}

type moduleSummary struct {
	ID           course.ModuleID `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     course.Category `json:"category"`
	ChapterCount int             `json:"chapterCount"`
	TotalPoints  int             `json:"totalPoints"`
}

type toggleRequest struct {
	ChapterPoints int `json:"chapterPoints"`
}

type toggleResponse struct {
	ModuleID  string           `json:"moduleId"`
	ChapterID string           `json:"chapterId"`
	Completed bool             `json:"completed"`
	VibeCoins int              `json:"vibeCoins"`
	Delta     int              `json:"delta"`
	Progress  profile.Progress `json:"progress"`
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
}

type profileResponse struct {
	DisplayName string `json:"displayName"`
	Changed     bool   `json:"changed"`
}

type reconcileResponse struct {
	Scanned    int   `json:"scanned"`
	Repaired   int   `json:"repaired"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"durationMs"`
}

var errMalformedBody = shared.NewDomainError("http", "Decode", shared.ErrInvalidInput, "request body is not valid JSON")

// bindJSON decodes the body; an empty body is allowed when optional.
func bindJSON(c *gin.Context, dst any, optional bool) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		handlers.FailWithError(c, errMalformedBody)
		return false
	}
	return true
}

func correlationID(c *gin.Context) string {
	return handlers.RequestID(c)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListModules(c *gin.Context) {
	modules := s.deps.Catalog.Modules()
	out := make([]moduleSummary, 0, len(modules))
	for _, m := range modules {
		out = append(out, moduleSummary{
			ID:           m.ID,
			Title:        m.Title,
			Description:  m.Description,
			Category:     m.Category,
			ChapterCount: len(m.Chapters),
			TotalPoints:  m.TotalPoints(),
		})
	}
	handlers.Respond(c, http.StatusOK, out, &handlers.ResponseMeta{TotalCount: len(out)})
}

func (s *Server) handleGetModule(c *gin.Context) {
	m, ok := s.deps.Catalog.Module(course.ModuleID(c.Param("moduleId")))
	if !ok {
		handlers.FailWithError(c, shared.ErrModuleNotFound)
		return
	}
	handlers.OK(c, m)
}

func (s *Server) handleGetChapter(c *gin.Context) {
	moduleID := course.ModuleID(c.Param("moduleId"))
	if !s.deps.Catalog.Contains(moduleID) {
		handlers.FailWithError(c, shared.ErrModuleNotFound)
		return
	}
	ch, ok := s.deps.Catalog.Chapter(moduleID, course.ChapterID(c.Param("chapterId")))
	if !ok {
		handlers.FailWithError(c, shared.ErrChapterNotFound)
		return
	}
	handlers.OK(c, ch)
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleJoinEarlyAccess(c *gin.Context) {
	var req earlyAccessRequest
	if !bindJSON(c, &req, false) {
		return
	}

	res, err := s.deps.JoinEarlyAccess.Handle(c.Request.Context(), command.JoinEarlyAccessCommand{
		Name:          req.Name,
		Email:         req.Email,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	handlers.Created(c, earlyAccessResponse{SignupID: res.SignupID, Email: res.Email})
}

func (s *Server) handleRecommend(c *gin.Context) {
	var req questionnaire
	if !bindJSON(c, &req, false) {
		return
	}
	if err := validation.Struct(req); err != nil {
		handlers.FailWithError(c, err)
		return
	}

	res, err := s.deps.RecommendModules.Handle(c.Request.Context(), query.RecommendModulesQuery{Signals: req.signals()})
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	handlers.OK(c, res)
}

func (s *Server) handleListTopUsers(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			handlers.FailWithError(c, shared.ErrInvalidLimit)
			return
		}
		limit = n
	}

	res, err := s.deps.Leaderboard.Handle(c.Request.Context(), query.ListTopUsersQuery{Limit: limit})
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, res, &handlers.ResponseMeta{TotalCount: len(res.Entries)})
}

func (s *Server) handleRefreshLeaderboard(c *gin.Context) {
	snap, err := s.deps.Leaderboard.Refresh(c.Request.Context())
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, query.ListTopUsersResult{
		Entries:   snap.Entries,
		FetchedAt: snap.FetchedAt,
	}, &handlers.ResponseMeta{TotalCount: len(snap.Entries)})
}

// ══════════════════════════════════════════════════════════════════════════════
// ME
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCompleteOnboarding(c *gin.Context) {
	var req onboardingRequest
	if !bindJSON(c, &req, false) {
		return
	}

	res, err := s.deps.CompleteOnboarding.Handle(c.Request.Context(), command.CompleteOnboardingCommand{
		UserID:        handlers.UserID(c),
		Email:         req.Email,
		Name:          req.Name,
		Experience:    req.Experience,
		VibecodeLevel: req.VibecodeLevel,
		DreamProject:  req.DreamProject,
		Path:          req.Path,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}

	handlers.Created(c, onboardingResponse{
		UserID:         res.Profile.ID.String(),
		DisplayName:    res.Profile.DisplayName,
		LearningPath:   res.Profile.LearningPath,
		ClassifiedPath: res.ClassifiedPath,
		Modules:        res.Recommendation.Modules,
		Method:         string(res.Recommendation.Method),
	})
}

func (s *Server) handleGetProgress(c *gin.Context) {
	res, err := s.deps.GetProgress.Handle(c.Request.Context(), query.GetProgressQuery{UserID: handlers.UserID(c)})
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	handlers.OK(c, res)
}

func (s *Server) handleGetDashboard(c *gin.Context) {
	res, err := s.deps.GetDashboard.Handle(c.Request.Context(), query.GetDashboardQuery{UserID: handlers.UserID(c)})
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	handlers.OK(c, res)
}

func (s *Server) handleGetModuleProgress(c *gin.Context) {
	res, err := s.deps.GetModuleProgress.Handle(c.Request.Context(), query.GetModuleProgressQuery{
		UserID:   handlers.UserID(c),
		ModuleID: c.Param("moduleId"),
	})
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	handlers.OK(c, res)
}

func (s *Server) handleToggleChapter(c *gin.Context) {
	var req toggleRequest
	if !bindJSON(c, &req, true) {
		return
	}

	input := saga.ChapterToggleInput{
		UserID:        handlers.UserID(c),
		ModuleID:      c.Param("moduleId"),
		ChapterID:     c.Param("chapterId"),
		ChapterPoints: req.ChapterPoints,
		CorrelationID: correlationID(c),
	}
	if _, ok := s.deps.Catalog.Chapter(course.ModuleID(input.ModuleID), course.ChapterID(input.ChapterID)); !ok {
		handlers.FailWithError(c, shared.ErrChapterNotFound)
		return
	}

	state, err := s.deps.ToggleChapter.Run(c.Request.Context(), input)
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}

	res := state.Result()
	handlers.OK(c, toggleResponse{
		ModuleID:  input.ModuleID,
		ChapterID: input.ChapterID,
		Completed: res.Completed,
		VibeCoins: res.VibeCoins,
		Delta:     res.Delta,
		Progress:  res.Progress,
	})
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req, false) {
		return
	}

	res, err := s.deps.UpdateDisplayName.Handle(c.Request.Context(), command.UpdateDisplayNameCommand{
		UserID:        handlers.UserID(c),
		DisplayName:   req.DisplayName,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	handlers.OK(c, profileResponse{DisplayName: res.DisplayName, Changed: res.Changed})
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	err := s.deps.DeleteAccount.Handle(c.Request.Context(), command.DeleteAccountCommand{
		UserID:        handlers.UserID(c),
		CorrelationID: correlationID(c),
	})
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleReconcileAll(c *gin.Context) {
	res, err := s.deps.ReconcileCoins.HandleAll(c.Request.Context())
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}
	handlers.OK(c, reconcileResponse{
		Scanned:    res.Scanned,
		Repaired:   res.Repaired,
		Failed:     res.Failed,
		DurationMs: res.Duration.Milliseconds(),
	})
}
