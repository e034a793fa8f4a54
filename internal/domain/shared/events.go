package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Views and projections react to these instead of
// polling the persistence layer.
const (
	// Profile events
	EventProfileCreated EventType = "profile.created"
	EventProfileRenamed EventType = "profile.renamed"
	EventAccountDeleted EventType = "profile.deleted"

	// Progress events
	EventProgressChanged EventType = "progress.changed"
	EventCoinsReconciled EventType = "progress.coins_reconciled"

	// Leaderboard events
	EventLeaderboardRefreshed EventType = "leaderboard.refreshed"

	// Early access events
	EventEarlyAccessJoined EventType = "early_access.joined"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// Correlation returns the correlation ID, empty when none was set.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// ═══════════════════════════════════════════════════════════════════════════
// Profile Events
// ═══════════════════════════════════════════════════════════════════════════

// ProfileCreatedEvent is emitted when a learner finishes onboarding.
type ProfileCreatedEvent struct {
	BaseEvent
	DisplayName  string `json:"display_name"`
	LearningPath string `json:"learning_path"`
}

// Payload implements Event interface.
func (e ProfileCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"display_name":  e.DisplayName,
		"learning_path": e.LearningPath,
	}
}

// NewProfileCreatedEvent creates a new ProfileCreatedEvent.
func NewProfileCreatedEvent(userID, displayName, learningPath string) ProfileCreatedEvent {
	return ProfileCreatedEvent{
		BaseEvent:    NewBaseEvent(EventProfileCreated, userID),
		DisplayName:  displayName,
		LearningPath: learningPath,
	}
}

// ProfileRenamedEvent is emitted when the display name changes in settings.
type ProfileRenamedEvent struct {
	BaseEvent
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// Payload implements Event interface.
func (e ProfileRenamedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_name": e.OldName,
		"new_name": e.NewName,
	}
}

// NewProfileRenamedEvent creates a new ProfileRenamedEvent.
func NewProfileRenamedEvent(userID, oldName, newName string) ProfileRenamedEvent {
	return ProfileRenamedEvent{
		BaseEvent: NewBaseEvent(EventProfileRenamed, userID),
		OldName:   oldName,
		NewName:   newName,
	}
}

// AccountDeletedEvent is emitted after a profile row was removed.
type AccountDeletedEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e AccountDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewAccountDeletedEvent creates a new AccountDeletedEvent.
func NewAccountDeletedEvent(userID string) AccountDeletedEvent {
	return AccountDeletedEvent{BaseEvent: NewBaseEvent(EventAccountDeleted, userID)}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// ProgressChangedEvent is emitted after a chapter toggle has been persisted.
// It carries the full post-write snapshot so subscribers never re-read.
type ProgressChangedEvent struct {
	BaseEvent
	ModuleID          string              `json:"module_id"`
	ChapterID         string              `json:"chapter_id"`
	Completed         bool                `json:"completed"`
	VibeCoins         int                 `json:"vibe_coins"`
	CompletedChapters map[string][]string `json:"completed_chapters"`
	// Revision is the stored progress revision this snapshot was written at.
	Revision int64 `json:"revision"`
}

// Payload implements Event interface.
func (e ProgressChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"module_id":          e.ModuleID,
		"chapter_id":         e.ChapterID,
		"completed":          e.Completed,
		"vibe_coins":         e.VibeCoins,
		"completed_chapters": e.CompletedChapters,
		"revision":           e.Revision,
	}
}

// WithRevision returns a copy stamped with the stored progress revision.
func (e ProgressChangedEvent) WithRevision(revision int64) ProgressChangedEvent {
	e.Revision = revision
	return e
}

// NewProgressChangedEvent creates a new ProgressChangedEvent.
func NewProgressChangedEvent(userID, moduleID, chapterID string, completed bool, coins int, snapshot map[string][]string) ProgressChangedEvent {
	return ProgressChangedEvent{
		BaseEvent:         NewBaseEvent(EventProgressChanged, userID),
		ModuleID:          moduleID,
		ChapterID:         chapterID,
		Completed:         completed,
		VibeCoins:         coins,
		CompletedChapters: snapshot,
	}
}

// DecodeProgressChanged turns any event of type progress.changed into the
// typed struct. Events that crossed a transport arrive as generic payload
// maps and are decoded through JSON.
func DecodeProgressChanged(event Event) (ProgressChangedEvent, bool) {
	if event.EventType() != EventProgressChanged {
		return ProgressChangedEvent{}, false
	}
	if typed, ok := event.(ProgressChangedEvent); ok {
		return typed, true
	}

	raw, err := json.Marshal(event.Payload())
	if err != nil {
		return ProgressChangedEvent{}, false
	}
	var out ProgressChangedEvent
	if err := json.Unmarshal(raw, &out); err != nil {
		return ProgressChangedEvent{}, false
	}
	out.BaseEvent = BaseEvent{
		Type:        EventProgressChanged,
		Timestamp:   event.OccurredAt(),
		AggregateId: event.AggregateID(),
		Version:     1,
	}
	return out, true
}

// CoinsReconciledEvent is emitted when a stored coin total was repaired.
type CoinsReconciledEvent struct {
	BaseEvent
	Previous int `json:"previous"`
	Current  int `json:"current"`
}

// Payload implements Event interface.
func (e CoinsReconciledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous": e.Previous,
		"current":  e.Current,
	}
}

// NewCoinsReconciledEvent creates a new CoinsReconciledEvent.
func NewCoinsReconciledEvent(userID string, previous, current int) CoinsReconciledEvent {
	return CoinsReconciledEvent{
		BaseEvent: NewBaseEvent(EventCoinsReconciled, userID),
		Previous:  previous,
		Current:   current,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard / Early access
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardRefreshedEvent is emitted after a successful leaderboard fetch.
type LeaderboardRefreshedEvent struct {
	BaseEvent
	Entries int `json:"entries"`
}

// Payload implements Event interface.
func (e LeaderboardRefreshedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"entries": e.Entries}
}

// NewLeaderboardRefreshedEvent creates a new LeaderboardRefreshedEvent.
func NewLeaderboardRefreshedEvent(entries int) LeaderboardRefreshedEvent {
	return LeaderboardRefreshedEvent{
		BaseEvent: NewBaseEvent(EventLeaderboardRefreshed, "leaderboard"),
		Entries:   entries,
	}
}

// EarlyAccessJoinedEvent is emitted for every new early-access signup.
type EarlyAccessJoinedEvent struct {
	BaseEvent
	Name string `json:"name"`
}

// Payload implements Event interface.
func (e EarlyAccessJoinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"name": e.Name}
}

// NewEarlyAccessJoinedEvent creates a new EarlyAccessJoinedEvent.
func NewEarlyAccessJoinedEvent(signupID, name string) EarlyAccessJoinedEvent {
	return EarlyAccessJoinedEvent{
		BaseEvent: NewBaseEvent(EventEarlyAccessJoined, signupID),
		Name:      name,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
