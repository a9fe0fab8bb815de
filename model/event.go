package model

// EventType is the kind of a SkillEvent.
type EventType string

const (
	EventStart          EventType = "start"
	EventEnd            EventType = "end"
	EventStream         EventType = "stream"
	EventLog            EventType = "log"
	EventStructuredData EventType = "structured_data"
)

// EndStatus is carried only by end events.
type EndStatus string

const (
	StatusOK        EndStatus = "ok"
	StatusFailed    EndStatus = "failed"
	StatusCancelled EndStatus = "cancelled"
)

// Structured data keys.
const (
	KeyFilterErrorInfo  = "filterErrorInfo"
	KeySources          = "sources"
	KeyRelatedQuestions = "relatedQuestions"
	KeyTokenUsage       = "tokenUsage"
)

// SpanKind says what produced a span.
type SpanKind string

const (
	SpanScheduler SpanKind = "scheduler"
	SpanSkill     SpanKind = "skill"
	SpanTool      SpanKind = "tool"
	SpanModel     SpanKind = "model"
)

// SkillMeta identifies the skill or tool behind an event.
type SkillMeta struct {
	Name         string   `json:"name"`
	Kind         SpanKind `json:"kind"`
	ParentSpanID string   `json:"parentSpanId,omitempty"`
}

// SkillEvent is the wire record streamed to clients.
type SkillEvent struct {
	Event             EventType `json:"event"`
	TurnID            string    `json:"turnId"`
	SpanID            string    `json:"spanId"`
	Content           string    `json:"content,omitempty"`
	SkillMeta         SkillMeta `json:"skillMeta"`
	StructuredDataKey string    `json:"structuredDataKey,omitempty"`
	Status            EndStatus `json:"status,omitempty"`
	Error             string    `json:"error,omitempty"`
}
