package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSyncTime Action = "sync_time"
	ActionReport   Action = "report"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the client to save a single answer.
type AutosaveRequest struct {
	Action           Action  `json:"action"`
	QuestionID       string  `json:"question_id"`
	SelectedChoiceID *string `json:"selected_choice_id,omitempty"`
	TextAnswer       *string `json:"text_answer,omitempty"`
}

// SyncTimeRequest is the client's periodic countdown checkpoint for the
// active section.
type SyncTimeRequest struct {
	Action           Action  `json:"action"`
	SectionID        *string `json:"section_id,omitempty"`
	RemainingSeconds int     `json:"remaining_seconds"`
}

// ReportRequest is sent by the client when a browser security event fires.
type ReportRequest struct {
	Action    Action `json:"action"`
	EventType string `json:"event_type"`
	EventData string `json:"event_data,omitempty"` // JSON string passed through as-is
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError         Event = "error"
	EventSuccess       Event = "success"
	EventPong          Event = "pong"
	EventTimeWarning   Event = "time_warning"
	EventTimeDanger    Event = "time_danger"
	EventTimeExpired   Event = "time_expired"
	EventSecurityState Event = "security_state"
	EventAutoSubmitted Event = "auto_submitted"
)

type AckResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// TimeResponse notifies the client of a countdown threshold crossing.
type TimeResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// SecurityStateResponse echoes the attempt's counters after a report.
type SecurityStateResponse struct {
	Event         Event  `json:"event"`
	Counted       bool   `json:"counted"`
	Warnings      int    `json:"warnings"`
	Violations    int    `json:"violations"`
	AutoSubmitted bool   `json:"auto_submitted"`
	Reason        string `json:"reason,omitempty"`
}

// AutoSubmittedResponse tells the client the attempt was closed server-side.
type AutoSubmittedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
