package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SecurityEventType enumerates the proctoring events clients may report.
// Whether an event counts toward the violation threshold is fixed per type,
// never chosen by the client.
type SecurityEventType string

const (
	SecurityEventVisibilityChange SecurityEventType = "VISIBILITY_CHANGE"
	SecurityEventTabSwitch        SecurityEventType = "TAB_SWITCH"
	SecurityEventWindowBlur       SecurityEventType = "WINDOW_BLUR"
	SecurityEventFullscreenExit   SecurityEventType = "FULLSCREEN_EXIT"
	SecurityEventDevtoolsOpen     SecurityEventType = "DEVTOOLS_OPEN"
	SecurityEventCopyAttempt      SecurityEventType = "COPY_ATTEMPT"
	SecurityEventPasteAttempt     SecurityEventType = "PASTE_ATTEMPT"
	SecurityEventRightClick       SecurityEventType = "RIGHT_CLICK"
)

// securityEventClassification maps each known event type to its
// counts-as-violation flag. Copy/paste and right-click attempts are recorded
// for audit but do not advance the counters.
var securityEventClassification = map[SecurityEventType]bool{
	SecurityEventVisibilityChange: true,
	SecurityEventTabSwitch:        true,
	SecurityEventWindowBlur:       true,
	SecurityEventFullscreenExit:   true,
	SecurityEventDevtoolsOpen:     true,
	SecurityEventCopyAttempt:      false,
	SecurityEventPasteAttempt:     false,
	SecurityEventRightClick:       false,
}

// Known reports whether t is a recognized event type.
func (t SecurityEventType) Known() bool {
	_, ok := securityEventClassification[t]
	return ok
}

// CountsAsViolation returns the fixed classification for t.
func (t SecurityEventType) CountsAsViolation() bool {
	return securityEventClassification[t]
}

// SecurityEvent is one record of the append-only security log. The log is
// never truncated or reordered.
type SecurityEvent struct {
	ID          int64             `json:"id"`
	AttemptID   uuid.UUID         `json:"attempt_id"`
	Type        SecurityEventType `json:"type"`
	IsViolation bool              `json:"is_violation"`
	Data        json.RawMessage   `json:"data,omitempty"`
	RecordedAt  time.Time         `json:"recorded_at"`
}

// ReportSecurityEventRequest is the client payload for a proctoring event.
type ReportSecurityEventRequest struct {
	Type SecurityEventType `json:"type" binding:"required"`
	Data json.RawMessage   `json:"data"`
}

// SecurityEventResult is returned to the reporting client.
type SecurityEventResult struct {
	Violations    int    `json:"violations"`
	Warnings      int    `json:"warnings"`
	AutoSubmitted bool   `json:"auto_submitted"`
	Reason        string `json:"reason,omitempty"`
}
