package domain

import "time"

// NotificationType classifies the trail event a notification derives from.
type NotificationType string

const (
	NotificationComment          NotificationType = "comment"
	NotificationMention          NotificationType = "mention"
	NotificationApproval         NotificationType = "approval"
	NotificationChangesRequested NotificationType = "changes_requested"
)

// DecisionNotification is a per-recipient projection of a trail event.
// ReadAt moves only from nil to a timestamp. A set MutedAt with a nil
// MutedUntil means the notification is muted indefinitely.
type DecisionNotification struct {
	ID          string           `json:"id"`
	TenantID    int64            `json:"-"`
	UserID      string           `json:"user_id"`
	DecisionID  string           `json:"decision_id"`
	Type        NotificationType `json:"type"`
	ReferenceID string           `json:"reference_id"`
	Payload     map[string]any   `json:"payload,omitempty"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	MutedAt     *time.Time       `json:"muted_at,omitempty"`
	MutedUntil  *time.Time       `json:"muted_until,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Suppressed reports whether active delivery is muted at the given instant.
// The row itself remains visible in history either way.
func (n DecisionNotification) Suppressed(now time.Time) bool {
	if n.MutedAt == nil {
		return false
	}
	if n.MutedUntil == nil {
		return true
	}
	return n.MutedUntil.After(now)
}

// TrailEvent is the input to notification fan-out: something happened on a
// decision and a set of people should hear about it.
type TrailEvent struct {
	Type       NotificationType
	TenantID   int64
	DecisionID string
	ActorID    string
	OwnerID    string
	Assignees  []string
	Mentions   []string
	Payload    map[string]any
}
