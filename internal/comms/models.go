package comms

import (
	"fmt"
	"strings"
	"time"
)

// Communication is the canonical, provider-agnostic record of one inbound
// or outbound call, SMS or email.
//
// Invariants:
// - Exactly one Type/Subtype pair from the fixed vocabulary below;
//   unrecognized provider values map to SubtypeOther, never to an error.
// - Content is immutable once persisted.
// - ProjectID may be assigned after the fact (post-disambiguation).
//
// Multi-tenant invariant: CompanyID is required on every row.

type Communication struct {
	ID        string `json:"id" db:"id"`
	CompanyID string `json:"company_id" db:"company_id"`

	Type      CommType  `json:"type" db:"type"`
	Subtype   Subtype   `json:"subtype" db:"subtype"`
	Direction Direction `json:"direction" db:"direction"`

	// Participants is ordered; the first entry is the primary counterpart
	// (sender for inbound, receiver for outbound).
	Participants []Participant `json:"participants" db:"participants"`

	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
	DurationSeconds int       `json:"duration,omitempty" db:"duration"`
	Content         string    `json:"content,omitempty" db:"content"`
	RecordingURL    string    `json:"recording_url,omitempty" db:"recording_url"`

	ProjectID string `json:"project_id,omitempty" db:"project_id"`
	BatchID   string `json:"batch_id,omitempty" db:"batch_id"`

	// MultiProjectPotential marks a communication that may span several
	// open projects and must go through disambiguation before processing.
	MultiProjectPotential bool `json:"multi_project_potential" db:"multi_project_potential"`

	RawWebhookID string `json:"raw_webhook_id" db:"raw_webhook_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type CommType string

const (
	TypeCall  CommType = "CALL"
	TypeSMS   CommType = "SMS"
	TypeEmail CommType = "EMAIL"
)

type Subtype string

const (
	SubtypeAnsweredCall Subtype = "ANSWERED_CALL"
	SubtypeMissedCall   Subtype = "MISSED_CALL"
	SubtypeVoicemail    Subtype = "VOICEMAIL"
	SubtypeSMSMessage   Subtype = "SMS_MESSAGE"
	SubtypeEmailMessage Subtype = "EMAIL_MESSAGE"
	SubtypeOther        Subtype = "OTHER"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Participant identifies one party on a communication.
type Participant struct {
	Type  ParticipantType `json:"type"`
	Value string          `json:"value"`
	Role  ParticipantRole `json:"role"`
}

type ParticipantType string

const (
	ParticipantPhone ParticipantType = "phone"
	ParticipantEmail ParticipantType = "email"
)

type ParticipantRole string

const (
	RoleSender   ParticipantRole = "sender"
	RoleReceiver ParticipantRole = "receiver"
	RoleCaller   ParticipantRole = "caller"
	RoleCallee   ParticipantRole = "callee"
	RoleUnknown  ParticipantRole = "unknown"
)

// UnknownParticipant is the placeholder emitted when a parser cannot
// identify any party. Parsers must emit this rather than fail.
func UnknownParticipant() Participant {
	return Participant{Type: ParticipantPhone, Value: "unknown", Role: RoleUnknown}
}

// ValidSubtype reports whether s belongs to the fixed vocabulary.
func ValidSubtype(s Subtype) bool {
	switch s {
	case SubtypeAnsweredCall, SubtypeMissedCall, SubtypeVoicemail,
		SubtypeSMSMessage, SubtypeEmailMessage, SubtypeOther:
		return true
	default:
		return false
	}
}

// TranscriptLine renders one communication for inclusion in a batch
// transcript fed to the decision engine.
func (c Communication) TranscriptLine() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s/%s", c.Timestamp.UTC().Format(time.RFC3339), c.Direction, c.Type, c.Subtype)
	if from := c.participantByRoles(RoleSender, RoleCaller); from != "" {
		fmt.Fprintf(&b, " from %s", from)
	}
	if c.Content != "" {
		b.WriteString(": ")
		b.WriteString(c.Content)
	}
	return b.String()
}

func (c Communication) participantByRoles(roles ...ParticipantRole) string {
	for _, p := range c.Participants {
		for _, r := range roles {
			if p.Role == r {
				return p.Value
			}
		}
	}
	return ""
}
