// Package providers contains per-provider webhook decoders that produce the
// canonical Communication record.
//
// Rules:
// - No provider payload shape may leak past this package; callers only see
//   comms.Communication.
// - Parsers throw only for a wholly unrecognized event category
//   (UnrecognizedEventError). Missing optional fields degrade to defaults.
package providers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"comms-platform/internal/comms"
)

// Parser decodes one provider's raw webhook payload.
type Parser interface {
	Name() string
	Parse(raw []byte) (comms.Communication, error)
}

// UnrecognizedEventError is the only fatal parse outcome: the payload does
// not belong to any event category the parser knows.
type UnrecognizedEventError struct {
	Provider string
	Event    string
}

func (e *UnrecognizedEventError) Error() string {
	return fmt.Sprintf("providers: %s: unrecognized event category %q", e.Provider, e.Event)
}

// Registry maps a service name to its parser.
type Registry struct {
	parsers map[string]Parser
}

func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[string]Parser, len(parsers))}
	for _, p := range parsers {
		r.parsers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(service string) (Parser, bool) {
	p, ok := r.parsers[strings.ToLower(strings.TrimSpace(service))]
	return p, ok
}

func (r *Registry) Services() []string {
	out := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		out = append(out, name)
	}
	return out
}

// Default returns the registry with all supported providers.
func Default() *Registry {
	return NewRegistry(NewJustCallParser(), NewOpenPhoneParser(), NewCallScribeParser())
}

/* ===================== shared decoding helpers ===================== */

// parseDirection maps provider direction vocabularies, defaulting to inbound
// rather than failing; most webhook traffic is inbound and a wrong default
// is recoverable while a dropped webhook is not.
func parseDirection(v string) comms.Direction {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "outbound", "outgoing", "out":
		return comms.DirectionOutbound
	default:
		return comms.DirectionInbound
	}
}

// callOutcomeSubtype maps provider call-outcome vocabularies onto the fixed
// subtype set. Unrecognized values land on OTHER, never on an error.
func callOutcomeSubtype(v string) comms.Subtype {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "answered", "completed", "connected", "inprogress", "in-progress":
		return comms.SubtypeAnsweredCall
	case "missed", "no-answer", "noanswer", "unanswered", "busy", "abandoned", "canceled", "cancelled":
		return comms.SubtypeMissedCall
	case "voicemail", "vm", "voicemail_left":
		return comms.SubtypeVoicemail
	default:
		return comms.SubtypeOther
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// coerceTimestamp normalizes provider timestamps to an absolute instant.
// Accepts RFC3339 variants, a handful of common layouts, and unix epoch in
// seconds or milliseconds. Unparseable input defaults to now.
func coerceTimestamp(v any, now time.Time) time.Time {
	switch t := v.(type) {
	case nil:
		return now
	case float64:
		return epochToTime(int64(t))
	case int64:
		return epochToTime(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return now
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochToTime(n)
		}
		return now
	default:
		return now
	}
}

func epochToTime(n int64) time.Time {
	// Heuristic: values past the year ~33658 in seconds are milliseconds.
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// firstNonEmpty implements the fixed content priority order: callers pass
// candidates as (notes, AI summary, transcript, voicemail transcription).
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return strings.TrimSpace(c)
		}
	}
	return ""
}

// phoneParticipants builds the ordered participant list for a two-party
// communication, emitting the unknown placeholder when neither side is known.
func phoneParticipants(dir comms.Direction, contact, line string, call bool) []comms.Participant {
	contact = strings.TrimSpace(contact)
	line = strings.TrimSpace(line)
	if contact == "" && line == "" {
		return []comms.Participant{comms.UnknownParticipant()}
	}

	contactRole, lineRole := comms.RoleSender, comms.RoleReceiver
	if call {
		contactRole, lineRole = comms.RoleCaller, comms.RoleCallee
	}
	if dir == comms.DirectionOutbound {
		contactRole, lineRole = lineRole, contactRole
	}

	var out []comms.Participant
	if contact != "" {
		out = append(out, comms.Participant{Type: comms.ParticipantPhone, Value: contact, Role: contactRole})
	}
	if line != "" {
		out = append(out, comms.Participant{Type: comms.ParticipantPhone, Value: line, Role: lineRole})
	}
	return out
}
