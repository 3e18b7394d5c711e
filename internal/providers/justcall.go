package providers

import (
	"encoding/json"
	"strings"
	"time"

	"comms-platform/internal/comms"
)

// JustCallParser decodes JustCall call and SMS webhooks.
//
// JustCall does not carry an explicit event-type field on older webhook
// versions, so classification is structural: an sms_info block means SMS,
// a call_info block (or call_duration) means a call. Newer payloads carry
// a dot-delimited "type" such as "call.completed" or "sms.received".

type JustCallParser struct {
	clock func() time.Time
}

func NewJustCallParser() *JustCallParser {
	return &JustCallParser{clock: time.Now}
}

func (p *JustCallParser) Name() string { return "justcall" }

type justCallPayload struct {
	Type           string `json:"type"`
	Direction      string `json:"direction"`
	ContactNumber  string `json:"contact_number"`
	ContactName    string `json:"contact_name"`
	JustCallNumber string `json:"justcall_number"`
	Datetime       string `json:"datetime"`
	CallDuration   int    `json:"call_duration"`

	SMSInfo *struct {
		Body string `json:"body"`
	} `json:"sms_info"`

	CallInfo *struct {
		Type          string `json:"type"`
		Disposition   string `json:"disposition"`
		RecordingURL  string `json:"recording_url"`
		Notes         string `json:"notes"`
		AISummary     string `json:"iq_summary"`
		Transcription string `json:"transcription"`
		VoicemailTranscription string `json:"voicemail_transcription"`
	} `json:"call_info"`
}

func (p *JustCallParser) Parse(raw []byte) (comms.Communication, error) {
	var body justCallPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		return comms.Communication{}, &UnrecognizedEventError{Provider: p.Name(), Event: "malformed json"}
	}

	now := p.clock().UTC()
	dir := parseDirection(body.Direction)

	switch {
	case p.isSMS(body):
		content := ""
		if body.SMSInfo != nil {
			content = strings.TrimSpace(body.SMSInfo.Body)
		}
		return comms.Communication{
			Type:         comms.TypeSMS,
			Subtype:      comms.SubtypeSMSMessage,
			Direction:    dir,
			Participants: phoneParticipants(dir, body.ContactNumber, body.JustCallNumber, false),
			Timestamp:    coerceTimestamp(body.Datetime, now),
			Content:      content,
		}, nil

	case p.isCall(body):
		c := comms.Communication{
			Type:            comms.TypeCall,
			Direction:       dir,
			Participants:    phoneParticipants(dir, body.ContactNumber, body.JustCallNumber, true),
			Timestamp:       coerceTimestamp(body.Datetime, now),
			DurationSeconds: body.CallDuration,
			Subtype:         comms.SubtypeOther,
		}
		if info := body.CallInfo; info != nil {
			c.Subtype = callOutcomeSubtype(firstNonEmpty(info.Type, info.Disposition))
			c.RecordingURL = info.RecordingURL
			c.Content = firstNonEmpty(info.Notes, info.AISummary, info.Transcription, info.VoicemailTranscription)
		}
		return c, nil

	default:
		return comms.Communication{}, &UnrecognizedEventError{Provider: p.Name(), Event: body.Type}
	}
}

func (p *JustCallParser) isSMS(body justCallPayload) bool {
	if body.SMSInfo != nil {
		return true
	}
	return eventCategory(body.Type) == "sms" || eventCategory(body.Type) == "message"
}

func (p *JustCallParser) isCall(body justCallPayload) bool {
	if body.CallInfo != nil || body.CallDuration > 0 {
		return true
	}
	return eventCategory(body.Type) == "call"
}

// eventCategory extracts the leading segment of a possibly dot-delimited
// event type ("call.completed" -> "call").
func eventCategory(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '.'); i >= 0 {
		return t[:i]
	}
	return t
}
