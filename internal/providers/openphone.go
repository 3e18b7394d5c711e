package providers

import (
	"encoding/json"
	"strings"
	"time"

	"comms-platform/internal/comms"
)

// OpenPhoneParser decodes OpenPhone v3 webhooks.
//
// OpenPhone wraps every event in an envelope whose "type" field is
// dot-delimited ("call.completed", "call.recording.completed",
// "message.received", "message.delivered") with the object nested under
// data.object.

type OpenPhoneParser struct {
	clock func() time.Time
}

func NewOpenPhoneParser() *OpenPhoneParser {
	return &OpenPhoneParser{clock: time.Now}
}

func (p *OpenPhoneParser) Name() string { return "openphone" }

type openPhoneEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
	CreatedAt string `json:"createdAt"`
}

type openPhoneCall struct {
	Direction string   `json:"direction"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Status    string   `json:"status"`
	Duration  int      `json:"duration"`
	CreatedAt string   `json:"createdAt"`
	Media     []struct {
		URL string `json:"url"`
	} `json:"media"`
	Voicemail *struct {
		Transcription string `json:"transcription"`
	} `json:"voicemail"`
	Summary string `json:"summary"`
}

type openPhoneMessage struct {
	Direction string   `json:"direction"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Body      string   `json:"body"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"createdAt"`
}

func (p *OpenPhoneParser) Parse(raw []byte) (comms.Communication, error) {
	var env openPhoneEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return comms.Communication{}, &UnrecognizedEventError{Provider: p.Name(), Event: "malformed json"}
	}

	now := p.clock().UTC()

	switch eventCategory(env.Type) {
	case "call":
		var call openPhoneCall
		// Best effort: a missing or partial object still yields a degraded record.
		_ = json.Unmarshal(env.Data.Object, &call)

		dir := parseDirection(call.Direction)
		c := comms.Communication{
			Type:            comms.TypeCall,
			Direction:       dir,
			Participants:    phoneParticipants(dir, counterpart(dir, call.From, call.To), line(dir, call.From, call.To), true),
			Timestamp:       coerceTimestamp(firstNonEmpty(call.CreatedAt, env.CreatedAt), now),
			DurationSeconds: call.Duration,
			Subtype:         p.callSubtype(env.Type, call),
		}
		if len(call.Media) > 0 {
			c.RecordingURL = call.Media[0].URL
		}
		vm := ""
		if call.Voicemail != nil {
			vm = call.Voicemail.Transcription
		}
		c.Content = firstNonEmpty(call.Summary, vm)
		return c, nil

	case "message":
		var msg openPhoneMessage
		_ = json.Unmarshal(env.Data.Object, &msg)

		dir := parseDirection(msg.Direction)
		to := ""
		if len(msg.To) > 0 {
			to = msg.To[0]
		}
		return comms.Communication{
			Type:         comms.TypeSMS,
			Subtype:      comms.SubtypeSMSMessage,
			Direction:    dir,
			Participants: phoneParticipants(dir, counterpart(dir, msg.From, to), line(dir, msg.From, to), false),
			Timestamp:    coerceTimestamp(firstNonEmpty(msg.CreatedAt, env.CreatedAt), now),
			Content:      firstNonEmpty(msg.Body, msg.Text),
		}, nil

	default:
		return comms.Communication{}, &UnrecognizedEventError{Provider: p.Name(), Event: env.Type}
	}
}

func (p *OpenPhoneParser) callSubtype(eventType string, call openPhoneCall) comms.Subtype {
	t := strings.ToLower(eventType)
	if strings.Contains(t, "voicemail") || call.Voicemail != nil {
		return comms.SubtypeVoicemail
	}
	if call.Status != "" {
		return callOutcomeSubtype(call.Status)
	}
	if strings.HasSuffix(t, ".completed") {
		return comms.SubtypeAnsweredCall
	}
	return comms.SubtypeOther
}

// counterpart returns the external party: from on inbound, to on outbound.
func counterpart(dir comms.Direction, from, to string) string {
	if dir == comms.DirectionOutbound {
		return to
	}
	return from
}

// line returns our own number: to on inbound, from on outbound.
func line(dir comms.Direction, from, to string) string {
	if dir == comms.DirectionOutbound {
		return from
	}
	return to
}
