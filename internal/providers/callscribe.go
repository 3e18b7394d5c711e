package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"comms-platform/internal/comms"
)

// CallScribeParser decodes AI call-assistant webhooks (post-call analysis
// with transcript turns and an AI-generated summary).
//
// CallScribe retries aggressively on non-2xx responses, so this parser
// guarantees a Communication even on internal failure: rather than erroring,
// it synthesizes a degraded CALL/OTHER record tagged with the failure detail
// so the webhook caller always gets a success response.

type CallScribeParser struct {
	clock func() time.Time
}

func NewCallScribeParser() *CallScribeParser {
	return &CallScribeParser{clock: time.Now}
}

func (p *CallScribeParser) Name() string { return "callscribe" }

type callScribePayload struct {
	Event string `json:"event"`
	Call  struct {
		Direction    string `json:"direction"`
		FromNumber   string `json:"from_number"`
		ToNumber     string `json:"to_number"`
		StartedAt    any    `json:"started_at"`
		DurationSecs int    `json:"duration_seconds"`
		Disposition  string `json:"disposition"`
		RecordingURL string `json:"recording_url"`
		Summary      string `json:"summary"`
		Transcript   []struct {
			Speaker string `json:"speaker"`
			Text    string `json:"text"`
		} `json:"transcript"`
		Voicemail struct {
			Transcription string `json:"transcription"`
		} `json:"voicemail"`
	} `json:"call"`
}

func (p *CallScribeParser) Parse(raw []byte) (c comms.Communication, err error) {
	now := p.clock().UTC()

	defer func() {
		if r := recover(); r != nil {
			c = p.fallback(now, fmt.Sprintf("parser panic: %v", r))
			err = nil
		}
	}()

	var body callScribePayload
	if jsonErr := json.Unmarshal(raw, &body); jsonErr != nil {
		return p.fallback(now, fmt.Sprintf("malformed payload: %v", jsonErr)), nil
	}

	call := body.Call
	dir := parseDirection(call.Direction)

	c = comms.Communication{
		Type:            comms.TypeCall,
		Subtype:         callOutcomeSubtype(call.Disposition),
		Direction:       dir,
		Participants:    phoneParticipants(dir, counterpart(dir, call.FromNumber, call.ToNumber), line(dir, call.FromNumber, call.ToNumber), true),
		Timestamp:       coerceTimestamp(call.StartedAt, now),
		DurationSeconds: call.DurationSecs,
		RecordingURL:    call.RecordingURL,
		Content:         firstNonEmpty(call.Summary, renderTranscript(body), call.Voicemail.Transcription),
	}
	return c, nil
}

func (p *CallScribeParser) fallback(now time.Time, detail string) comms.Communication {
	return comms.Communication{
		Type:         comms.TypeCall,
		Subtype:      comms.SubtypeOther,
		Direction:    comms.DirectionInbound,
		Participants: []comms.Participant{comms.UnknownParticipant()},
		Timestamp:    now,
		Content:      "[callscribe ingest degraded] " + detail,
	}
}

func renderTranscript(body callScribePayload) string {
	if len(body.Call.Transcript) == 0 {
		return ""
	}
	var b strings.Builder
	for i, turn := range body.Call.Transcript {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := turn.Speaker
		if speaker == "" {
			speaker = "unknown"
		}
		fmt.Fprintf(&b, "%s: %s", speaker, turn.Text)
	}
	return b.String()
}
