package comms

import (
	"strings"
	"testing"
	"time"
)

func TestTranscriptLine(t *testing.T) {
	ts := time.Date(2026, 2, 10, 15, 4, 0, 0, time.UTC)
	c := Communication{
		Type:      TypeSMS,
		Subtype:   SubtypeSMSMessage,
		Direction: DirectionInbound,
		Timestamp: ts,
		Content:   "crew arrives tomorrow at 9",
		Participants: []Participant{
			{Type: ParticipantPhone, Value: "+15550001111", Role: RoleSender},
			{Type: ParticipantPhone, Value: "+15550002222", Role: RoleReceiver},
		},
	}

	line := c.TranscriptLine()
	want := "[2026-02-10T15:04:00Z] inbound SMS/SMS_MESSAGE from +15550001111: crew arrives tomorrow at 9"
	if line != want {
		t.Fatalf("transcript line mismatch:\n got %q\nwant %q", line, want)
	}
}

func TestTranscriptLineWithoutSenderOrContent(t *testing.T) {
	c := Communication{
		Type:      TypeCall,
		Subtype:   SubtypeMissedCall,
		Direction: DirectionOutbound,
		Timestamp: time.Date(2026, 2, 10, 15, 4, 0, 0, time.UTC),
	}

	line := c.TranscriptLine()
	if strings.Contains(line, "from") {
		t.Fatalf("unexpected participant clause: %q", line)
	}
	if strings.Contains(line, ":") && strings.HasSuffix(line, ": ") {
		t.Fatalf("unexpected empty content clause: %q", line)
	}
	if !strings.Contains(line, "outbound CALL/MISSED_CALL") {
		t.Fatalf("missing type clause: %q", line)
	}
}

func TestValidSubtype(t *testing.T) {
	for _, s := range []Subtype{SubtypeAnsweredCall, SubtypeMissedCall, SubtypeVoicemail, SubtypeSMSMessage, SubtypeEmailMessage, SubtypeOther} {
		if !ValidSubtype(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if ValidSubtype("RINGING") {
		t.Fatalf("expected unknown subtype to be invalid")
	}
}

func TestUnknownParticipantPlaceholder(t *testing.T) {
	p := UnknownParticipant()
	if p.Value != "unknown" || p.Role != RoleUnknown {
		t.Fatalf("unexpected placeholder: %+v", p)
	}
}
