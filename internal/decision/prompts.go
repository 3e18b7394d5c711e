package decision

import (
	"fmt"
	"strings"
)

// Workflow prompt identifiers. These are the values recorded in
// prompt_runs.workflow_prompt_id.
const (
	TemplateSummaryUpdate   = "summary_update"
	TemplateActionDetection = "action_detection_execution"
	TemplateDisambiguation  = "project_disambiguation"
)

// SummaryUpdateInput carries everything stage 1 needs.
type SummaryUpdateInput struct {
	ProjectName     string
	Address         string
	CurrentSummary  string
	CurrentNextStep string
	TrackBasePrompt string
	NewContent      string

	// DisambiguationNote, when set, tells the engine the content may only
	// partially pertain to this project (fallback mode).
	DisambiguationNote string
}

// BuildSummaryUpdate renders the stage-1 request. The engine must answer
// with a JSON object {"summary": ..., "next_step": ...}.
func BuildSummaryUpdate(in SummaryUpdateInput) Request {
	var sys strings.Builder
	sys.WriteString("You maintain a running summary of a customer project based on its communications.\n")
	if in.TrackBasePrompt != "" {
		sys.WriteString(in.TrackBasePrompt)
		sys.WriteString("\n")
	}
	sys.WriteString(`Respond with a JSON object: {"summary": "<updated summary>", "next_step": "<single next step>"}.`)

	var usr strings.Builder
	fmt.Fprintf(&usr, "Project: %s\n", in.ProjectName)
	if in.Address != "" {
		fmt.Fprintf(&usr, "Address: %s\n", in.Address)
	}
	fmt.Fprintf(&usr, "Current summary:\n%s\n\n", orNone(in.CurrentSummary))
	fmt.Fprintf(&usr, "Current next step: %s\n\n", orNone(in.CurrentNextStep))
	if in.DisambiguationNote != "" {
		fmt.Fprintf(&usr, "Note: %s\n\n", in.DisambiguationNote)
	}
	fmt.Fprintf(&usr, "New communications:\n%s\n", in.NewContent)

	return Request{
		Template:    TemplateSummaryUpdate,
		System:      sys.String(),
		User:        usr.String(),
		Temperature: 0.2,
	}
}

// ActionDetectionInput carries the stage-2 context: the freshly updated
// project plus track roles and milestone instructions.
type ActionDetectionInput struct {
	ProjectName           string
	Summary               string
	NextStep              string
	TrackBasePrompt       string
	TrackRoles            map[string]string
	MilestoneInstructions []string
	NewContent            string
	ReminderReason        string
}

// BuildActionDetection renders the stage-2 request. Proposed actions come
// back as tool calls against the provided action tools.
func BuildActionDetection(in ActionDetectionInput, tools []ToolSpec) Request {
	var sys strings.Builder
	sys.WriteString("You decide which follow-up actions a project needs after new communications.\n")
	if in.TrackBasePrompt != "" {
		sys.WriteString(in.TrackBasePrompt)
		sys.WriteString("\n")
	}
	if len(in.TrackRoles) > 0 {
		sys.WriteString("Participant roles:\n")
		for role, desc := range in.TrackRoles {
			fmt.Fprintf(&sys, "- %s: %s\n", role, desc)
		}
	}
	for _, mi := range in.MilestoneInstructions {
		fmt.Fprintf(&sys, "Milestone guidance: %s\n", mi)
	}
	sys.WriteString("Propose zero or more actions via the provided tools. Use no_action when nothing is needed.")

	var usr strings.Builder
	fmt.Fprintf(&usr, "Project: %s\nSummary:\n%s\n\nNext step: %s\n", in.ProjectName, orNone(in.Summary), orNone(in.NextStep))
	if in.ReminderReason != "" {
		fmt.Fprintf(&usr, "\nThis is a scheduled check: %s\n", in.ReminderReason)
	}
	if in.NewContent != "" {
		fmt.Fprintf(&usr, "\nNew communications:\n%s\n", in.NewContent)
	}

	return Request{
		Template:    TemplateActionDetection,
		System:      sys.String(),
		User:        usr.String(),
		Tools:       tools,
		Temperature: 0.2,
	}
}

// DisambiguationInput fingerprints the candidate projects for one
// cross-project communication.
type DisambiguationInput struct {
	Content      string
	Fingerprints []string // pre-rendered one-line-per-project fingerprints
}

// BuildDisambiguation renders the partition request. The engine must answer
// with a JSON array [{"project_id": ..., "relevant_content": ...}].
func BuildDisambiguation(in DisambiguationInput) Request {
	sys := "You split one communication's content across the projects it pertains to.\n" +
		`Respond with a JSON array: [{"project_id": "<id>", "relevant_content": "<part of the content>"}]. ` +
		"Only include projects the content actually concerns."

	var usr strings.Builder
	usr.WriteString("Open projects:\n")
	for _, f := range in.Fingerprints {
		usr.WriteString("- ")
		usr.WriteString(f)
		usr.WriteByte('\n')
	}
	fmt.Fprintf(&usr, "\nCommunication content:\n%s\n", in.Content)

	return Request{
		Template:    TemplateDisambiguation,
		System:      sys,
		User:        usr.String(),
		Temperature: 0,
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
