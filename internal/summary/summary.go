// Package summary turns a screening transcript into the short structured
// write-up stored alongside the session record.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/lmeynard/screenline/internal/screening"
)

// Request carries everything the generator needs about a finished call.
type Request struct {
	ProjectTitle  string
	CandidateName string
	Verification  screening.VerificationType
	Transcript    []screening.TranscriptEntry
}

// Generator produces the AI summary. Failures are non-fatal to completion;
// callers persist an empty summary instead.
type Generator interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// Noop is used when no LLM key is configured.
type Noop struct{}

func (Noop) Summarize(context.Context, Request) (string, error) { return "", nil }

// BuildPrompt renders the analysis instructions for one interview type.
func BuildPrompt(req Request) string {
	var b strings.Builder
	switch req.Verification {
	case screening.VerificationProfile:
		b.WriteString("You are reviewing an identity-verification interview for a community profile on a co-housing platform.\n\n")
		fmt.Fprintf(&b, "## CONTEXT\nCandidate: %s\n\n", req.CandidateName)
		b.WriteString(transcriptSection(req.Transcript))
		b.WriteString("\n## INSTRUCTIONS\nWrite a short summary (2-3 paragraphs):\n")
		b.WriteString("1. Who the person is and how authentic they come across\n")
		b.WriteString("2. Their motivations and situation\n")
		b.WriteString("3. Overall impression\n")
	case screening.VerificationProject, screening.VerificationCustom:
		b.WriteString("You are reviewing a verification interview for a co-housing project.\n\n")
		fmt.Fprintf(&b, "## CONTEXT\nProject lead: %s\n\n", req.CandidateName)
		b.WriteString(transcriptSection(req.Transcript))
		b.WriteString("\n## INSTRUCTIONS\nWrite a short summary (2-3 paragraphs):\n")
		b.WriteString("1. Nature and maturity of the project\n")
		b.WriteString("2. Governance and how newcomers are welcomed\n")
		b.WriteString("3. Overall impression of the project's credibility\n")
	default:
		b.WriteString("You are an HR assistant reviewing a pre-screening interview for a co-housing project.\n\n")
		fmt.Fprintf(&b, "## CONTEXT\nProject: %s\nCandidate: %s\n\n", orUnspecified(req.ProjectTitle), req.CandidateName)
		b.WriteString(transcriptSection(req.Transcript))
		b.WriteString("\n## INSTRUCTIONS\nWrite a structured summary in 3-5 short paragraphs:\n")
		b.WriteString("1. General impression and motivation\n")
		b.WriteString("2. Relevant experience and skills\n")
		b.WriteString("3. Values and fit with the project\n")
		b.WriteString("4. Points to probe further\n")
		b.WriteString("5. Recommendation (positive / neutral / needs digging)\n")
	}
	b.WriteString("\nStay factual and kind. The project organizer will read this.\n")
	return b.String()
}

func transcriptSection(transcript []screening.TranscriptEntry) string {
	var b strings.Builder
	b.WriteString("## TRANSCRIPT\n")
	for _, entry := range transcript {
		speaker := "INTERVIEWER"
		if entry.Role == "user" {
			speaker = "CANDIDATE"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, entry.Message)
	}
	return b.String()
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unspecified"
	}
	return s
}
