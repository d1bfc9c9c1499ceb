package screening

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultQuestions is the stock interview script used when an operator has
// not authored one.
var DefaultQuestions = []Question{
	{
		ID:       "motivation",
		Text:     "What draws you to this co-housing project?",
		FollowUp: "If the answer is vague, ask for concrete motivations.",
		Required: true,
		Order:    0,
	},
	{
		ID:       "experience",
		Text:     "Have you lived in a community or shared-housing setting before?",
		FollowUp: "If yes, ask what worked well and what was hard.",
		Required: true,
		Order:    1,
	},
	{
		ID:       "values",
		Text:     "Which values matter most to you in community life?",
		Required: true,
		Order:    2,
	},
	{
		ID:       "contribution",
		Text:     "How do you imagine contributing to the project day to day?",
		Required: true,
		Order:    3,
	},
	{
		ID:       "concerns",
		Text:     "Is there anything that worries you, or questions you would like to ask?",
		Required: false,
		Order:    4,
	},
}

// BuildSystemPrompt renders the interviewer instructions for one candidate.
// Questions are asked in order; required ones must all be covered.
func BuildSystemPrompt(cfg Config, candidateName string) string {
	if strings.TrimSpace(cfg.SystemPromptTemplate) != "" {
		return strings.NewReplacer(
			"{{title}}", cfg.Title,
			"{{candidate_name}}", candidateName,
			"{{questions}}", renderQuestions(cfg.Questions),
		).Replace(cfg.SystemPromptTemplate)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a warm, professional voice assistant running a pre-screening interview for the project %q.\n\n", cfg.Title)
	b.WriteString("## YOUR ROLE\n")
	b.WriteString("- Speak naturally and kindly, one question at a time, in order.\n")
	b.WriteString("- Listen to answers and ask a follow-up when a reply is too vague.\n")
	b.WriteString("- Do not judge answers; you are collecting information.\n")
	b.WriteString("- Keep a conversational tone, never an interrogation.\n\n")
	b.WriteString("## QUESTIONS TO ASK (in order)\n")
	b.WriteString(renderQuestions(cfg.Questions))
	b.WriteString("\n## RULES\n")
	b.WriteString("- Ask every required question.\n")
	b.WriteString("- Reassure the candidate if they seem uncomfortable.\n")
	b.WriteString("- After the last question, thank them and say the organizer will follow up.\n")
	b.WriteString("- Never answer project questions yourself; defer to the organizer.\n")
	b.WriteString("- Keep your own turns short, two or three sentences at most.\n")
	return b.String()
}

// FirstMessage is the opening line the interviewer speaks once connected.
func FirstMessage(cfg Config, candidateName string) string {
	return fmt.Sprintf(
		"Hello %s! I am the voice assistant for the project %q. I will ask you a few questions to get to know you better. Are you ready to start?",
		candidateName, cfg.Title,
	)
}

func renderQuestions(questions []Question) string {
	ordered := make([]Question, len(questions))
	copy(ordered, questions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var b strings.Builder
	for i, q := range ordered {
		fmt.Fprintf(&b, "%d. %s", i+1, q.Text)
		if q.Required {
			b.WriteString(" (required)")
		}
		if strings.TrimSpace(q.FollowUp) != "" {
			fmt.Fprintf(&b, "\n   [Follow up if needed: %s]", q.FollowUp)
		}
		b.WriteString("\n")
	}
	return b.String()
}
