package screening

import (
	"strings"
	"testing"
)

func TestBuildSystemPromptDefault(t *testing.T) {
	cfg := Config{Title: "Les Jardins", Questions: DefaultQuestions}
	prompt := BuildSystemPrompt(cfg, "Ada")

	if !strings.Contains(prompt, `"Les Jardins"`) {
		t.Fatalf("prompt missing project title:\n%s", prompt)
	}
	if !strings.Contains(prompt, "1. What draws you to this co-housing project? (required)") {
		t.Fatalf("prompt missing first question:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Follow up if needed") {
		t.Fatalf("prompt missing follow-up hint")
	}
}

func TestBuildSystemPromptTemplate(t *testing.T) {
	cfg := Config{
		Title:                "Riverside",
		SystemPromptTemplate: "Interview {{candidate_name}} for {{title}}.\n{{questions}}",
		Questions:            []Question{{Text: "Why here?", Required: true, Order: 0}},
	}
	prompt := BuildSystemPrompt(cfg, "Grace")

	want := "Interview Grace for Riverside."
	if !strings.Contains(prompt, want) {
		t.Fatalf("prompt = %q, want it to contain %q", prompt, want)
	}
	if !strings.Contains(prompt, "1. Why here? (required)") {
		t.Fatalf("template did not expand questions:\n%s", prompt)
	}
}

func TestRenderQuestionsOrdering(t *testing.T) {
	questions := []Question{
		{Text: "Third", Order: 2},
		{Text: "First", Order: 0},
		{Text: "Second", Order: 1},
	}
	rendered := renderQuestions(questions)

	first := strings.Index(rendered, "First")
	second := strings.Index(rendered, "Second")
	third := strings.Index(rendered, "Third")
	if first < 0 || second < 0 || third < 0 || !(first < second && second < third) {
		t.Fatalf("questions out of order:\n%s", rendered)
	}
	if !strings.HasPrefix(rendered, "1. First") {
		t.Fatalf("numbering wrong:\n%s", rendered)
	}
}

func TestFirstMessage(t *testing.T) {
	msg := FirstMessage(Config{Title: "Riverside"}, "Ada")
	if !strings.Contains(msg, "Ada") || !strings.Contains(msg, `"Riverside"`) {
		t.Fatalf("first message = %q", msg)
	}
}
