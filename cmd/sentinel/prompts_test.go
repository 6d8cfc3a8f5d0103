package main

import (
	"context"
	"strings"
	"testing"
	"time"

	sentinel "github.com/key-r-code/drexel-sentinel"
)

func render(t *testing.T, template string) string {
	t.Helper()
	return datedPrompt(template)(context.Background(), sentinel.AgentTask{})
}

func TestSupervisorPromptRouting(t *testing.T) {
	got := render(t, supervisorPrompt)

	// The router must know each specialist by its tool name and have an
	// example steering grading-policy questions to the advisor.
	for _, want := range []string{"agent_calendar", "agent_research", "agent_advisor"} {
		if !strings.Contains(got, want) {
			t.Errorf("supervisor prompt missing %q", want)
		}
	}
	if !strings.Contains(got, "grading policy") || !strings.Contains(got, "Call agent_advisor") {
		t.Error("supervisor prompt missing grading-policy routing example")
	}
}

func TestCalendarPromptRules(t *testing.T) {
	got := render(t, calendarPrompt)
	for _, want := range []string{
		"EMPTY STRING",
		"'[COURSE]: [TYPE]'",
		"YYYY-MM-DD",
		"delete_event",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("calendar prompt missing %q", want)
		}
	}
}

func TestDatedPromptInjectsCurrentDate(t *testing.T) {
	got := render(t, "today is %[1]s (%[2]s)")

	now := time.Now()
	if !strings.Contains(got, now.Format("2006-01-02")) {
		t.Errorf("ISO date missing: %q", got)
	}
	if !strings.Contains(got, now.Format("January 02, 2006")) {
		t.Errorf("long date missing: %q", got)
	}
}

func TestAllPromptsRenderCleanly(t *testing.T) {
	for name, tmpl := range map[string]string{
		"supervisor": supervisorPrompt,
		"advisor":    advisorPrompt,
		"calendar":   calendarPrompt,
		"research":   researchPrompt,
	} {
		got := render(t, tmpl)
		if strings.Contains(got, "%!") {
			t.Errorf("%s prompt has a formatting error: %q", name, got)
		}
	}
}
