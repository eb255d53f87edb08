package jobstatus_test

import (
	"testing"

	"reposcout/search-service/internal/jobstatus"
)

// ── ParseStatus ────────────────────────────────────────────────────────────

func TestParseStatus_ValidValues(t *testing.T) {
	valid := []string{"queued", "processing", "completed", "error"}
	for _, s := range valid {
		got, err := jobstatus.ParseStatus(s)
		if err != nil {
			t.Errorf("ParseStatus(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseStatus(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseStatus_InvalidValues(t *testing.T) {
	for _, s := range []string{"", "UNKNOWN", "QUEUED", " queued", "done"} {
		if _, err := jobstatus.ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) expected error, got nil", s)
		}
	}
}

// ── IsTransitionAllowed ────────────────────────────────────────────────────

func TestIsTransitionAllowed_Forward(t *testing.T) {
	cases := []struct {
		from jobstatus.Status
		to   jobstatus.Status
	}{
		{jobstatus.StatusQueued, jobstatus.StatusProcessing},
		{jobstatus.StatusProcessing, jobstatus.StatusCompleted},
		{jobstatus.StatusProcessing, jobstatus.StatusError},
	}
	for _, c := range cases {
		if !jobstatus.IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be true", c.from, c.to)
		}
	}
}

func TestIsTransitionAllowed_Rejected(t *testing.T) {
	cases := []struct {
		from jobstatus.Status
		to   jobstatus.Status
	}{
		{jobstatus.StatusQueued, jobstatus.StatusCompleted},
		{jobstatus.StatusQueued, jobstatus.StatusError},
		{jobstatus.StatusProcessing, jobstatus.StatusQueued},
		{jobstatus.StatusProcessing, jobstatus.StatusProcessing},
		{jobstatus.StatusCompleted, jobstatus.StatusError},
		{jobstatus.StatusError, jobstatus.StatusCompleted},
		{jobstatus.StatusCompleted, jobstatus.StatusQueued},
	}
	for _, c := range cases {
		if jobstatus.IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be false", c.from, c.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !jobstatus.IsTerminal(jobstatus.StatusCompleted) || !jobstatus.IsTerminal(jobstatus.StatusError) {
		t.Error("completed and error must be terminal")
	}
	if jobstatus.IsTerminal(jobstatus.StatusQueued) || jobstatus.IsTerminal(jobstatus.StatusProcessing) {
		t.Error("queued and processing must not be terminal")
	}
}

func TestAdvance(t *testing.T) {
	got, err := jobstatus.Advance(jobstatus.StatusQueued, jobstatus.StatusProcessing)
	if err != nil || got != jobstatus.StatusProcessing {
		t.Fatalf("Advance(queued → processing) = %q, %v", got, err)
	}

	got, err = jobstatus.Advance(jobstatus.StatusCompleted, jobstatus.StatusProcessing)
	if err == nil {
		t.Fatal("Advance(completed → processing) expected error")
	}
	if got != jobstatus.StatusCompleted {
		t.Errorf("rejected Advance should keep %q, got %q", jobstatus.StatusCompleted, got)
	}
}
