package session

import "testing"

func TestMonitorCountsHiddenTransitions(t *testing.T) {
	m := NewMonitor()
	var violations int
	m.OnViolation(func() { violations++ })

	// Before Start nothing counts (instructions gate showing).
	m.Observe(true)
	m.Observe(false)
	if violations != 0 {
		t.Fatalf("pre-start events counted: %d", violations)
	}

	m.Start()
	m.Observe(true) // hidden
	m.Observe(true) // still hidden, same transition
	m.Observe(false)
	m.Observe(true)
	if violations != 2 {
		t.Errorf("violations = %d, want 2", violations)
	}

	m.Stop()
	m.Observe(false)
	m.Observe(true)
	if violations != 2 {
		t.Errorf("post-stop event counted: violations = %d, want 2", violations)
	}
}

func TestMonitorRestartResetsToVisible(t *testing.T) {
	m := NewMonitor()
	var violations int
	m.OnViolation(func() { violations++ })

	m.Start()
	m.Observe(true)
	m.Stop()

	// Restart assumes visible again; the next hidden sample is a fresh
	// transition.
	m.Start()
	m.Observe(true)
	if violations != 2 {
		t.Errorf("violations = %d, want 2", violations)
	}
}

func TestAnswersLastWriteWins(t *testing.T) {
	a := NewAnswers()
	writes := []struct {
		id  string
		opt int
	}{
		{"q1", 0}, {"q2", 3}, {"q1", 2}, {"q3", 1}, {"q2", 1}, {"q1", 1},
	}
	for _, w := range writes {
		a.Set(w.id, w.opt)
	}

	want := map[string]int{"q1": 1, "q2": 1, "q3": 1}
	got := a.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("snapshot has %d entries, want %d", len(got), len(want))
	}
	for id, opt := range want {
		if got[id] != opt {
			t.Errorf("answer[%s] = %d, want %d (last write)", id, got[id], opt)
		}
	}

	if !a.Complete([]string{"q1", "q2", "q3"}) {
		t.Error("Complete = false with all questions answered")
	}
	if a.Complete([]string{"q1", "q2", "q3", "q4"}) {
		t.Error("Complete = true with q4 unanswered")
	}

	// Snapshot is a copy, not a view.
	got["q1"] = 99
	if v, _ := a.Get("q1"); v != 1 {
		t.Error("mutating a snapshot leaked into the store")
	}
}
