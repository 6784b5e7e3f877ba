package session

import "testing"

func TestClampWindow(t *testing.T) {
	tests := []struct {
		name      string
		start     int
		total     int
		size      int
		wantStart int
		wantEnd   int
	}{
		{"first page", 0, 23, 10, 0, 9},
		{"second page", 10, 23, 10, 10, 19},
		{"tail clamps to allowed max start", 20, 23, 10, 13, 22},
		{"negative start", -5, 23, 10, 0, 9},
		{"fewer questions than window", 0, 4, 10, 0, 3},
		{"single question", 0, 1, 10, 0, 0},
		{"exact multiple", 10, 20, 10, 10, 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := clampWindow(tt.start, tt.total, tt.size)
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("clampWindow(%d, %d, %d) = [%d,%d], want [%d,%d]",
					tt.start, tt.total, tt.size, start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestNavStateMoveNextSlidesFullPages(t *testing.T) {
	// 23 questions, window of 10: advancing from 0 must produce windows
	// [0,9] → [10,19] at index 10 → [13,22] at index 20.
	n := NewNavState(23, 10)

	type point struct{ active, start, end int }
	var seen []point
	for i := 0; i < 25; i++ { // overshoot: active clamps at 22
		n.MoveNext()
		seen = append(seen, point{n.Active, n.WindowStart, n.WindowEnd()})
	}

	checks := map[int]point{
		9:  {10, 10, 19}, // 10th MoveNext lands on index 10, window slides
		19: {20, 13, 22}, // 20th MoveNext lands on index 20, clamped slide
		24: {22, 13, 22}, // clamped at the last question
	}
	for i, want := range checks {
		if seen[i] != want {
			t.Errorf("after %d MoveNext calls: got %+v, want %+v", i+1, seen[i], want)
		}
	}
}

func TestNavStateMovePrev(t *testing.T) {
	n := NewNavState(23, 10)
	for i := 0; i < 22; i++ {
		n.MoveNext()
	}
	if n.Active != 22 || n.WindowStart != 13 {
		t.Fatalf("setup: active=%d windowStart=%d", n.Active, n.WindowStart)
	}

	// Walk back below the window start: slides back a full page.
	for i := 0; i < 10; i++ {
		n.MovePrev()
	}
	if n.Active != 12 {
		t.Errorf("active = %d, want 12", n.Active)
	}
	if n.WindowStart != 3 {
		t.Errorf("windowStart = %d, want 3", n.WindowStart)
	}

	for i := 0; i < 15; i++ {
		n.MovePrev()
	}
	if n.Active != 0 || n.WindowStart != 0 {
		t.Errorf("at origin: active=%d windowStart=%d, want 0/0", n.Active, n.WindowStart)
	}
}

func TestNavStateJumpToKeepsWindow(t *testing.T) {
	n := NewNavState(23, 10)
	n.JumpTo(7)
	if n.Active != 7 {
		t.Errorf("active = %d, want 7", n.Active)
	}
	if n.WindowStart != 0 {
		t.Errorf("jump must not slide the window: windowStart = %d", n.WindowStart)
	}

	n.JumpTo(99)
	if n.Active != 22 {
		t.Errorf("out-of-range jump clamps: active = %d, want 22", n.Active)
	}
	n.JumpTo(-3)
	if n.Active != 0 {
		t.Errorf("negative jump clamps: active = %d, want 0", n.Active)
	}
}
