package session

// DefaultWindowSize is the number of question chips shown at once.
const DefaultWindowSize = 10

// clampWindow bounds a requested window start to valid range and derives
// the inclusive window end.
func clampWindow(requestedStart, total, size int) (start, end int) {
	allowedMaxStart := total - size
	if allowedMaxStart < 0 {
		allowedMaxStart = 0
	}
	start = requestedStart
	if start < 0 {
		start = 0
	}
	if start > allowedMaxStart {
		start = allowedMaxStart
	}
	end = start + size - 1
	if end > total-1 {
		end = total - 1
	}
	return start, end
}

// NavState tracks the active question index and the visible window of
// question chips. The window slides by a full page only when the active
// index leaves it; jumping to a chip never slides the window since chips
// are always inside the visible window. Not safe for concurrent use;
// the Controller serializes access.
type NavState struct {
	Active      int
	WindowStart int
	WindowSize  int
	total       int
}

// NewNavState creates navigation state positioned on the first question.
func NewNavState(totalQuestions, windowSize int) *NavState {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &NavState{WindowSize: windowSize, total: totalQuestions}
}

// WindowEnd returns the inclusive index of the last visible chip.
func (n *NavState) WindowEnd() int {
	_, end := clampWindow(n.WindowStart, n.total, n.WindowSize)
	return end
}

// MoveNext advances the active question, sliding the window forward by a
// full page when the new index falls past it.
func (n *NavState) MoveNext() {
	next := n.Active + 1
	if next > n.total-1 {
		next = n.total - 1
	}
	if next > n.WindowEnd() {
		n.WindowStart, _ = clampWindow(n.WindowStart+n.WindowSize, n.total, n.WindowSize)
	}
	n.Active = next
}

// MovePrev moves the active question back, sliding the window backward by
// a full page when the new index falls before it.
func (n *NavState) MovePrev() {
	prev := n.Active - 1
	if prev < 0 {
		prev = 0
	}
	if prev < n.WindowStart {
		n.WindowStart, _ = clampWindow(n.WindowStart-n.WindowSize, n.total, n.WindowSize)
	}
	n.Active = prev
}

// JumpTo sets the active question directly. Out-of-range targets are
// clamped; the window is left untouched.
func (n *NavState) JumpTo(index int) {
	if index < 0 {
		index = 0
	}
	if index > n.total-1 {
		index = n.total - 1
	}
	n.Active = index
}
