package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionVisibility Action = "visibility"
	ActionNav        Action = "nav"
	ActionBegin      Action = "begin"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// Nav operations.
const (
	NavNext = "next"
	NavPrev = "prev"
	NavJump = "jump"
)

// RequestPayload is the single client message shape; fields beyond
// Action are populated per action.
type RequestPayload struct {
	Action Action `json:"action"`

	// answer
	QID    string `json:"q_id,omitempty"`
	Option *int   `json:"option,omitempty"`

	// visibility
	Hidden bool `json:"hidden,omitempty"`

	// nav
	Op    string `json:"op,omitempty"`
	Index int    `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventAck       Event = "ack"
	EventWarning   Event = "warning"
	EventViolation Event = "violation"
	EventFinished  Event = "finished"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

type AckResponse struct {
	Event Event `json:"event"`
}

// WarningResponse is a one-shot remaining-time warning push.
type WarningResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// ViolationResponse is pushed after each recorded malpractice event so
// the client can show the warning dialog.
type ViolationResponse struct {
	Event Event `json:"event"`
	Count int   `json:"count"`
	Limit int   `json:"limit"`
}

// FinishedResponse is pushed once when the attempt settles, whatever
// the trigger was.
type FinishedResponse struct {
	Event      Event   `json:"event"`
	Status     string  `json:"status"`
	Reason     string  `json:"reason"`
	Score      float64 `json:"score"`
	Total      int     `json:"total"`
	Passed     bool    `json:"passed"`
	Terminated bool    `json:"terminated"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
