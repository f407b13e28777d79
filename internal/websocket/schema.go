package websocket

import (
	"encoding/json"

	"github.com/falachabt/bacblanc-sub000/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionFlag   Action = "flag"
	ActionGoto   Action = "goto"
	ActionFinish Action = "finish"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest submits or replaces one question's answer.
type AnswerRequest struct {
	Action     Action          `json:"action"`
	QuestionID string          `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
}

// FlagRequest toggles the review flag on a question index.
type FlagRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// GotoRequest moves the current question pointer.
type GotoRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// FinishRequest ends the exam and grades it.
type FinishRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick     Event = "tick"
	EventLowTime  Event = "low_time"
	EventFinished Event = "finished"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// TimerEvent carries the countdown. Clock is the remaining time formatted
// as HH:MM:SS, sent on every tick and on the low-time warning.
type TimerEvent struct {
	Event    Event  `json:"event"`
	TimeLeft int    `json:"time_left"`
	Clock    string `json:"clock"`
}

// FinishedEvent announces grading, whether user-initiated or on expiry.
type FinishedEvent struct {
	Event  Event         `json:"event"`
	Result *model.Result `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
