package game

import (
	"fmt"
	"math"
	"time"
)

// EventKind identifies an outbound game event.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventProgress EventKind = "progress"
	EventSuccess  EventKind = "success"
	EventError    EventKind = "error"
)

// StartedMessage is sent with the first target of a connection.
const StartedMessage = "Game started!"

// Event is a message sent to the client. Only the fields relevant to the kind
// are set, so the JSON shape follows the kind.
type Event struct {
	Kind    EventKind `json:"-"`
	Pose    string    `json:"pose,omitempty"`
	Target  string    `json:"target,omitempty"`
	Effect  string    `json:"effect,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Started builds the game-started event.
func Started(target string) Event {
	return Event{Kind: EventStarted, Target: target, Message: StartedMessage}
}

// Progress reports the smoothed pose and the current target.
func Progress(pose, target string) Event {
	return Event{Kind: EventProgress, Pose: pose, Target: target}
}

// Success reports a completed hold of target.
func Success(pose, target string, threshold time.Duration) Event {
	return Event{
		Kind:    EventSuccess,
		Pose:    pose,
		Target:  target,
		Effect:  "success",
		Message: SuccessMessage(threshold),
	}
}

// Error reports a recoverable problem with a frame.
func Error(err error) Event {
	return Event{Kind: EventError, Error: err.Error()}
}

// SuccessMessage returns e.g. "Held 5 seconds." for a 5s threshold.
func SuccessMessage(threshold time.Duration) string {
	secs := threshold.Seconds()
	if secs == math.Trunc(secs) {
		if secs == 1 {
			return "Held 1 second."
		}
		return fmt.Sprintf("Held %d seconds.", int(secs))
	}
	return fmt.Sprintf("Held %g seconds.", secs)
}
