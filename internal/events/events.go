// Package events broadcasts progress and failure notifications from the
// model to any number of subscribers.
package events

import (
	"maps"
	"time"
)

// Kind distinguishes the two event shapes.
type Kind int

const (
	KindProgress Kind = iota + 1
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is one notification. Progress events use Message and Progress;
// failure events use Message, Code, Attributes, Remediation and Cause.
type Event struct {
	Kind        Kind
	Time        time.Time
	Message     string
	Progress    *float64
	Code        string
	Attributes  map[string]string
	Remediation string
	Cause       error
}

// Progress builds a progress event without a fraction.
func Progress(message string) Event {
	return Event{Kind: KindProgress, Time: time.Now().UTC(), Message: message}
}

// ProgressAt builds a progress event for item index of count.
func ProgressAt(message string, index, count int) Event {
	fraction := Fraction(index, count)
	ev := Progress(message)
	ev.Progress = &fraction
	return ev
}

// Failure builds a failure event. Attributes are copied.
func Failure(message, code string, attributes map[string]string, remediation string, cause error) Event {
	return Event{
		Kind:        KindFailure,
		Time:        time.Now().UTC(),
		Message:     message,
		Code:        code,
		Attributes:  maps.Clone(attributes),
		Remediation: remediation,
		Cause:       cause,
	}
}

// Fraction maps a zero-based item index to the progress reached once that
// item is done, clamped to [0, 1].
func Fraction(index, count int) float64 {
	if count <= 0 {
		return 1
	}
	f := float64(index+1) / float64(count)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
