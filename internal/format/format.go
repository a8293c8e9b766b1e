package format

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"capset/internal/events"
)

// Formatter abstracts output formatting.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes one JSON document per payload.
type JSONFormatter struct {
	Indent string
}

// Write writes JSON payload to a writer.
func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	if f.Indent != "" {
		enc.SetIndent("", f.Indent)
	}
	return enc.Encode(payload)
}

// EventRecord is the JSON shape of an event.
type EventRecord struct {
	Kind        string            `json:"kind"`
	Time        time.Time         `json:"time"`
	Message     string            `json:"message"`
	Progress    *float64          `json:"progress,omitempty"`
	Code        string            `json:"code,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
	Cause       string            `json:"cause,omitempty"`
}

// Record converts ev for JSON output.
func Record(ev events.Event) EventRecord {
	rec := EventRecord{
		Kind:        ev.Kind.String(),
		Time:        ev.Time,
		Message:     ev.Message,
		Progress:    ev.Progress,
		Code:        ev.Code,
		Attributes:  ev.Attributes,
		Remediation: ev.Remediation,
	}
	if ev.Cause != nil {
		rec.Cause = ev.Cause.Error()
	}
	return rec
}

// EventLines renders ev for a terminal. Failures carry one line per
// attribute and a hint line when a remediation is known.
func EventLines(ev events.Event) []string {
	if ev.Kind != events.KindFailure {
		if ev.Progress == nil {
			return []string{"  " + ev.Message}
		}
		return []string{fmt.Sprintf("[%3d%%] %s", int(math.Round(*ev.Progress*100)), ev.Message)}
	}

	lines := []string{fmt.Sprintf("error [%s]: %s", ev.Code, ev.Message)}
	keys := make([]string, 0, len(ev.Attributes))
	for key := range ev.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s=%s", key, ev.Attributes[key]))
	}
	if ev.Remediation != "" {
		lines = append(lines, "hint: "+ev.Remediation)
	}
	return lines
}
