package queryflow

import (
	"time"
	"unicode/utf8"
)

// previewLimit bounds the length of text previews stored in trace payloads.
const previewLimit = 200

// TraceEntry is one record of the step trace.
type TraceEntry struct {
	Time    time.Time      `json:"time"`
	Step    Step           `json:"step"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
}

// record appends a trace entry for step.
func (s *State) record(now time.Time, step Step, message string, payload map[string]any) {
	s.Trace = appendShared(s.Trace, TraceEntry{
		Time:    now,
		Step:    step,
		Message: message,
		Payload: payload,
	})
}

// preview truncates text to previewLimit runes.
func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit]) + "…"
}
