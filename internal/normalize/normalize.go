// Package normalize maps the backend's task payloads onto canonical tasks.
//
// The backend answers in several shapes depending on endpoint and version.
// Each accepted shape is a matcher with a declared wire type; matchers are
// tried in order and the first one that recognizes the payload wins.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"atask/internal/service"
)

const statusSuccess = "success"

// MalformedResponseError means a single-task payload matched no known shape.
type MalformedResponseError struct {
	Payload string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed task response: %s", e.Payload)
}

// wireTask is a task as the backend sends it: dates are still raw.
type wireTask struct {
	ID          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Completed   bool            `json:"completed"`
	Priority    string          `json:"priority"`
	DueDate     json.RawMessage `json:"dueDate"`
	CreatedAt   json.RawMessage `json:"createdAt"`
	UpdatedAt   json.RawMessage `json:"updatedAt"`
	UserID      string          `json:"userId"`
	OwnerID     string          `json:"ownerId"`
	Tags        []string        `json:"tags"`
}

// taskMatcher recognizes one single-task shape and extracts the task object.
type taskMatcher struct {
	name  string
	match func(raw []byte) (json.RawMessage, bool)
}

// tasksMatcher recognizes one collection shape and extracts the task array.
type tasksMatcher struct {
	name  string
	match func(raw []byte) (json.RawMessage, bool)
}

// {status: "success", data: {task: {...}}}
type taskEnvelope struct {
	Status string `json:"status"`
	Data   *struct {
		Task json.RawMessage `json:"task"`
	} `json:"data"`
}

// {task: {...}}
type taskField struct {
	Task json.RawMessage `json:"task"`
}

// {id: ..., ...}
type taskShape struct {
	ID json.RawMessage `json:"id"`
}

// {status: "success", data: {tasks: [...]}}
type tasksEnvelope struct {
	Status string `json:"status"`
	Data   *struct {
		Tasks json.RawMessage `json:"tasks"`
	} `json:"data"`
}

// {data: [...]}
type dataArray struct {
	Data json.RawMessage `json:"data"`
}

// {tasks: [...]}
type tasksField struct {
	Tasks json.RawMessage `json:"tasks"`
}

var taskMatchers = []taskMatcher{
	{name: "envelope", match: func(raw []byte) (json.RawMessage, bool) {
		var v taskEnvelope
		if !decodeObject(raw, &v) || v.Status != statusSuccess || v.Data == nil {
			return nil, false
		}
		return v.Data.Task, isObject(v.Data.Task)
	}},
	{name: "task-field", match: func(raw []byte) (json.RawMessage, bool) {
		var v taskField
		if !decodeObject(raw, &v) {
			return nil, false
		}
		return v.Task, isObject(v.Task)
	}},
	{name: "bare-task", match: func(raw []byte) (json.RawMessage, bool) {
		var v taskShape
		if !decodeObject(raw, &v) || idString(v.ID) == "" {
			return nil, false
		}
		return raw, true
	}},
}

var tasksMatchers = []tasksMatcher{
	{name: "envelope", match: func(raw []byte) (json.RawMessage, bool) {
		var v tasksEnvelope
		if !decodeObject(raw, &v) || v.Status != statusSuccess || v.Data == nil {
			return nil, false
		}
		return v.Data.Tasks, isArray(v.Data.Tasks)
	}},
	{name: "array", match: func(raw []byte) (json.RawMessage, bool) {
		return raw, isArray(raw)
	}},
	{name: "data-array", match: func(raw []byte) (json.RawMessage, bool) {
		var v dataArray
		if !decodeObject(raw, &v) {
			return nil, false
		}
		return v.Data, isArray(v.Data)
	}},
	{name: "tasks-field", match: func(raw []byte) (json.RawMessage, bool) {
		var v tasksField
		if !decodeObject(raw, &v) {
			return nil, false
		}
		return v.Tasks, isArray(v.Tasks)
	}},
}

// Task extracts a single canonical task from a backend payload.
// Returns *MalformedResponseError if no shape matches.
func Task(raw []byte, now time.Time) (service.Task, error) {
	for _, m := range taskMatchers {
		obj, ok := m.match(raw)
		if !ok {
			continue
		}
		var w wireTask
		if err := json.Unmarshal(obj, &w); err != nil {
			return service.Task{}, &MalformedResponseError{Payload: truncate(raw)}
		}
		return fromWire(w, now), nil
	}
	return service.Task{}, &MalformedResponseError{Payload: truncate(raw)}
}

// Tasks extracts a task collection from a backend payload.
// Unknown shapes yield an empty result and a warning, never an error.
func Tasks(raw []byte, now time.Time, log logrus.FieldLogger) []service.Task {
	for _, m := range tasksMatchers {
		arr, ok := m.match(raw)
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(arr, &items); err != nil {
			break
		}
		out := make([]service.Task, 0, len(items))
		for _, item := range items {
			var w wireTask
			if err := json.Unmarshal(item, &w); err != nil {
				log.WithError(err).WithField("shape", m.name).Warn("skipping undecodable task")
				continue
			}
			out = append(out, fromWire(w, now))
		}
		return out
	}
	log.WithField("payload", truncate(raw)).Warn("unknown task collection shape, treating as empty")
	return []service.Task{}
}

// Canonical applies the date and priority defaults to an already-typed task.
// It is idempotent.
func Canonical(t service.Task, now time.Time) service.Task {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if p, ok := service.ParsePriority(string(t.Priority)); ok {
		t.Priority = p
	} else {
		t.Priority = service.PriorityMedium
	}
	return t
}

func fromWire(w wireTask, now time.Time) service.Task {
	t := service.Task{
		ID:          idString(w.ID),
		Title:       w.Title,
		Description: w.Description,
		Completed:   w.Completed,
		Priority:    service.Priority(w.Priority),
		OwnerID:     w.UserID,
		Tags:        w.Tags,
	}
	if t.OwnerID == "" {
		t.OwnerID = w.OwnerID
	}
	if ts, ok := ParseTime(w.CreatedAt); ok {
		t.CreatedAt = ts
	}
	if ts, ok := ParseTime(w.UpdatedAt); ok {
		t.UpdatedAt = &ts
	}
	if ts, ok := ParseTime(w.DueDate); ok {
		t.DueDate = &ts
	}
	return Canonical(t, now)
}

// idString renders a JSON id (string or number) as a string.
func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

func decodeObject(raw []byte, v any) bool {
	if !isObject(raw) {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func isObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func isArray(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func truncate(raw []byte) string {
	const max = 200
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
