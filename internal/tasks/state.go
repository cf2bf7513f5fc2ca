package tasks

import (
	"errors"

	"atask/internal/service"
)

// State is the task cache as observers see it. Slices are never modified
// after publication; treat them as read-only.
type State struct {
	Tasks     []service.Task
	IsLoading bool
	Error     string
	Selected  *service.Task
	Filters   Filters
}

// User-facing failure messages.
const (
	MsgConnection = "could not connect to the server, please check your connection"
	MsgAuth       = "authentication error, please sign in again"
	MsgTimeout    = "the server took too long to respond"
)

// errorMessage maps a backend failure to the text stored in State.Error.
func errorMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, service.ErrNetworkUnavailable):
		return MsgConnection
	case service.IsAuthError(err):
		return MsgAuth
	case errors.Is(err, service.ErrTimeout):
		return MsgTimeout
	}
	var se *service.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}

func replaceTask(tasks []service.Task, t service.Task) []service.Task {
	out := make([]service.Task, len(tasks))
	for i, cur := range tasks {
		if cur.ID == t.ID {
			out[i] = t
		} else {
			out[i] = cur
		}
	}
	return out
}

func removeTask(tasks []service.Task, id string) []service.Task {
	out := make([]service.Task, 0, len(tasks))
	for _, cur := range tasks {
		if cur.ID != id {
			out = append(out, cur)
		}
	}
	return out
}

func prependTask(tasks []service.Task, t service.Task) []service.Task {
	out := make([]service.Task, 0, len(tasks)+1)
	out = append(out, t)
	return append(out, tasks...)
}
