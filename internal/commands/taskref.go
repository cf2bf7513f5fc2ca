package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode"

	"atask/internal/app"
	"atask/internal/exitcode"
	"atask/internal/service"
	"atask/internal/tasks"
)

// TaskRef represents a parsed task reference.
type TaskRef struct {
	Num     int    // 1-based position in the unfiltered view, when Numeric
	ID      string // the raw reference, tried as a task id
	Numeric bool
}

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// ParseTaskRef parses a task reference from args.
//
// A reference is either the number printed by `atask list` or a task id.
// Exactly one reference is accepted.
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 || args[0] == "" {
		return TaskRef{}, ErrTaskRefRequired
	}
	if len(args) > 1 {
		return TaskRef{}, fmt.Errorf("unexpected argument: %s", args[1])
	}

	ref := args[0]
	if isAllDigits(ref) {
		num, err := strconv.Atoi(ref)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", ref)
		}
		return TaskRef{Num: num, ID: ref, Numeric: true}, nil
	}
	return TaskRef{ID: ref}, nil
}

// Resolve finds the referenced task in view. Numbers are tried as
// positions first and then as ids.
func (r TaskRef) Resolve(view []service.Task) (service.Task, error) {
	if r.Numeric && r.Num >= 1 && r.Num <= len(view) {
		return view[r.Num-1], nil
	}
	for _, t := range view {
		if t.ID == r.ID {
			return t, nil
		}
	}
	if r.Numeric {
		return service.Task{}, fmt.Errorf("task number out of range: %d", r.Num)
	}
	return service.Task{}, fmt.Errorf("task not found: %s", r.ID)
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// lookupTask loads the cache and resolves args against the unfiltered view.
// The returned code is exitcode.Success when the task was found.
func lookupTask(ctx context.Context, a *app.App, args []string, errOut io.Writer) (service.Task, int) {
	ref, err := ParseTaskRef(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return service.Task{}, exitcode.UserError
	}

	all, err := a.Tasks.Load(ctx)
	if err != nil {
		return service.Task{}, failure(errOut, a, err)
	}

	task, err := ref.Resolve(tasks.Project(all, tasks.Filters{}))
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return service.Task{}, exitcode.UserError
	}
	return task, exitcode.Success
}
