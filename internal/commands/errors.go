package commands

import (
	"errors"
	"fmt"
	"io"

	"atask/internal/app"
	"atask/internal/exitcode"
	"atask/internal/service"
	"atask/internal/tasks"
)

// failure reports a failed backend call and returns its exit code. The
// message recorded by the task controller is preferred over the raw error.
func failure(errOut io.Writer, a *app.App, err error) int {
	switch {
	case service.IsAuthError(err) || a.SessionExpired():
		fmt.Fprintf(errOut, "error: %s (run: atask login)\n", tasks.MsgAuth)
		return exitcode.AuthError
	case errors.Is(err, service.ErrNotFound):
		fmt.Fprintln(errOut, "error: task not found")
		return exitcode.UserError
	}

	msg := a.Tasks.State().Error
	if msg == "" {
		msg = err.Error()
	}
	fmt.Fprintf(errOut, "error: %s\n", msg)
	return exitcode.BackendError
}

// ok prints the success marker unless quiet.
func ok(out io.Writer, quiet bool) int {
	if !quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
