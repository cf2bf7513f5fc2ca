// Package exitcode defines exit codes for the CLI.
package exitcode

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, unknown task, unknown
	// account, rejected input).
	UserError = 1

	// AuthError indicates the command needs a session that is missing or
	// was rejected by the backend.
	AuthError = 2

	// BackendError indicates a backend, network or timeout failure.
	BackendError = 3
)
