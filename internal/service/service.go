// Package service defines the backend-agnostic interface for task operations.
package service

import "context"

// Service defines the interface for backend operations.
// All backend API calls go through this interface.
// Commands and the task controller never import the HTTP client directly.
type Service interface {
	// Login looks up an existing user by email.
	// A missing user is reported as ErrNotFound.
	Login(ctx context.Context, email, displayName string) (AuthResult, error)

	// Register creates a user.
	Register(ctx context.Context, email, displayName, photoURL string) (AuthResult, error)

	// GoogleAuth exchanges a Google ID token for a session.
	GoogleAuth(ctx context.Context, idToken string) (AuthResult, error)

	// ListTasks returns every task of the authenticated user, in server order.
	ListTasks(ctx context.Context) ([]Task, error)

	// GetTask returns a single task.
	GetTask(ctx context.Context, id string) (Task, error)

	// CreateTask creates a task and returns the server's canonical version.
	CreateTask(ctx context.Context, draft TaskDraft) (Task, error)

	// UpdateTask applies partial changes and returns the server's canonical version.
	UpdateTask(ctx context.Context, id string, changes TaskChanges) (Task, error)

	// DeleteTask deletes a task.
	DeleteTask(ctx context.Context, id string) error
}
