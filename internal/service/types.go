// Package service defines the backend-agnostic interface for task operations.
package service

import (
	"strings"
	"time"
)

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority parses a priority name, case-insensitive.
// Returns false for anything other than low, medium or high.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	}
	return "", false
}

// Task represents a single task item in its canonical form.
type Task struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	OwnerID     string     `json:"userId"`
	Tags        []string   `json:"tags,omitempty"`
}

// TaskDraft is the payload for creating a task.
type TaskDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// TaskChanges is a partial update. Nil fields are left untouched by the backend.
type TaskChanges struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// AuthMethod is how a user signed in.
type AuthMethod string

const (
	AuthEmail  AuthMethod = "email"
	AuthGoogle AuthMethod = "google"
)

// User is the authenticated identity.
type User struct {
	ID          string     `json:"id,omitempty"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName,omitempty"`
	PhotoURL    string     `json:"photoURL,omitempty"`
	AuthType    AuthMethod `json:"authType,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Key identifies the user for identity-change detection.
// Falls back to the email when the backend did not assign an ID.
func (u *User) Key() string {
	if u == nil {
		return ""
	}
	if u.ID != "" {
		return u.ID
	}
	return strings.ToLower(u.Email)
}

// AuthResult is the outcome of a login, registration or Google sign-in.
type AuthResult struct {
	Status     string
	Message    string
	UserExists bool
	// ExistsReported is false when the backend left UserExists unstated.
	ExistsReported bool
	User           *User
	Token          string
}
