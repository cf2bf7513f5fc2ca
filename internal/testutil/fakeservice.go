// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"atask/internal/service"
)

// FakeService is an in-memory implementation of service.Service for testing.
// Tasks are partitioned by owner; calls act on the active owner set with
// SetOwner.
type FakeService struct {
	mu          sync.RWMutex
	owner       string
	tasks       map[string][]service.Task // owner -> tasks, server order
	users       map[string]service.User   // lowercased email -> user
	googleUsers map[string]service.User   // id token -> user
	nextTask    int
	nextUser    int
	calls       []string

	// Now stamps created and updated tasks.
	Now func() time.Time

	// BeforeCall runs at the start of every call with the operation name
	// (e.g. "ListTasks"). A non-nil error is returned from the call. Tests
	// use it to block or reorder requests.
	BeforeCall func(ctx context.Context, op string) error

	// Error injection for testing
	LoginErr      error
	RegisterErr   error
	GoogleAuthErr error
	ListTasksErr  error
	GetTaskErr    error
	CreateTaskErr error
	UpdateTaskErr error
	DeleteTaskErr error
}

// NewFakeService creates an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{
		tasks:       make(map[string][]service.Task),
		users:       make(map[string]service.User),
		googleUsers: make(map[string]service.User),
		Now:         func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
}

// SetOwner switches the owner whose tasks subsequent calls see.
func (f *FakeService) SetOwner(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owner = owner
}

// AddTask stores a task for its OwnerID, or the active owner when unset.
func (f *FakeService) AddTask(t service.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.OwnerID == "" {
		t.OwnerID = f.owner
	}
	if t.Priority == "" {
		t.Priority = service.PriorityMedium
	}
	f.tasks[t.OwnerID] = append(f.tasks[t.OwnerID], t)
}

// AddUser registers a user for Login.
func (f *FakeService) AddUser(u service.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[strings.ToLower(u.Email)] = u
}

// AddGoogleUser makes GoogleAuth accept idToken for u.
func (f *FakeService) AddGoogleUser(idToken string, u service.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.googleUsers[idToken] = u
}

// Tasks returns a copy of the active owner's tasks.
func (f *FakeService) Tasks() []service.Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]service.Task(nil), f.tasks[f.owner]...)
}

// Calls returns the operations received so far, e.g. "UpdateTask t1".
func (f *FakeService) Calls() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeService) enter(ctx context.Context, op, arg string) error {
	f.mu.Lock()
	if arg != "" {
		f.calls = append(f.calls, op+" "+arg)
	} else {
		f.calls = append(f.calls, op)
	}
	hook := f.BeforeCall
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, op)
	}
	return nil
}

func (f *FakeService) authResult(u service.User, message string) service.AuthResult {
	return service.AuthResult{
		Status:     "success",
		Message:    message,
		UserExists: true,
		User:       &u,
		Token:      "token-" + u.Key(),
	}
}

// Login implements service.Service.
func (f *FakeService) Login(ctx context.Context, email, displayName string) (service.AuthResult, error) {
	if err := f.enter(ctx, "Login", email); err != nil {
		return service.AuthResult{}, err
	}
	if f.LoginErr != nil {
		return service.AuthResult{}, f.LoginErr
	}
	f.mu.RLock()
	u, ok := f.users[strings.ToLower(email)]
	f.mu.RUnlock()
	if !ok {
		return service.AuthResult{}, service.ErrNotFound
	}
	return f.authResult(u, "Login successful"), nil
}

// Register implements service.Service.
func (f *FakeService) Register(ctx context.Context, email, displayName, photoURL string) (service.AuthResult, error) {
	if err := f.enter(ctx, "Register", email); err != nil {
		return service.AuthResult{}, err
	}
	if f.RegisterErr != nil {
		return service.AuthResult{}, f.RegisterErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := f.users[key]; ok {
		return service.AuthResult{}, &service.StatusError{Code: 409, Message: "User already exists"}
	}
	f.nextUser++
	u := service.User{
		ID:          fmt.Sprintf("u%d", f.nextUser),
		Email:       email,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		AuthType:    service.AuthEmail,
		CreatedAt:   f.Now(),
	}
	f.users[key] = u
	return f.authResult(u, "User registered successfully"), nil
}

// GoogleAuth implements service.Service.
func (f *FakeService) GoogleAuth(ctx context.Context, idToken string) (service.AuthResult, error) {
	if err := f.enter(ctx, "GoogleAuth", ""); err != nil {
		return service.AuthResult{}, err
	}
	if f.GoogleAuthErr != nil {
		return service.AuthResult{}, f.GoogleAuthErr
	}
	f.mu.RLock()
	u, ok := f.googleUsers[idToken]
	f.mu.RUnlock()
	if !ok {
		return service.AuthResult{}, service.ErrUnauthorized
	}
	return f.authResult(u, "Google authentication successful"), nil
}

// ListTasks implements service.Service.
func (f *FakeService) ListTasks(ctx context.Context) ([]service.Task, error) {
	if err := f.enter(ctx, "ListTasks", ""); err != nil {
		return nil, err
	}
	if f.ListTasksErr != nil {
		return nil, f.ListTasksErr
	}
	return f.Tasks(), nil
}

// GetTask implements service.Service.
func (f *FakeService) GetTask(ctx context.Context, id string) (service.Task, error) {
	if err := f.enter(ctx, "GetTask", id); err != nil {
		return service.Task{}, err
	}
	if f.GetTaskErr != nil {
		return service.Task{}, f.GetTaskErr
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, t := range f.tasks[f.owner] {
		if t.ID == id {
			return t, nil
		}
	}
	return service.Task{}, service.ErrNotFound
}

// CreateTask implements service.Service.
func (f *FakeService) CreateTask(ctx context.Context, draft service.TaskDraft) (service.Task, error) {
	if err := f.enter(ctx, "CreateTask", draft.Title); err != nil {
		return service.Task{}, err
	}
	if f.CreateTaskErr != nil {
		return service.Task{}, f.CreateTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextTask++
	t := service.Task{
		ID:          fmt.Sprintf("t%d", f.nextTask),
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		CreatedAt:   f.Now(),
		OwnerID:     f.owner,
		Tags:        draft.Tags,
	}
	if t.Priority == "" {
		t.Priority = service.PriorityMedium
	}
	if draft.Completed != nil {
		t.Completed = *draft.Completed
	}
	f.tasks[f.owner] = append(f.tasks[f.owner], t)
	return t, nil
}

// UpdateTask implements service.Service.
func (f *FakeService) UpdateTask(ctx context.Context, id string, changes service.TaskChanges) (service.Task, error) {
	if err := f.enter(ctx, "UpdateTask", id); err != nil {
		return service.Task{}, err
	}
	if f.UpdateTaskErr != nil {
		return service.Task{}, f.UpdateTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tasks := f.tasks[f.owner]
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		t := tasks[i]
		if changes.Title != nil {
			t.Title = *changes.Title
		}
		if changes.Description != nil {
			t.Description = *changes.Description
		}
		if changes.Completed != nil {
			t.Completed = *changes.Completed
		}
		if changes.Priority != nil {
			t.Priority = *changes.Priority
		}
		if changes.DueDate != nil {
			t.DueDate = changes.DueDate
		}
		if changes.Tags != nil {
			t.Tags = changes.Tags
		}
		now := f.Now()
		t.UpdatedAt = &now
		tasks[i] = t
		return t, nil
	}
	return service.Task{}, service.ErrNotFound
}

// DeleteTask implements service.Service.
func (f *FakeService) DeleteTask(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteTask", id); err != nil {
		return err
	}
	if f.DeleteTaskErr != nil {
		return f.DeleteTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tasks := f.tasks[f.owner]
	for i, t := range tasks {
		if t.ID == id {
			f.tasks[f.owner] = append(tasks[:i:i], tasks[i+1:]...)
			return nil
		}
	}
	return service.ErrNotFound
}
