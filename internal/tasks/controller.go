// Package tasks holds the task cache and the controller that keeps it in
// sync with the backend and the current identity.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"atask/internal/pubsub"
	"atask/internal/service"
)

// DefaultLoadTimeout bounds a full reload.
const DefaultLoadTimeout = 10 * time.Second

// IdentitySource publishes the current identity, nil when signed out.
// session.Store satisfies it.
type IdentitySource interface {
	Subscribe(fn func(*service.User)) *pubsub.Subscription
}

// Option configures a Controller.
type Option func(*Controller)

// WithLoadTimeout overrides DefaultLoadTimeout. Zero disables the timeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Controller) { c.loadTimeout = d }
}

// Controller is the only mutator of the task cache. Every mutation is
// applied from a server-confirmed result; nothing is applied optimistically.
type Controller struct {
	svc         service.Service
	log         logrus.FieldLogger
	loadTimeout time.Duration

	state *pubsub.Subject[State]
	loads singleflight.Group
	bg    sync.WaitGroup

	// mu is a leaf lock: never held while publishing.
	mu       sync.Mutex
	epoch    uint64            // bumped on every identity change
	inflight int               // requests of the current epoch
	applied  map[string]uint64 // task id -> sequence of the latest applied update/delete
	nextSeq  uint64
	identity string
	observed bool
	closed   bool
	subs     pubsub.Teardown
}

// New creates a controller over svc. When identity is non-nil the cache is
// reset on every identity change and reloaded in the background for a
// signed-in identity.
func New(svc service.Service, identity IdentitySource, log logrus.FieldLogger, opts ...Option) *Controller {
	c := &Controller{
		svc:         svc,
		log:         log,
		loadTimeout: DefaultLoadTimeout,
		state:       pubsub.NewSubject(State{Tasks: []service.Task{}}),
		applied:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if identity != nil {
		c.subs.Track(identity.Subscribe(c.onIdentity))
	}
	return c
}

func (c *Controller) onIdentity(u *service.User) {
	key := u.Key()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	changed := c.observed && key != c.identity
	c.observed = true
	c.identity = key
	c.mu.Unlock()

	if !changed {
		return
	}

	c.reset()
	c.log.WithField("identity", key).Debug("identity changed, task cache reset")
	if u == nil {
		return
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if _, err := c.Load(context.Background()); err != nil {
			c.log.WithError(err).Debug("background reload failed")
		}
	}()
}

// reset empties the cache and starts a new epoch. Results of requests
// dispatched before the reset are dropped when they settle.
func (c *Controller) reset() {
	c.state.Update(func(State) State {
		c.mu.Lock()
		c.epoch++
		c.inflight = 0
		c.applied = make(map[string]uint64)
		c.mu.Unlock()
		return State{Tasks: []service.Task{}}
	})
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// begin marks a request in flight and clears the last error.
func (c *Controller) begin() uint64 {
	var epoch uint64
	c.state.UpdateIf(func(st State) (State, bool) {
		c.mu.Lock()
		epoch = c.epoch
		c.inflight++
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return st, false
		}
		st.IsLoading = true
		st.Error = ""
		return st, true
	})
	return epoch
}

// settle ends a request dispatched in epoch. On failure the error message is
// stored; on success apply derives the new state. Nothing is published when
// the epoch has moved on or the controller is closed, except an auth failure
// that signed the user out: its message is kept on the reset state. Reports
// whether the outcome was recorded.
func (c *Controller) settle(epoch uint64, err error, fallback string, apply func(State) State) bool {
	_, recorded := c.state.UpdateIf(func(st State) (State, bool) {
		c.mu.Lock()
		current := epoch == c.epoch
		if current {
			c.inflight--
		}
		loading := c.inflight > 0
		closed := c.closed
		signedOut := c.identity == ""
		c.mu.Unlock()

		if closed {
			return st, false
		}
		if !current {
			if err == nil || !signedOut || !service.IsAuthError(err) {
				return st, false
			}
			st.Error = errorMessage(err, fallback)
			return st, true
		}
		st.IsLoading = loading
		if err != nil {
			st.Error = errorMessage(err, fallback)
			return st, true
		}
		if apply != nil {
			st = apply(st)
		}
		return st, true
	})
	if !recorded {
		c.log.WithField("epoch", epoch).Debug("dropping result of stale request")
	}
	return recorded
}

// claim returns the sequence number of a new update or delete.
func (c *Controller) claim() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeq++
	return c.nextSeq
}

// accept records seq as applied to id unless a later operation on id was
// already applied. Failed operations never reach accept.
func (c *Controller) accept(id string, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.applied[id] {
		return false
	}
	c.applied[id] = seq
	return true
}

// Load fetches every task of the current identity and replaces the cache.
// Concurrent loads within one identity share a single request. A load that
// exceeds the load timeout fails with service.ErrTimeout and leaves the
// cache untouched.
func (c *Controller) Load(ctx context.Context) ([]service.Task, error) {
	key := strconv.FormatUint(c.currentEpoch(), 10)
	v, err, _ := c.loads.Do(key, func() (any, error) {
		return c.load(ctx)
	})
	tasks, _ := v.([]service.Task)
	return tasks, err
}

// Refresh reloads the cache.
func (c *Controller) Refresh(ctx context.Context) ([]service.Task, error) {
	return c.Load(ctx)
}

func (c *Controller) load(ctx context.Context) ([]service.Task, error) {
	epoch := c.begin()
	tasks, err := withTimeout(ctx, c.loadTimeout, c.svc.ListTasks)
	if tasks == nil && err == nil {
		tasks = []service.Task{}
	}
	c.settle(epoch, err, "failed to load tasks", func(st State) State {
		st.Tasks = append([]service.Task(nil), tasks...)
		return st
	})
	if err != nil {
		c.log.WithError(err).Debug("failed to load tasks")
		return nil, err
	}
	return tasks, nil
}

// Get fetches one task and selects it.
func (c *Controller) Get(ctx context.Context, id string) (service.Task, error) {
	epoch := c.begin()
	t, err := c.svc.GetTask(ctx, id)
	c.settle(epoch, err, "failed to load task "+id, func(st State) State {
		sel := t
		st.Selected = &sel
		return st
	})
	return t, err
}

// Create creates a task and prepends the server's version to the cache.
func (c *Controller) Create(ctx context.Context, draft service.TaskDraft) (service.Task, error) {
	epoch := c.begin()
	t, err := c.svc.CreateTask(ctx, draft)
	c.settle(epoch, err, "failed to create task", func(st State) State {
		st.Tasks = prependTask(st.Tasks, t)
		return st
	})
	return t, err
}

// Update sends changes and replaces the cached entry with the server's
// version. A task that is not cached stays uncached. The result is dropped
// if a later update or delete of the same task was already applied.
func (c *Controller) Update(ctx context.Context, id string, changes service.TaskChanges) (service.Task, error) {
	epoch := c.begin()
	seq := c.claim()
	t, err := c.svc.UpdateTask(ctx, id, changes)
	c.settle(epoch, err, "failed to update task "+id, func(st State) State {
		if !c.accept(id, seq) {
			c.log.WithField("task_id", id).Debug("dropping superseded update")
			return st
		}
		st.Tasks = replaceTask(st.Tasks, t)
		if st.Selected != nil && st.Selected.ID == id {
			sel := t
			st.Selected = &sel
		}
		return st
	})
	return t, err
}

// ToggleCompletion flips the completed flag from current.
func (c *Controller) ToggleCompletion(ctx context.Context, id string, current bool) (service.Task, error) {
	completed := !current
	return c.Update(ctx, id, service.TaskChanges{Completed: &completed})
}

// Delete deletes a task and removes it from the cache once the server
// confirms.
func (c *Controller) Delete(ctx context.Context, id string) error {
	epoch := c.begin()
	seq := c.claim()
	err := c.svc.DeleteTask(ctx, id)
	c.settle(epoch, err, "failed to delete task "+id, func(st State) State {
		if !c.accept(id, seq) {
			c.log.WithField("task_id", id).Debug("dropping superseded delete")
			return st
		}
		st.Tasks = removeTask(st.Tasks, id)
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = nil
		}
		return st
	})
	return err
}

// SetFilters replaces the active filters.
func (c *Controller) SetFilters(f Filters) {
	c.state.Update(func(st State) State {
		st.Filters = f
		return st
	})
}

// Select sets the selected task; nil clears it.
func (c *Controller) Select(t *service.Task) {
	c.state.Update(func(st State) State {
		if t == nil {
			st.Selected = nil
			return st
		}
		sel := *t
		st.Selected = &sel
		return st
	})
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state.Value()
}

// Subscribe delivers the current state and every change.
func (c *Controller) Subscribe(fn func(State)) *pubsub.Subscription {
	return c.state.Subscribe(fn)
}

// SubscribeView delivers the projected view on every change.
func (c *Controller) SubscribeView(fn func([]service.Task)) *pubsub.Subscription {
	return c.state.Subscribe(func(st State) {
		fn(Project(st.Tasks, st.Filters))
	})
}

// View returns the current projected view.
func (c *Controller) View() []service.Task {
	st := c.state.Value()
	return Project(st.Tasks, st.Filters)
}

// Wait blocks until background reloads started by identity changes finish.
func (c *Controller) Wait() {
	c.bg.Wait()
}

// Close stops reacting to identity changes. Requests still in flight are
// not aborted; their results are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.subs.Close()
}

// withTimeout runs call with a deadline of d. The call is abandoned if it
// ignores cancellation and outlives the deadline.
func withTimeout[T any](ctx context.Context, d time.Duration, call func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return call(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", service.ErrTimeout, d)
		}
		return r.v, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", service.ErrTimeout, d)
		}
		return zero, ctx.Err()
	}
}
