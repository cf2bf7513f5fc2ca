package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"atask/internal/service"
)

// Payload shapes the fake backend can answer in.
const (
	ShapeEnvelope = "envelope" // {status, data: {task|tasks}}
	ShapeField    = "field"    // {task: {...}} / {tasks: [...]}
	ShapeBare     = "bare"     // the task object / the array itself
	ShapeData     = "data"     // {data: [...]}, collections only
)

// Date encodings the fake backend can use.
const (
	DatesISO       = "iso"
	DatesEpochMS   = "epoch"
	DatesTimestamp = "timestamp" // {_seconds, _nanoseconds}
)

// RecordedRequest is what FakeAPI saw of one request.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	RequestID     string
	Body          string
}

// FakeAPI is an in-memory task backend served over HTTP.
type FakeAPI struct {
	*httptest.Server

	mu          sync.Mutex
	users       map[string]service.User   // lowercased email -> user
	googleUsers map[string]service.User   // id token -> user
	tokens      map[string]string         // bearer token -> user key
	tasks       map[string][]service.Task // user key -> tasks
	nextID      int
	requests    []RecordedRequest

	// Shape selects the payload shape of task responses.
	Shape string
	// Dates selects the date encoding of task responses.
	Dates string
	// OmitUserExists drops userExists from auth responses.
	OmitUserExists bool
	// Delay is slept before every response.
	Delay time.Duration
	// Fail maps "METHOD /path" to a forced status code.
	Fail map[string]int

	now func() time.Time
}

// NewFakeAPI starts a fake backend. It is closed when the test ends.
func NewFakeAPI(t testing.TB) *FakeAPI {
	gin.SetMode(gin.TestMode)

	f := &FakeAPI{
		users:       make(map[string]service.User),
		googleUsers: make(map[string]service.User),
		tokens:      make(map[string]string),
		tasks:       make(map[string][]service.Task),
		Shape:       ShapeEnvelope,
		Dates:       DatesISO,
		Fail:        make(map[string]int),
		now:         func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) },
	}

	r := gin.New()
	r.Use(f.record, f.delay, f.forced)

	auth := r.Group("/auth")
	auth.POST("/login", f.login)
	auth.POST("/register", f.register)
	auth.POST("/google", f.google)

	tasks := r.Group("/tasks", f.authenticate)
	tasks.GET("", f.listTasks)
	tasks.POST("", f.createTask)
	tasks.GET("/:id", f.getTask)
	tasks.PUT("/:id", f.updateTask)
	tasks.DELETE("/:id", f.deleteTask)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// AddUser registers a user and returns a bearer token valid for it.
func (f *FakeAPI) AddUser(u service.User) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[strings.ToLower(u.Email)] = u
	return f.issueToken(u)
}

// AddGoogleUser makes /auth/google accept idToken for u.
func (f *FakeAPI) AddGoogleUser(idToken string, u service.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.googleUsers[idToken] = u
}

// AddTask stores a task for the user with the given email.
func (f *FakeAPI) AddTask(email string, t service.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[strings.ToLower(email)]
	t.OwnerID = u.Key()
	f.tasks[u.Key()] = append(f.tasks[u.Key()], t)
}

// Tasks returns the tasks stored for the user with the given email.
func (f *FakeAPI) Tasks(email string) []service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[strings.ToLower(email)]
	return append([]service.Task(nil), f.tasks[u.Key()]...)
}

// Requests returns the requests received so far.
func (f *FakeAPI) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// LastRequest returns the most recent request.
func (f *FakeAPI) LastRequest() RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return RecordedRequest{}
	}
	return f.requests[len(f.requests)-1]
}

// issueToken is called with mu held.
func (f *FakeAPI) issueToken(u service.User) string {
	token := "tok-" + u.Key()
	f.tokens[token] = u.Key()
	return token
}

func (f *FakeAPI) record(c *gin.Context) {
	body, _ := c.GetRawData()
	c.Request.Body = http.NoBody
	c.Set("body", body)

	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		Authorization: c.GetHeader("Authorization"),
		ContentType:   c.GetHeader("Content-Type"),
		RequestID:     c.GetHeader("X-Request-ID"),
		Body:          string(body),
	})
	f.mu.Unlock()
	c.Next()
}

func (f *FakeAPI) delay(c *gin.Context) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	c.Next()
}

func (f *FakeAPI) forced(c *gin.Context) {
	f.mu.Lock()
	code, ok := f.Fail[c.Request.Method+" "+c.Request.URL.Path]
	f.mu.Unlock()
	if ok {
		c.AbortWithStatusJSON(code, gin.H{"status": "error", "message": http.StatusText(code)})
		return
	}
	c.Next()
}

func (f *FakeAPI) authenticate(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	f.mu.Lock()
	key, known := f.tokens[token]
	f.mu.Unlock()
	if !ok || !known {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid or expired token"})
		return
	}
	c.Set("owner", key)
	c.Next()
}

// bind decodes the body captured by record.
func bind(c *gin.Context, v any) bool {
	raw, _ := c.Get("body")
	body, _ := raw.([]byte)
	if err := json.Unmarshal(body, v); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid JSON body"})
		return false
	}
	return true
}

func (f *FakeAPI) authResponse(c *gin.Context, code int, message string, u service.User, token string) {
	body := gin.H{
		"status":  "success",
		"message": message,
		"data": gin.H{
			"user": gin.H{
				"id":          u.ID,
				"email":       u.Email,
				"displayName": u.DisplayName,
				"photoURL":    u.PhotoURL,
				"authType":    u.AuthType,
				"createdAt":   f.date(u.CreatedAt),
			},
			"token": token,
		},
	}
	if !f.OmitUserExists {
		body["userExists"] = true
	}
	c.JSON(code, body)
}

func (f *FakeAPI) login(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}
	if !bind(c, &req) {
		return
	}
	f.mu.Lock()
	u, ok := f.users[strings.ToLower(req.Email)]
	var token string
	if ok {
		token = f.issueToken(u)
	}
	f.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "User not found"})
		return
	}
	f.authResponse(c, http.StatusOK, "Login successful", u, token)
}

func (f *FakeAPI) register(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoURL"`
	}
	if !bind(c, &req) {
		return
	}
	if req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Email is required"})
		return
	}

	f.mu.Lock()
	key := strings.ToLower(req.Email)
	if _, exists := f.users[key]; exists {
		f.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": "User already exists"})
		return
	}
	f.nextID++
	u := service.User{
		ID:          fmt.Sprintf("u%d", f.nextID),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
		AuthType:    service.AuthEmail,
		CreatedAt:   f.now(),
	}
	f.users[key] = u
	token := f.issueToken(u)
	f.mu.Unlock()

	f.authResponse(c, http.StatusCreated, "User registered successfully", u, token)
}

func (f *FakeAPI) google(c *gin.Context) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if !bind(c, &req) {
		return
	}
	f.mu.Lock()
	u, ok := f.googleUsers[req.IDToken]
	var token string
	if ok {
		f.users[strings.ToLower(u.Email)] = u
		token = f.issueToken(u)
	}
	f.mu.Unlock()

	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid Google token"})
		return
	}
	f.authResponse(c, http.StatusOK, "Google authentication successful", u, token)
}

func (f *FakeAPI) listTasks(c *gin.Context) {
	owner := c.GetString("owner")
	f.mu.Lock()
	items := make([]gin.H, 0, len(f.tasks[owner]))
	for _, t := range f.tasks[owner] {
		items = append(items, f.wire(t))
	}
	f.mu.Unlock()

	switch f.Shape {
	case ShapeBare:
		c.JSON(http.StatusOK, items)
	case ShapeData:
		c.JSON(http.StatusOK, gin.H{"data": items})
	case ShapeField:
		c.JSON(http.StatusOK, gin.H{"tasks": items})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"tasks": items}})
	}
}

func (f *FakeAPI) respondTask(c *gin.Context, code int, t service.Task) {
	item := f.wire(t)
	switch f.Shape {
	case ShapeBare, ShapeData:
		c.JSON(code, item)
	case ShapeField:
		c.JSON(code, gin.H{"task": item})
	default:
		c.JSON(code, gin.H{"status": "success", "data": gin.H{"task": item}})
	}
}

// find returns the index of id in the owner's tasks, or -1. Caller holds mu.
func (f *FakeAPI) find(owner, id string) int {
	for i, t := range f.tasks[owner] {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Task not found"})
}

func (f *FakeAPI) getTask(c *gin.Context) {
	owner := c.GetString("owner")
	f.mu.Lock()
	i := f.find(owner, c.Param("id"))
	var t service.Task
	if i >= 0 {
		t = f.tasks[owner][i]
	}
	f.mu.Unlock()

	if i < 0 {
		notFound(c)
		return
	}
	f.respondTask(c, http.StatusOK, t)
}

func (f *FakeAPI) createTask(c *gin.Context) {
	var draft service.TaskDraft
	if !bind(c, &draft) {
		return
	}
	if strings.TrimSpace(draft.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Title is required"})
		return
	}

	owner := c.GetString("owner")
	f.mu.Lock()
	f.nextID++
	t := service.Task{
		ID:          fmt.Sprintf("t%d", f.nextID),
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		CreatedAt:   f.now(),
		OwnerID:     owner,
		Tags:        draft.Tags,
	}
	if draft.Completed != nil {
		t.Completed = *draft.Completed
	}
	f.tasks[owner] = append(f.tasks[owner], t)
	f.mu.Unlock()

	f.respondTask(c, http.StatusCreated, t)
}

func (f *FakeAPI) updateTask(c *gin.Context) {
	var changes service.TaskChanges
	if !bind(c, &changes) {
		return
	}

	owner := c.GetString("owner")
	f.mu.Lock()
	i := f.find(owner, c.Param("id"))
	if i < 0 {
		f.mu.Unlock()
		notFound(c)
		return
	}
	t := f.tasks[owner][i]
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
	now := f.now()
	t.UpdatedAt = &now
	f.tasks[owner][i] = t
	f.mu.Unlock()

	f.respondTask(c, http.StatusOK, t)
}

func (f *FakeAPI) deleteTask(c *gin.Context) {
	owner := c.GetString("owner")
	f.mu.Lock()
	i := f.find(owner, c.Param("id"))
	if i >= 0 {
		tasks := f.tasks[owner]
		f.tasks[owner] = append(tasks[:i:i], tasks[i+1:]...)
	}
	f.mu.Unlock()

	if i < 0 {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Task deleted"})
}

// wire renders a task the way the backend would, dates in f.Dates.
func (f *FakeAPI) wire(t service.Task) gin.H {
	h := gin.H{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
		"userId":      t.OwnerID,
		"createdAt":   f.date(t.CreatedAt),
	}
	if t.Priority != "" {
		h["priority"] = t.Priority
	}
	if t.DueDate != nil {
		h["dueDate"] = f.date(*t.DueDate)
	}
	if t.UpdatedAt != nil {
		h["updatedAt"] = f.date(*t.UpdatedAt)
	}
	if len(t.Tags) > 0 {
		h["tags"] = t.Tags
	}
	return h
}

func (f *FakeAPI) date(t time.Time) any {
	switch f.Dates {
	case DatesEpochMS:
		return t.UnixMilli()
	case DatesTimestamp:
		return gin.H{"_seconds": t.Unix(), "_nanoseconds": t.Nanosecond()}
	default:
		return t.UTC().Format(time.RFC3339Nano)
	}
}
