package normalize

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"atask/internal/service"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTask_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantID  string
	}{
		{"envelope", `{"status":"success","data":{"task":{"id":"t1","title":"Buy milk"}}}`, "t1"},
		{"task field", `{"task":{"id":"t2","title":"Buy milk"}}`, "t2"},
		{"bare task", `{"id":"t3","title":"Buy milk"}`, "t3"},
		{"numeric id", `{"id":42,"title":"Buy milk"}`, "42"},
		{"envelope wins over bare id", `{"status":"success","id":"outer","data":{"task":{"id":"inner"}}}`, "inner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := Task([]byte(tt.payload), now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if task.ID != tt.wantID {
				t.Errorf("expected id %q, got %q", tt.wantID, task.ID)
			}
		})
	}
}

func TestTask_Malformed(t *testing.T) {
	payloads := []string{
		`{}`,
		`null`,
		`[]`,
		`{"status":"error","message":"nope"}`,
		`{"status":"success","data":{}}`,
		`{"id":""}`,
		`"text"`,
	}
	for _, p := range payloads {
		_, err := Task([]byte(p), now)
		var mre *MalformedResponseError
		if !errors.As(err, &mre) {
			t.Errorf("payload %s: expected MalformedResponseError, got %v", p, err)
		}
	}
}

func TestTasks_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"envelope", `{"status":"success","data":{"tasks":[{"id":"a"},{"id":"b"}]}}`, []string{"a", "b"}},
		{"array", `[{"id":"a"}]`, []string{"a"}},
		{"data array", `{"data":[{"id":"c"}]}`, []string{"c"}},
		{"tasks field", `{"tasks":[{"id":"d"}]}`, []string{"d"}},
		{"empty envelope", `{"status":"success","data":{"tasks":[]}}`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, _ := test.NewNullLogger()
			got := Tasks([]byte(tt.payload), now, log)
			ids := make([]string, 0, len(got))
			for _, task := range got {
				ids = append(ids, task.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestTasks_UnknownShapeWarnsAndReturnsEmpty(t *testing.T) {
	log, hook := test.NewNullLogger()

	got := Tasks([]byte(`{"status":"success","items":[{"id":"x"}]}`), now, log)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a warning to be logged")
	}
	if entry.Level != logrus.WarnLevel {
		t.Errorf("expected warn level, got %s", entry.Level)
	}
}

func TestTask_DateConversion(t *testing.T) {
	payload := `{"id":"t1","title":"x",
		"createdAt":"2024-05-01T10:00:00Z",
		"updatedAt":1714557600000,
		"dueDate":{"_seconds":1714640400,"_nanoseconds":0}}`

	task, err := Task([]byte(payload), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantCreated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !task.CreatedAt.Equal(wantCreated) {
		t.Errorf("createdAt: expected %v, got %v", wantCreated, task.CreatedAt)
	}
	if task.UpdatedAt == nil || !task.UpdatedAt.Equal(time.UnixMilli(1714557600000)) {
		t.Errorf("updatedAt: got %v", task.UpdatedAt)
	}
	if task.DueDate == nil || !task.DueDate.Equal(time.Unix(1714640400, 0)) {
		t.Errorf("dueDate: got %v", task.DueDate)
	}
}

func TestTask_MissingDates(t *testing.T) {
	task, err := Task([]byte(`{"id":"t1","title":"x","updatedAt":"not a date"}`), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !task.CreatedAt.Equal(now) {
		t.Errorf("expected createdAt to default to now, got %v", task.CreatedAt)
	}
	if task.UpdatedAt != nil {
		t.Errorf("expected updatedAt absent, got %v", task.UpdatedAt)
	}
	if task.DueDate != nil {
		t.Errorf("expected dueDate absent, got %v", task.DueDate)
	}
}

func TestParseTime_EpochMillisRange(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"0", time.UnixMilli(0).UTC(), true},
		{"-1000", time.UnixMilli(-1000).UTC(), true},
		{"8.64e15", time.UnixMilli(8.64e15).UTC(), true},
		{"-8.64e15", time.UnixMilli(-8.64e15).UTC(), true},
		{"8640000000000001", time.Time{}, false},
		{"1e300", time.Time{}, false},
		{"-1e300", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseTime(json.RawMessage(tt.raw))
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseTime(%s) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTask_OutOfRangeDateIsAbsent(t *testing.T) {
	task, err := Task([]byte(`{"id":"t1","title":"x","createdAt":1e300,"dueDate":-1e300}`), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !task.CreatedAt.Equal(now) {
		t.Errorf("expected createdAt to default to now, got %v", task.CreatedAt)
	}
	if task.DueDate != nil {
		t.Errorf("expected dueDate absent, got %v", task.DueDate)
	}
}

func TestTask_Defaults(t *testing.T) {
	task, err := Task([]byte(`{"id":"t1","title":"x","ownerId":"u1","priority":"HIGH"}`), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.OwnerID != "u1" {
		t.Errorf("expected owner u1, got %q", task.OwnerID)
	}
	if task.Priority != service.PriorityHigh {
		t.Errorf("expected high priority, got %q", task.Priority)
	}

	task, err = Task([]byte(`{"id":"t1","title":"x","userId":"u2"}`), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Priority != service.PriorityMedium {
		t.Errorf("expected medium default, got %q", task.Priority)
	}
	if task.OwnerID != "u2" {
		t.Errorf("expected owner u2, got %q", task.OwnerID)
	}
}

func TestTask_NormalizeIsIdempotent(t *testing.T) {
	due := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	updated := time.Date(2025, 2, 1, 8, 0, 0, 500, time.UTC)
	canonical := service.Task{
		ID:          "t1",
		Title:       "Buy milk",
		Description: "2%",
		Priority:    service.PriorityLow,
		DueDate:     &due,
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   &updated,
		OwnerID:     "u1",
		Tags:        []string{"home"},
	}

	if got := Canonical(canonical, now); !reflect.DeepEqual(got, canonical) {
		t.Errorf("Canonical changed a canonical task:\n got %+v\nwant %+v", got, canonical)
	}

	raw, err := json.Marshal(canonical)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	once, err := Task(raw, now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	raw2, err := json.Marshal(once)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	twice, err := Task(raw2, now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalize not idempotent:\n once %+v\ntwice %+v", once, twice)
	}
	if !once.CreatedAt.Equal(canonical.CreatedAt) || !once.DueDate.Equal(due) {
		t.Errorf("dates changed: %+v", once)
	}
}

func TestUser(t *testing.T) {
	u := User(json.RawMessage(`{"uid":"u1","email":"a@x.com","authType":"google","createdAt":"2024-01-02"}`))
	if u == nil {
		t.Fatal("expected user")
	}
	if u.ID != "u1" || u.Email != "a@x.com" || u.AuthType != service.AuthGoogle {
		t.Errorf("unexpected user: %+v", u)
	}
	if !u.CreatedAt.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected createdAt: %v", u.CreatedAt)
	}

	if User(json.RawMessage(`null`)) != nil {
		t.Error("expected nil for null user")
	}
}
