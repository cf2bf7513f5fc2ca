package commands_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"atask/internal/app"
	"atask/internal/backend/googletasks"
	"atask/internal/cli"
	"atask/internal/commands"
	"atask/internal/config"
	"atask/internal/exitcode"
	"atask/internal/kvstore"
	"atask/internal/logging"
	"atask/internal/service"
	"atask/internal/session"
	"atask/internal/testutil"
)

var alice = service.User{ID: "u1", Email: "alice@example.com", DisplayName: "Alice", AuthType: service.AuthEmail}

// harness runs commands through the dispatcher against a FakeService, with
// the config directory in a temp XDG_CONFIG_HOME.
type harness struct {
	t   *testing.T
	svc *testutil.FakeService
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	return &harness{t: t, svc: testutil.NewFakeService(), dir: filepath.Join(xdg, config.AppName)}
}

func (h *harness) factory(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*app.App, error) {
	kv := kvstore.NewFileStore(cfg.Dir)
	sess, err := session.New(ctx, kv, log)
	if err != nil {
		return nil, err
	}
	return app.Assemble(cfg, log, kv, sess, h.svc), nil
}

// signIn stores a session as an earlier login would have.
func (h *harness) signIn(u service.User) {
	h.t.Helper()
	sess, err := session.New(context.Background(), kvstore.NewFileStore(h.dir), logging.Discard())
	if err != nil {
		h.t.Fatal(err)
	}
	if err := sess.SetIdentity(context.Background(), &u, "token-"+u.Key()); err != nil {
		h.t.Fatal(err)
	}
	h.svc.AddUser(u)
	h.svc.SetOwner(u.Key())
}

// seed adds tasks; each is one day newer than the previous.
func (h *harness) seed(titles ...string) {
	for i, title := range titles {
		h.svc.AddTask(service.Task{
			ID:        fmt.Sprintf("s%d", i+1),
			Title:     title,
			CreatedAt: time.Date(2024, 1, 1+i, 9, 0, 0, 0, time.UTC),
		})
	}
}

func (h *harness) run(args ...string) (stdout, stderr string, code int) {
	h.t.Helper()
	var outBuf, errBuf bytes.Buffer
	d := cli.NewDispatcher(commands.DefaultRegistry, h.factory)
	code = d.Run(context.Background(), args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}

func (h *harness) task(id string) service.Task {
	h.t.Helper()
	for _, t := range h.svc.Tasks() {
		if t.ID == id {
			return t
		}
	}
	h.t.Fatalf("task %s not found", id)
	return service.Task{}
}

func expect(t *testing.T, gotCode, wantCode int, got, want string) {
	t.Helper()
	if gotCode != wantCode {
		t.Errorf("expected exit code %d, got %d", wantCode, gotCode)
	}
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

// Tests for version command
func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	code := (&commands.VersionCmd{}).Run(context.Background(), &config.Config{}, nil, nil, &out, io.Discard)
	expect(t, code, exitcode.Success, out.String(), "atask 0.1.0\n")
}

// Tests for help command
func TestHelpCommand(t *testing.T) {
	var out bytes.Buffer
	code := (&commands.HelpCmd{}).Run(context.Background(), &config.Config{}, nil, nil, &out, io.Discard)
	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	for _, cmd := range commands.DefaultRegistry.All() {
		if !strings.Contains(out.String(), "atask "+cmd.Name()) {
			t.Errorf("help output does not mention %s", cmd.Name())
		}
	}
}

func TestRegistry_UsageNamesCommand(t *testing.T) {
	for _, cmd := range commands.DefaultRegistry.All() {
		if !strings.HasPrefix(cmd.Usage(), "atask "+cmd.Name()) {
			t.Errorf("usage of %s should start with its name, got %q", cmd.Name(), cmd.Usage())
		}
	}
}

// Tests for list command
func TestList_RequiresLogin(t *testing.T) {
	h := newHarness(t)
	_, stderr, code := h.run("list")
	expect(t, code, exitcode.AuthError, stderr, "error: not logged in (run: atask login)\n")
}

func TestList_NewestFirst(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.seed("Buy milk", "Buy eggs")

	stdout, _, code := h.run()
	expect(t, code, exitcode.Success, stdout, "   1  [ ] Buy eggs\n   2  [ ] Buy milk\n")
}

func TestList_FilteredKeepsNumbers(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.seed("Buy milk", "Buy eggs", "Call mom")
	h.svc.AddTask(service.Task{ID: "s9", Title: "Old done", Completed: true, CreatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)})

	stdout, _, code := h.run("list", "--done")
	expect(t, code, exitcode.Success, stdout, "   4  [x] Old done\n")

	stdout, _, code = h.run("list", "--open", "--search", "BUY")
	expect(t, code, exitcode.Success, stdout, "   2  [ ] Buy eggs\n   3  [ ] Buy milk\n")
}

func TestList_SearchMatchesDescription(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.svc.AddTask(service.Task{ID: "s1", Title: "Errands", Description: "pick up parcel", CreatedAt: time.Now()})

	stdout, _, code := h.run("list", "-s", "parcel")
	expect(t, code, exitcode.Success, stdout, "   1  [ ] Errands\n")
}

func TestList_Empty(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)

	stdout, _, code := h.run("list")
	expect(t, code, exitcode.Success, stdout, "no tasks found\n")

	stdout, _, code = h.run("list", "--quiet")
	expect(t, code, exitcode.Success, stdout, "")
}

func TestList_DoneAndOpen(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)

	_, stderr, code := h.run("list", "--done", "--open")
	expect(t, code, exitcode.UserError, stderr, "error: cannot use both --done and --open\n")
}

func TestList_BackendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"network", fmt.Errorf("%w: dial tcp", service.ErrNetworkUnavailable), exitcode.BackendError, "error: could not connect to the server, please check your connection\n"},
		{"timeout", service.ErrTimeout, exitcode.BackendError, "error: the server took too long to respond\n"},
		{"status message", &service.StatusError{Code: 500, Message: "database down"}, exitcode.BackendError, "error: database down\n"},
		{"status without message", &service.StatusError{Code: 502}, exitcode.BackendError, "error: failed to load tasks\n"},
		{"unauthorized", service.ErrUnauthorized, exitcode.AuthError, "error: authentication error, please sign in again (run: atask login)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.signIn(alice)
			h.svc.ListTasksErr = tt.err

			_, stderr, code := h.run("list")
			expect(t, code, tt.code, stderr, tt.want)
		})
	}
}

// Tests for add command
func TestAdd_Success(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)

	stdout, _, code := h.run("add", "--priority", "HIGH", "--due", "2024-06-01", "--tags", "work, q1,", "--desc", "numbers", "Write", "report")
	expect(t, code, exitcode.Success, stdout, "ok\n")

	got := h.task("t1")
	if got.Title != "Write report" || got.Description != "numbers" || got.Priority != service.PriorityHigh {
		t.Errorf("unexpected task %+v", got)
	}
	if got.DueDate == nil || got.DueDate.Format("2006-01-02") != "2024-06-01" {
		t.Errorf("unexpected due date %v", got.DueDate)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "work" || got.Tags[1] != "q1" {
		t.Errorf("unexpected tags %q", got.Tags)
	}
}

func TestAdd_CreateAliasQuiet(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)

	stdout, _, code := h.run("create", "--quiet", "Buy milk")
	expect(t, code, exitcode.Success, stdout, "")
	if got := h.task("t1"); got.Priority != service.PriorityMedium {
		t.Errorf("expected default priority medium, got %q", got.Priority)
	}
}

func TestAdd_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no title", []string{"add"}, "error: title required\n"},
		{"blank title", []string{"add", "  "}, "error: title required\n"},
		{"priority", []string{"add", "--priority", "urgent", "x"}, "error: invalid priority: urgent (want low, medium or high)\n"},
		{"due", []string{"add", "--due", "tomorrow", "x"}, "error: invalid due date: tomorrow (want YYYY-MM-DD)\n"},
		{"missing flag value", []string{"add", "--due"}, "error: flag needs an argument: -due\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.signIn(alice)

			_, stderr, code := h.run(tt.args...)
			expect(t, code, exitcode.UserError, stderr, tt.want)
			if calls := h.svc.Calls(); len(calls) != 0 {
				t.Errorf("expected no backend calls, got %v", calls)
			}
		})
	}
}

func TestAdd_ServerRejects(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.svc.CreateTaskErr = &service.StatusError{Code: 400, Message: "Title is too long"}

	_, stderr, code := h.run("add", "x")
	expect(t, code, exitcode.BackendError, stderr, "error: Title is too long\n")
}

// Tests for done command
func TestDone_Toggles(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.seed("Buy milk", "Buy eggs")

	stdout, _, code := h.run("done", "2")
	expect(t, code, exitcode.Success, stdout, "ok: done\n")
	if !h.task("s1").Completed {
		t.Error("expected s1 completed")
	}

	stdout, _, code = h.run("done", "s1")
	expect(t, code, exitcode.Success, stdout, "ok: reopened\n")
	if h.task("s1").Completed {
		t.Error("expected s1 reopened")
	}
}

func TestDone_BadRefs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no ref", []string{"done"}, "error: task reference required\n"},
		{"out of range", []string{"done", "5"}, "error: task number out of range: 5\n"},
		{"unknown id", []string{"done", "nope"}, "error: task not found: nope\n"},
		{"two refs", []string{"done", "1", "2"}, "error: unexpected argument: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.signIn(alice)
			h.seed("Buy milk")

			_, stderr, code := h.run(tt.args...)
			expect(t, code, exitcode.UserError, stderr, tt.want)
		})
	}
}

// Tests for edit command
func TestEdit_ChangesOnlyGivenFields(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.svc.AddTask(service.Task{ID: "s1", Title: "Draft", Description: "keep me", CreatedAt: time.Now()})

	stdout, _, code := h.run("edit", "--title", "Final", "--priority", "low", "1")
	expect(t, code, exitcode.Success, stdout, "ok\n")

	got := h.task("s1")
	if got.Title != "Final" || got.Description != "keep me" || got.Priority != service.PriorityLow {
		t.Errorf("unexpected task %+v", got)
	}
}

func TestEdit_Validation(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.seed("Draft")

	_, stderr, code := h.run("edit", "1")
	expect(t, code, exitcode.UserError, stderr, "error: nothing to change\n")

	_, stderr, code = h.run("edit", "--title", " ", "1")
	expect(t, code, exitcode.UserError, stderr, "error: title cannot be empty\n")

	// Flags from the previous run must not leak into this one.
	_, stderr, code = h.run("edit", "1")
	expect(t, code, exitcode.UserError, stderr, "error: nothing to change\n")
}

// Tests for show command
func TestShow(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.svc.AddTask(service.Task{
		ID:          "s1",
		Title:       "Write report",
		Description: "Quarterly numbers",
		Priority:    service.PriorityHigh,
		CreatedAt:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Tags:        []string{"work"},
	})

	stdout, _, code := h.run("show", "1")
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	want := "ID:        s1\nTitle:     Write report\nStatus:    open\nPriority:  high\nDue:       -\nTags:      work\nCreated:   2024-01-01 12:00\nUpdated:   -\n\n  Quarterly numbers\n"
	if stdout != want {
		t.Errorf("expected %q, got %q", want, stdout)
	}

	calls := h.svc.Calls()
	if calls[len(calls)-1] != "GetTask s1" {
		t.Errorf("expected a GetTask call, got %v", calls)
	}
}

// Tests for rm command
func TestRm(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.seed("Buy milk", "Buy eggs")

	stdout, _, code := h.run("rm", "1")
	expect(t, code, exitcode.Success, stdout, "ok\n")

	remaining := h.svc.Tasks()
	if len(remaining) != 1 || remaining[0].ID != "s1" {
		t.Errorf("expected only s1 left, got %+v", remaining)
	}
}

func TestRm_GoneOnServer(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.seed("Buy milk")
	h.svc.DeleteTaskErr = service.ErrNotFound

	_, stderr, code := h.run("rm", "1")
	expect(t, code, exitcode.UserError, stderr, "error: task not found\n")
}

// Tests for refresh command
func TestRefresh(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.seed("a", "b")

	stdout, _, code := h.run("refresh")
	expect(t, code, exitcode.Success, stdout, "2 tasks\n")
}

// Tests for login, register, logout and whoami
func TestLogin_ExistingUser(t *testing.T) {
	h := newHarness(t)
	h.svc.AddUser(alice)

	stdout, _, code := h.run("login", "alice@example.com")
	expect(t, code, exitcode.Success, stdout, "signed in as alice@example.com\n")

	stdout, _, code = h.run("whoami")
	expect(t, code, exitcode.Success, stdout, "alice@example.com (Alice) [email]\n")
}

func TestLogin_UnknownUser(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.run("login", "bob@example.com")
	expect(t, code, exitcode.UserError, stderr, "error: no account for bob@example.com (run: atask login --register bob@example.com)\n")

	stdout, _, code := h.run("login", "--register", "--name", "Bob", "bob@example.com")
	expect(t, code, exitcode.Success, stdout, "registered and signed in as bob@example.com\n")

	stdout, _, code = h.run("whoami")
	expect(t, code, exitcode.Success, stdout, "bob@example.com (Bob) [email]\n")
}

func TestLogin_InvalidEmail(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.run("login")
	expect(t, code, exitcode.UserError, stderr, "error: email required\n")

	_, stderr, code = h.run("login", "alice")
	expect(t, code, exitcode.UserError, stderr, "error: invalid email: alice\n")
}

func TestLogin_BackendDown(t *testing.T) {
	h := newHarness(t)
	h.svc.LoginErr = service.ErrNetworkUnavailable

	_, stderr, code := h.run("login", "alice@example.com")
	expect(t, code, exitcode.BackendError, stderr, "error: backend error: network unavailable\n")
}

func TestRegister_Conflict(t *testing.T) {
	h := newHarness(t)
	h.svc.AddUser(alice)

	_, stderr, code := h.run("register", "alice@example.com")
	expect(t, code, exitcode.UserError, stderr, "error: User already exists\n")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)

	stdout, _, code := h.run("logout")
	expect(t, code, exitcode.Success, stdout, "ok\n")

	_, stderr, code := h.run("whoami")
	expect(t, code, exitcode.AuthError, stderr, "error: not logged in (run: atask login)\n")

	stdout, _, code = h.run("logout")
	expect(t, code, exitcode.Success, stdout, "not logged in\n")
}

func TestLogout_RemovesGoogleToken(t *testing.T) {
	h := newHarness(t)
	if err := os.MkdirAll(h.dir, 0700); err != nil {
		t.Fatal(err)
	}
	tokenPath := filepath.Join(h.dir, config.GoogleTokenFile)
	if err := os.WriteFile(tokenPath, []byte(`{}`), 0600); err != nil {
		t.Fatal(err)
	}

	stdout, _, code := h.run("logout")
	expect(t, code, exitcode.Success, stdout, "ok\n")
	if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
		t.Error("expected google token removed")
	}
}

// Tests for login-google command
func googleCmd(t *testing.T) *commands.LoginGoogleCmd {
	t.Helper()
	c, ok := commands.DefaultRegistry.Find("login-google")
	if !ok {
		t.Fatal("login-google not registered")
	}
	cmd := c.(*commands.LoginGoogleCmd)
	t.Cleanup(func() { cmd.SetSignIn(nil) })
	return cmd
}

func TestLoginGoogle(t *testing.T) {
	h := newHarness(t)
	h.svc.AddGoogleUser("google-id", service.User{ID: "g1", Email: "gina@example.com", AuthType: service.AuthGoogle})
	googleCmd(t).SetSignIn(func(ctx context.Context, cfg *config.Config, prompt io.Writer) (*oauth2.Token, error) {
		tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}
		return tok.WithExtra(map[string]any{"id_token": "google-id"}), nil
	})

	stdout, _, code := h.run("login-google")
	expect(t, code, exitcode.Success, stdout, "signed in as gina@example.com\n")

	if _, err := os.Stat(filepath.Join(h.dir, config.GoogleTokenFile)); err != nil {
		t.Errorf("expected google token saved: %v", err)
	}
}

func TestLoginGoogle_Rejected(t *testing.T) {
	h := newHarness(t)
	googleCmd(t).SetSignIn(func(ctx context.Context, cfg *config.Config, prompt io.Writer) (*oauth2.Token, error) {
		return (&oauth2.Token{AccessToken: "a"}).WithExtra(map[string]any{"id_token": "unknown"}), nil
	})

	_, stderr, code := h.run("login-google")
	expect(t, code, exitcode.AuthError, stderr, "error: sign-in rejected: unauthorized\n")
}

func TestLoginGoogle_NoIDToken(t *testing.T) {
	h := newHarness(t)
	googleCmd(t).SetSignIn(func(ctx context.Context, cfg *config.Config, prompt io.Writer) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "a"}, nil
	})

	_, stderr, code := h.run("login-google")
	expect(t, code, exitcode.AuthError, stderr, "error: google did not return an ID token\n")
}

func TestLoginGoogle_NoClientFile(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.run("login-google")
	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.HasPrefix(stderr, "error: google_client.json not found in "+h.dir) {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

// Tests for import-google command
type stubSource struct {
	drafts []service.TaskDraft
	err    error
	list   string
}

func (s *stubSource) Drafts(ctx context.Context, listName string) ([]service.TaskDraft, error) {
	s.list = listName
	return s.drafts, s.err
}

func importCmd(t *testing.T, src *stubSource) {
	t.Helper()
	c, ok := commands.DefaultRegistry.Find("import-google")
	if !ok {
		t.Fatal("import-google not registered")
	}
	cmd := c.(*commands.ImportGoogleCmd)
	cmd.SetSource(func(ctx context.Context, cfg *config.Config) (commands.DraftSource, error) {
		return src, nil
	})
	t.Cleanup(func() { cmd.SetSource(nil) })
}

func TestImportGoogle(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	h.svc.AddTask(service.Task{ID: "s1", Title: "Buy milk", Tags: []string{googletasks.ImportTag}, CreatedAt: time.Now()})

	src := &stubSource{drafts: []service.TaskDraft{
		{Title: "buy milk", Tags: []string{googletasks.ImportTag}},
		{Title: "Call mom", Tags: []string{googletasks.ImportTag, "Personal"}},
		{Title: "Pay rent", Tags: []string{googletasks.ImportTag, "Personal"}},
	}}
	importCmd(t, src)

	stdout, _, code := h.run("import-google", "--dry-run", "--list", "Personal")
	expect(t, code, exitcode.Success, stdout, "would import: Call mom\nwould import: Pay rent\n")
	if src.list != "Personal" {
		t.Errorf("expected list Personal passed through, got %q", src.list)
	}
	if n := len(h.svc.Tasks()); n != 1 {
		t.Fatalf("dry run created tasks: %d", n)
	}

	stdout, _, code = h.run("import-google")
	expect(t, code, exitcode.Success, stdout, "imported 2 tasks (1 already imported)\n")
	if n := len(h.svc.Tasks()); n != 3 {
		t.Errorf("expected 3 tasks after import, got %d", n)
	}
}

func TestImportGoogle_ListNotFound(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)
	importCmd(t, &stubSource{err: fmt.Errorf("%w: Work", googletasks.ErrListNotFound)})

	_, stderr, code := h.run("import-google", "--list", "Work")
	expect(t, code, exitcode.UserError, stderr, "error: list not found: Work\n")
}

func TestImportGoogle_NotSignedInToGoogle(t *testing.T) {
	h := newHarness(t)
	h.signIn(alice)

	_, stderr, code := h.run("import-google")
	expect(t, code, exitcode.AuthError, stderr, "error: not signed in to Google (run: atask login-google)\n")
}
