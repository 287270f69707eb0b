package notify_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"inproc/internal/catalog"
	"inproc/internal/config"
	"inproc/internal/db"
	"inproc/internal/domain"
	"inproc/internal/engine"
	"inproc/internal/migrate"
	"inproc/internal/notify"
	"inproc/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Repo   repo.Repo
	Config *config.Config
	Ctx    context.Context
}

func newTestEnv(t *testing.T, sender notify.Sender) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.App.BaseURL = "https://inproc.example.mil"
	r := repo.Repo{DB: conn}
	if sender == nil {
		sender = notify.OutboxSender{Repo: r}
	}
	eng := engine.New(conn, cfg, notify.New(r, cfg, sender))
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Repo: r, Config: cfg, Ctx: context.Background()}
}

func createRequest(t *testing.T, env testEnv, employeeEmail string) engine.CreateResult {
	t.Helper()
	attrs := engine.RequestAttrs{
		EmpName:         "Jordan Casey",
		EmpType:         domain.EmpCivilian,
		SupervisorName:  "Sam Boss",
		SupervisorEmail: "sam.boss@base.mil",
		EmployeeEmail:   employeeEmail,
		IsNewCivMil:     "no",
		ETA:             "2024-04-01T08:00:00Z",
	}
	res, err := env.Engine.CreateRequest(env.Ctx, attrs, "tester")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return res
}

func itemFor(t *testing.T, items []domain.ChecklistItem, id catalog.TemplateID) domain.ChecklistItem {
	t.Helper()
	for _, it := range items {
		if it.TemplateID == int(id) {
			return it
		}
	}
	t.Fatalf("template %d not on checklist", id)
	return domain.ChecklistItem{}
}

func outbox(t *testing.T, env testEnv) []domain.Email {
	t.Helper()
	emails, err := env.Repo.ListEmails(env.Ctx, 200)
	if err != nil {
		t.Fatal(err)
	}
	return emails
}

func TestSubmitEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	createRequest(t, env, "")

	emails := outbox(t, env)
	if len(emails) != 1 {
		t.Fatalf("expected one submit email, got %d", len(emails))
	}
	e := emails[0]
	if e.To != "sam.boss@base.mil" {
		t.Errorf("submit email to %q", e.To)
	}
	if e.Subject != "In/Out Process - In Process: Jordan Casey has been submitted" {
		t.Errorf("unexpected subject %q", e.Subject)
	}
	if strings.Contains(e.Body, "\n") {
		t.Errorf("newlines should be rewritten for HTML mail: %q", e.Body)
	}
	if !strings.Contains(e.Body, "<BR>") {
		t.Errorf("expected <BR> line breaks: %q", e.Body)
	}
}

func TestTestModeSubject(t *testing.T) {
	env := newTestEnv(t, nil)
	env.Config.App.TestMode = true
	createRequest(t, env, "")

	emails := outbox(t, env)
	if len(emails) != 1 {
		t.Fatalf("expected one email, got %d", len(emails))
	}
	if !strings.HasPrefix(emails[0].Subject, "TEST - In/Out Process - ") {
		t.Errorf("test mode subject %q", emails[0].Subject)
	}
}

func TestEmployeeFallsBackToSupervisor(t *testing.T) {
	env := newTestEnv(t, nil)
	res := createRequest(t, env, "")
	sup, err := env.Repo.GetUserByEmail(env.Ctx, "sam.boss@base.mil")
	if err != nil {
		t.Fatal(err)
	}

	// Completing the gov CAC item activates employee-lead items; with no
	// employee account yet the mail goes to the supervisor.
	cac := itemFor(t, res.Checklist, catalog.ObtainCACGov)
	cres, err := env.Engine.CompleteItem(env.Ctx, cac.ID, sup.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if cres.NotifyErr != nil {
		t.Fatalf("notify: %v", cres.NotifyErr)
	}
	if len(cres.Activated[domain.RoleEmployee]) == 0 {
		t.Fatalf("expected employee activation, got %+v", cres.Activated)
	}

	found := false
	for _, e := range outbox(t, env) {
		if strings.Contains(e.Subject, "New checklist item(s) available") && e.To == "sam.boss@base.mil" {
			found = true
			if e.CC != "sam.boss@base.mil" {
				t.Errorf("supervisor should be CCed, got %q", e.CC)
			}
			if !strings.Contains(e.Body, "/item/") {
				t.Errorf("expected deep link in body: %q", e.Body)
			}
		}
	}
	if !found {
		t.Fatalf("no activation email fell back to the supervisor")
	}
}

func TestActivationEmailGoesToEmployee(t *testing.T) {
	env := newTestEnv(t, nil)
	res := createRequest(t, env, "jordan.casey@base.mil")
	sup, err := env.Repo.GetUserByEmail(env.Ctx, "sam.boss@base.mil")
	if err != nil {
		t.Fatal(err)
	}

	cac := itemFor(t, res.Checklist, catalog.ObtainCACGov)
	if _, err := env.Engine.CompleteItem(env.Ctx, cac.ID, sup.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, e := range outbox(t, env) {
		if strings.Contains(e.Subject, "New checklist item(s) available") && e.To == "jordan.casey@base.mil" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected activation email addressed to the employee")
	}
}

func TestReminderListsOutstandingItems(t *testing.T) {
	env := newTestEnv(t, nil)
	res := createRequest(t, env, "jordan.casey@base.mil")
	sup, err := env.Repo.GetUserByEmail(env.Ctx, "sam.boss@base.mil")
	if err != nil {
		t.Fatal(err)
	}

	// Several employee-lead items are active from the start, so an
	// activation email to the employee carries a reminder section.
	cac := itemFor(t, res.Checklist, catalog.ObtainCACGov)
	if _, err := env.Engine.CompleteItem(env.Ctx, cac.ID, sup.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range outbox(t, env) {
		if e.To == "jordan.casey@base.mil" && strings.Contains(e.Body, "still awaiting your action") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected reminder section for outstanding employee items")
	}
}

// flakySender fails for one recipient group and records the rest.
type flakySender struct {
	failTo string
	repo   repo.Repo
}

func (s *flakySender) Send(ctx context.Context, email domain.Email) error {
	if email.To == s.failTo {
		return fmt.Errorf("smtp refused")
	}
	_, err := s.repo.InsertEmail(ctx, email)
	return err
}

func TestGroupFailureDoesNotBlockOthers(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	r := repo.Repo{DB: conn}
	sender := &flakySender{failTo: "jordan.casey@base.mil", repo: r}
	eng := engine.New(conn, cfg, notify.New(r, cfg, sender))
	env := testEnv{Engine: eng, Repo: r, Config: cfg, Ctx: context.Background()}

	res := createRequest(t, env, "jordan.casey@base.mil")
	sup, err := r.GetUserByEmail(env.Ctx, "sam.boss@base.mil")
	if err != nil {
		t.Fatal(err)
	}

	// Completing the gov CAC item activates both employee-lead items and
	// ATAAPS: two recipient groups in one fan-out.
	cac := itemFor(t, res.Checklist, catalog.ObtainCACGov)
	cres, err := env.Engine.CompleteItem(env.Ctx, cac.ID, sup.ID, "tester")
	if err != nil {
		t.Fatalf("completion must succeed even when mail fails: %v", err)
	}
	if cres.NotifyErr == nil {
		t.Fatalf("expected notify error for the employee group")
	}
	if !strings.Contains(cres.NotifyErr.Error(), "Employee") {
		t.Errorf("error should name the failing group: %v", cres.NotifyErr)
	}

	// The ATAAPS group email still went out.
	if len(cres.Activated[domain.RoleATAAPS]) == 0 {
		t.Fatalf("expected ATAAPS activation, got %+v", cres.Activated)
	}
	emails := outbox(t, env)
	if len(emails) == 0 {
		t.Fatalf("other groups should still be notified")
	}
	for _, e := range emails {
		if e.To == "jordan.casey@base.mil" {
			t.Fatalf("failed group must not appear in the outbox")
		}
	}
}
