package engine_test

import (
	"context"
	"errors"
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
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	r := repo.Repo{DB: conn}
	dispatcher := notify.New(r, cfg, notify.OutboxSender{Repo: r})
	eng := engine.New(conn, cfg, dispatcher)
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func civilianAttrs() engine.RequestAttrs {
	return engine.RequestAttrs{
		EmpName:         "Jordan Casey",
		EmpType:         domain.EmpCivilian,
		SupervisorName:  "Sam Boss",
		SupervisorEmail: "sam.boss@base.mil",
		IsNewCivMil:     "no",
		ETA:             "2024-04-01T08:00:00Z",
	}
}

func contractorAttrs() engine.RequestAttrs {
	a := civilianAttrs()
	a.EmpType = domain.EmpContractor
	a.IsNewCivMil = ""
	return a
}

func mustCreate(t *testing.T, env testEnv, attrs engine.RequestAttrs) engine.CreateResult {
	t.Helper()
	res, err := env.Engine.CreateRequest(env.Ctx, attrs, "tester")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if res.NotifyErr != nil {
		t.Fatalf("submit notification: %v", res.NotifyErr)
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

func hasTemplate(items []domain.ChecklistItem, id catalog.TemplateID) bool {
	for _, it := range items {
		if it.TemplateID == int(id) {
			return true
		}
	}
	return false
}

func supervisorID(t *testing.T, env testEnv) int64 {
	t.Helper()
	u, err := env.Engine.Repo.GetUserByEmail(env.Ctx, "sam.boss@base.mil")
	if err != nil {
		t.Fatalf("supervisor lookup: %v", err)
	}
	return u.ID
}

func mustComplete(t *testing.T, env testEnv, itemID, byID int64) engine.CompletionResult {
	t.Helper()
	res, err := env.Engine.CompleteItem(env.Ctx, itemID, byID, "tester")
	if err != nil {
		t.Fatalf("complete item %d: %v", itemID, err)
	}
	return res
}

func TestCivilianChecklistSelection(t *testing.T) {
	env := newTestEnv(t)
	attrs := civilianAttrs()
	attrs.IsTraveler = "yes"
	res := mustCreate(t, env, attrs)

	for _, id := range []catalog.TemplateID{
		catalog.WelcomePackage, catalog.ObtainCACGov, catalog.ATAAPS,
		catalog.VerifyDirectDeposit, catalog.VerifyTaxStatus,
		catalog.VerifyMyETMS, catalog.ConfirmMyETMS,
		catalog.CoordGTCApplUpdate, catalog.GTC, catalog.DTS,
	} {
		if !hasTemplate(res.Checklist, id) {
			t.Errorf("civilian traveler missing template %d", id)
		}
	}
	for _, id := range []catalog.TemplateID{
		catalog.InitiateTASS, catalog.CoordinateTASS, catalog.ObtainCACCtr,
		catalog.SCIBilletNomination, catalog.InstallationInProcess,
		catalog.SupervisorTraining,
	} {
		if hasTemplate(res.Checklist, id) {
			t.Errorf("civilian traveler should not have template %d", id)
		}
	}

	// No prerequisites means active from the start.
	if !itemFor(t, res.Checklist, catalog.WelcomePackage).Active {
		t.Errorf("welcome package should start active")
	}
	// ATAAPS waits on CAC issuance.
	if itemFor(t, res.Checklist, catalog.ATAAPS).Active {
		t.Errorf("ATAAPS should start inactive")
	}
	// Not a brand new hire, so the government CAC step applies immediately.
	if !itemFor(t, res.Checklist, catalog.ObtainCACGov).Active {
		t.Errorf("obtain CAC (gov) should start active when is_new_civ_mil=no")
	}
}

func TestBrandNewCivilianCACGating(t *testing.T) {
	env := newTestEnv(t)
	attrs := civilianAttrs()
	attrs.IsNewCivMil = "yes"
	res := mustCreate(t, env, attrs)
	if !hasTemplate(res.Checklist, catalog.InstallationInProcess) {
		t.Fatalf("brand new hire should in-process through the installation")
	}
	if itemFor(t, res.Checklist, catalog.ObtainCACGov).Active {
		t.Errorf("obtain CAC (gov) should start inactive when is_new_civ_mil=yes")
	}
}

func TestContractorChecklistSelection(t *testing.T) {
	env := newTestEnv(t)
	attrs := contractorAttrs()
	attrs.IsTraveler = "yes" // contractors do not get GTC/DTS regardless
	res := mustCreate(t, env, attrs)

	for _, id := range []catalog.TemplateID{
		catalog.InitiateTASS, catalog.CoordinateTASS, catalog.ObtainCACCtr,
		catalog.SignedNDA,
	} {
		if !hasTemplate(res.Checklist, id) {
			t.Errorf("contractor missing template %d", id)
		}
	}
	for _, id := range []catalog.TemplateID{
		catalog.ObtainCACGov, catalog.ATAAPS, catalog.VerifyDirectDeposit,
		catalog.VerifyTaxStatus, catalog.VerifyMyETMS, catalog.ConfirmMyETMS,
		catalog.CoordGTCApplUpdate, catalog.GTC, catalog.DTS,
	} {
		if hasTemplate(res.Checklist, id) {
			t.Errorf("contractor should not have template %d", id)
		}
	}
}

func TestNonTravelerExcludesTravelItems(t *testing.T) {
	env := newTestEnv(t)
	attrs := civilianAttrs()
	attrs.IsTraveler = "no"
	res := mustCreate(t, env, attrs)
	for _, id := range []catalog.TemplateID{catalog.CoordGTCApplUpdate, catalog.GTC, catalog.DTS} {
		if hasTemplate(res.Checklist, id) {
			t.Errorf("non-traveler should not have template %d", id)
		}
	}
}

func TestSCIBilletSelection(t *testing.T) {
	env := newTestEnv(t)
	attrs := civilianAttrs()
	attrs.SAR = 5
	attrs.SensitivityCode = 4
	res := mustCreate(t, env, attrs)
	if !hasTemplate(res.Checklist, catalog.SCIBilletNomination) {
		t.Fatalf("SAR 5 / sensitivity 4 should add SCI billet nomination")
	}
}

func TestActivationChain(t *testing.T) {
	env := newTestEnv(t)
	res := mustCreate(t, env, civilianAttrs())
	by := supervisorID(t, env)

	sup2875 := itemFor(t, res.Checklist, catalog.SupervisorCoord2875)
	sec2875 := itemFor(t, res.Checklist, catalog.SecurityCoord2875)
	afnet := itemFor(t, res.Checklist, catalog.ProvisionAFNET)
	if sec2875.Active || afnet.Active {
		t.Fatalf("2875 chain should start inactive")
	}

	cres := mustComplete(t, env, sup2875.ID, by)
	activated := cres.Activated[domain.RoleSecurity]
	if len(activated) != 1 || activated[0].TemplateID != int(catalog.SecurityCoord2875) {
		t.Fatalf("expected security 2875 activation, got %+v", cres.Activated)
	}

	cres = mustComplete(t, env, sec2875.ID, by)
	if len(cres.Activated[domain.RoleIT]) == 0 {
		t.Fatalf("expected IT activation after security 2875, got %+v", cres.Activated)
	}

	items, err := env.Engine.Checklist(env.Ctx, res.Request.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !itemFor(t, items, catalog.ProvisionAFNET).Active {
		t.Errorf("AFNET provisioning should be active after security 2875")
	}
}

func TestMultiPrerequisiteActivation(t *testing.T) {
	env := newTestEnv(t)
	res := mustCreate(t, env, civilianAttrs())
	by := supervisorID(t, env)

	myLearn := itemFor(t, res.Checklist, catalog.VerifyMyLearn)
	myETMS := itemFor(t, res.Checklist, catalog.VerifyMyETMS)

	cres := mustComplete(t, env, myLearn.ID, by)
	for _, items := range cres.Activated {
		for _, it := range items {
			if it.TemplateID == int(catalog.MandatoryTraining) {
				t.Fatalf("mandatory training activated with myETMS outstanding")
			}
		}
	}

	cres = mustComplete(t, env, myETMS.ID, by)
	found := false
	for _, items := range cres.Activated {
		for _, it := range items {
			if it.TemplateID == int(catalog.MandatoryTraining) {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("mandatory training should activate once both verifications complete")
	}
}

func TestAbsentPrerequisiteIsSatisfied(t *testing.T) {
	env := newTestEnv(t)
	res := mustCreate(t, env, contractorAttrs())
	by := supervisorID(t, env)

	// Contractors have no myETMS item, so mandatory training only waits on
	// myLearn verification.
	myLearn := itemFor(t, res.Checklist, catalog.VerifyMyLearn)
	cres := mustComplete(t, env, myLearn.ID, by)
	found := false
	for _, items := range cres.Activated {
		for _, it := range items {
			if it.TemplateID == int(catalog.MandatoryTraining) {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("mandatory training should activate for contractor after myLearn alone")
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	res := mustCreate(t, env, civilianAttrs())
	by := supervisorID(t, env)

	sup2875 := itemFor(t, res.Checklist, catalog.SupervisorCoord2875)
	mustComplete(t, env, sup2875.ID, by)

	before, err := env.Engine.Repo.ListEmails(env.Ctx, 200)
	if err != nil {
		t.Fatal(err)
	}
	second := mustComplete(t, env, sup2875.ID, by)
	if !second.AlreadyCompleted {
		t.Fatalf("expected already-completed marker")
	}
	if len(second.Activated) != 0 {
		t.Fatalf("repeat completion should not activate anything")
	}
	after, err := env.Engine.Repo.ListEmails(env.Ctx, 200)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("repeat completion sent mail: %d -> %d", len(before), len(after))
	}
}

func TestReactivateDoesNotCascade(t *testing.T) {
	env := newTestEnv(t)
	res := mustCreate(t, env, civilianAttrs())
	by := supervisorID(t, env)

	sup2875 := itemFor(t, res.Checklist, catalog.SupervisorCoord2875)
	mustComplete(t, env, sup2875.ID, by)

	item, err := env.Engine.ReactivateItem(env.Ctx, sup2875.ID, "tester")
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if item.Completed() || !item.Active {
		t.Fatalf("reactivated item should be active and incomplete: %+v", item)
	}

	items, err := env.Engine.Checklist(env.Ctx, res.Request.ID)
	if err != nil {
		t.Fatal(err)
	}
	// The downstream item stays active; the walk only runs forward.
	if !itemFor(t, items, catalog.SecurityCoord2875).Active {
		t.Errorf("security 2875 should remain active after upstream reactivation")
	}
}

func TestCloseRequiresCompleteChecklist(t *testing.T) {
	env := newTestEnv(t)
	res := mustCreate(t, env, civilianAttrs())
	by := supervisorID(t, env)

	_, err := env.Engine.CloseRequest(env.Ctx, res.Request.ID, "tester")
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error closing with open items, got %v", err)
	}

	for _, it := range res.Checklist {
		mustComplete(t, env, it.ID, by)
	}
	req, err := env.Engine.CloseRequest(env.Ctx, res.Request.ID, "tester")
	if err != nil {
		t.Fatalf("close after completing everything: %v", err)
	}
	if req.Status() != domain.StatusClosed {
		t.Fatalf("expected Closed, got %s", req.Status())
	}
}

func TestCancelRequest(t *testing.T) {
	env := newTestEnv(t)
	res := mustCreate(t, env, civilianAttrs())
	by := supervisorID(t, env)

	_, err := env.Engine.CancelRequest(env.Ctx, res.Request.ID, "", "tester")
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected reason required, got %v", err)
	}

	req, err := env.Engine.CancelRequest(env.Ctx, res.Request.ID, "position withdrawn", "tester")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if req.Status() != domain.StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", req.Status())
	}

	// No further mutations on a cancelled request.
	item := itemFor(t, res.Checklist, catalog.WelcomePackage)
	if _, err := env.Engine.CompleteItem(env.Ctx, item.ID, by, "tester"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error completing on cancelled request, got %v", err)
	}
	if _, err := env.Engine.CancelRequest(env.Ctx, res.Request.ID, "again", "tester"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error cancelling twice, got %v", err)
	}
}

func TestRolesAndMyItems(t *testing.T) {
	env := newTestEnv(t)
	mustCreate(t, env, civilianAttrs())

	role, err := env.Engine.AddRole(env.Ctx, "Riley Ops", "riley@base.mil", domain.RoleIT, "tester")
	if err != nil {
		t.Fatalf("add role: %v", err)
	}
	if role.User.Email != "riley@base.mil" {
		t.Fatalf("unexpected role user: %+v", role.User)
	}
	if _, err := env.Engine.AddRole(env.Ctx, "Riley Ops", "riley@base.mil", domain.RoleIT, "tester"); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict on duplicate role, got %v", err)
	}

	// IT items start inactive, so nothing is waiting on Riley yet.
	items, err := env.Engine.MyItems(env.Ctx, "riley@base.mil", true)
	if err != nil {
		t.Fatalf("my items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no active IT items, got %d", len(items))
	}

	// The supervisor sees their own active items immediately.
	supItems, err := env.Engine.MyItems(env.Ctx, "sam.boss@base.mil", true)
	if err != nil {
		t.Fatalf("supervisor items: %v", err)
	}
	if len(supItems) == 0 {
		t.Fatalf("expected active supervisor items")
	}
}

func TestRequestUpdateGuards(t *testing.T) {
	env := newTestEnv(t)
	res := mustCreate(t, env, civilianAttrs())

	attrs := civilianAttrs()
	attrs.Office = "DET 1"
	req, err := env.Engine.UpdateRequest(env.Ctx, res.Request.ID, attrs, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if req.Office != "DET 1" {
		t.Fatalf("office not updated: %+v", req)
	}

	if _, err := env.Engine.CancelRequest(env.Ctx, res.Request.ID, "gone", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateRequest(env.Ctx, res.Request.ID, attrs, "tester"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error updating cancelled request, got %v", err)
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	res := mustCreate(t, env, civilianAttrs())
	by := supervisorID(t, env)
	sup2875 := itemFor(t, res.Checklist, catalog.SupervisorCoord2875)
	mustComplete(t, env, sup2875.ID, by)

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, res.Request.ID, 50)
	if err != nil {
		t.Fatal(err)
	}
	types := map[string]bool{}
	for _, e := range events {
		types[e.Type] = true
	}
	for _, want := range []string{"request.created", "checklist.completed", "checklist.activated"} {
		if !types[want] {
			t.Errorf("missing event %s; have %v", want, types)
		}
	}
}
