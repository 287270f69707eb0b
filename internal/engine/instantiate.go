package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"inproc/internal/catalog"
	"inproc/internal/domain"
	"inproc/internal/events"
)

// RequestAttrs carries the intake form fields for creating or editing a
// request. Supervisor and employee are identified by email; user records are
// created on first sight.
type RequestAttrs struct {
	EmpName              string
	EmpType              domain.EmpType
	GradeRank            string
	MPCN                 int
	SAR                  int
	SensitivityCode      int
	WorkLocation         string
	Office               string
	IsNewCivMil          string
	PrevOrg              string
	IsNewToBaseAndCenter string
	HasExistingCAC       string
	CACExpiration        *string
	ETA                  string
	CompletionDate       string
	SupervisorName       string
	SupervisorEmail      string
	EmployeeName         string
	EmployeeEmail        string
	IsTraveler           string
	IsSupervisor         string
}

func (a RequestAttrs) validate() error {
	if a.EmpName == "" {
		return invalidf("employee name is required")
	}
	if !domain.ValidEmpType(a.EmpType) {
		return invalidf("unknown employment type %q", a.EmpType)
	}
	if a.SupervisorEmail == "" {
		return invalidf("supervisor email is required")
	}
	if a.ETA == "" {
		return invalidf("eta is required")
	}
	return nil
}

// CreateResult is the outcome of CreateRequest. NotifyErr reports a failed
// submit notification; the request itself is already committed.
type CreateResult struct {
	Request   domain.Request
	Checklist []domain.ChecklistItem
	NotifyErr error
}

// CreateRequest records a new in-processing request and instantiates its
// checklist from the template catalog in one transaction.
func (e Engine) CreateRequest(ctx context.Context, attrs RequestAttrs, actorID string) (CreateResult, error) {
	if err := attrs.validate(); err != nil {
		return CreateResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CreateResult{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	supervisor, err := e.Repo.EnsureUserByEmailTx(ctx, tx, attrs.SupervisorName, attrs.SupervisorEmail, now)
	if err != nil {
		return CreateResult{}, fmt.Errorf("resolve supervisor: %w", err)
	}
	req := attrs.toRequest(now)
	req.SupervisorID = supervisor.ID
	if attrs.EmployeeEmail != "" {
		employee, err := e.Repo.EnsureUserByEmailTx(ctx, tx, attrs.EmployeeName, attrs.EmployeeEmail, now)
		if err != nil {
			return CreateResult{}, fmt.Errorf("resolve employee: %w", err)
		}
		req.EmployeeID = &employee.ID
	}

	batchKey := uuid.NewString()
	id, err := e.Repo.InsertRequestTx(ctx, tx, req, batchKey)
	if err != nil {
		return CreateResult{}, fmt.Errorf("insert request: %w", err)
	}
	req.ID = id

	var items []domain.ChecklistItem
	for _, tpl := range templatesFor(req) {
		it := domain.ChecklistItem{
			RequestID:   id,
			TemplateID:  int(tpl.ID),
			Lead:        tpl.Lead,
			Title:       tpl.Title,
			Description: tpl.Description,
			Active:      catalog.InitialActive(tpl, req),
			CreatedAt:   now,
		}
		itemID, err := e.Repo.InsertItemTx(ctx, tx, it)
		if err != nil {
			return CreateResult{}, fmt.Errorf("insert checklist item %d: %w", tpl.ID, err)
		}
		it.ID = itemID
		items = append(items, it)
	}

	if err := e.Events.Append(ctx, tx, "request.created", id, "request", fmt.Sprint(id), actorID, events.EventPayload{
		"emp_name":  req.EmpName,
		"emp_type":  req.EmpType,
		"items":     len(items),
		"batch_key": batchKey,
	}); err != nil {
		return CreateResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CreateResult{}, err
	}

	res := CreateResult{Request: req, Checklist: items}
	if e.Notify != nil {
		res.NotifyErr = e.Notify.SubmitEmail(ctx, req)
	}
	return res, nil
}

// UpdateRequest rewrites the intake attributes of an open request. The
// checklist is not re-instantiated.
func (e Engine) UpdateRequest(ctx context.Context, requestID int64, attrs RequestAttrs, actorID string) (domain.Request, error) {
	if err := attrs.validate(); err != nil {
		return domain.Request{}, err
	}
	unlock := e.locks.lock(requestID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()

	existing, err := e.Repo.GetRequestTx(ctx, tx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if existing.Status() != domain.StatusActive {
		return domain.Request{}, invalidf("request %d is %s", requestID, existing.Status())
	}

	now := e.stamp()
	req := attrs.toRequest(existing.CreatedAt)
	req.ID = requestID
	supervisor, err := e.Repo.EnsureUserByEmailTx(ctx, tx, attrs.SupervisorName, attrs.SupervisorEmail, now)
	if err != nil {
		return domain.Request{}, fmt.Errorf("resolve supervisor: %w", err)
	}
	req.SupervisorID = supervisor.ID
	if attrs.EmployeeEmail != "" {
		employee, err := e.Repo.EnsureUserByEmailTx(ctx, tx, attrs.EmployeeName, attrs.EmployeeEmail, now)
		if err != nil {
			return domain.Request{}, fmt.Errorf("resolve employee: %w", err)
		}
		req.EmployeeID = &employee.ID
	}
	if err := e.Repo.UpdateRequestTx(ctx, tx, req); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.updated", requestID, "request", fmt.Sprint(requestID), actorID, nil); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

func (a RequestAttrs) toRequest(createdAt string) domain.Request {
	return domain.Request{
		EmpName:              a.EmpName,
		EmpType:              a.EmpType,
		GradeRank:            a.GradeRank,
		MPCN:                 a.MPCN,
		SAR:                  a.SAR,
		SensitivityCode:      a.SensitivityCode,
		WorkLocation:         a.WorkLocation,
		Office:               a.Office,
		IsNewCivMil:          a.IsNewCivMil,
		PrevOrg:              a.PrevOrg,
		IsNewToBaseAndCenter: a.IsNewToBaseAndCenter,
		HasExistingCAC:       a.HasExistingCAC,
		CACExpiration:        a.CACExpiration,
		ETA:                  a.ETA,
		CompletionDate:       a.CompletionDate,
		IsTraveler:           a.IsTraveler,
		IsSupervisor:         a.IsSupervisor,
		CreatedAt:            createdAt,
	}
}

// templatesFor selects which catalog templates apply to a request. Order is
// the intake form's presentation order, so checklist listings read naturally.
func templatesFor(req domain.Request) []catalog.Template {
	civMil := req.EmpType == domain.EmpCivilian || req.EmpType == domain.EmpMilitary

	var ids []catalog.TemplateID
	add := func(id catalog.TemplateID) {
		ids = append(ids, id)
	}

	add(catalog.WelcomePackage)
	if req.SAR == 5 && req.SensitivityCode == 4 {
		add(catalog.SCIBilletNomination)
	}
	add(catalog.IATraining)
	if req.IsNewCivMil == "yes" {
		add(catalog.InstallationInProcess)
	}
	if req.EmpType == domain.EmpContractor {
		add(catalog.InitiateTASS)
		add(catalog.CoordinateTASS)
	}
	if civMil {
		add(catalog.ObtainCACGov)
	}
	if req.EmpType == domain.EmpContractor {
		add(catalog.ObtainCACCtr)
	}
	add(catalog.BuildingAccess)
	add(catalog.SupervisorCoord2875)
	add(catalog.SecurityCoord2875)
	add(catalog.ProvisionAFNET)
	add(catalog.EquipmentIssue)
	add(catalog.AddSecurityGroups)
	add(catalog.SignedNDA)
	add(catalog.SecurityTraining)
	add(catalog.ConfirmSecurityTraining)
	add(catalog.VerifyMyLearn)
	add(catalog.ConfirmMyLearn)
	if civMil {
		add(catalog.VerifyMyETMS)
		add(catalog.ConfirmMyETMS)
	}
	add(catalog.MandatoryTraining)
	add(catalog.ConfirmMandatoryTraining)
	if req.IsSupervisor == "yes" {
		add(catalog.SupervisorTraining)
	}
	add(catalog.PhoneSetup)
	add(catalog.OrientationVideos)
	add(catalog.Bookmarks)
	add(catalog.NewcomerBrief)
	add(catalog.UnitOrientation)
	add(catalog.Brief971Folder)
	add(catalog.SignedPerformContribPlan)
	add(catalog.SignedTeleworkAgreement)
	add(catalog.TeleworkAddedToWHAT)
	if req.EmpType == domain.EmpCivilian {
		add(catalog.ATAAPS)
		add(catalog.VerifyDirectDeposit)
		add(catalog.VerifyTaxStatus)
	}
	add(catalog.SecurityRequirements)
	if req.IsTraveler == "yes" && civMil {
		add(catalog.CoordGTCApplUpdate)
		add(catalog.GTC)
		add(catalog.DTS)
	}

	out := make([]catalog.Template, 0, len(ids))
	for _, id := range ids {
		if tpl, ok := catalog.Lookup(id); ok {
			out = append(out, tpl)
		}
	}
	return out
}
