package server

import (
	"encoding/json"

	"inproc/internal/domain"
	"inproc/internal/engine"
)

// Request payloads

type RequestAttrsBody struct {
	EmpName              string  `json:"emp_name"`
	EmpType              string  `json:"emp_type" enum:"Civilian,Contractor,Military"`
	GradeRank            string  `json:"grade_rank,omitempty"`
	MPCN                 int     `json:"mpcn,omitempty"`
	SAR                  int     `json:"sar,omitempty"`
	SensitivityCode      int     `json:"sensitivity_code,omitempty"`
	WorkLocation         string  `json:"work_location,omitempty"`
	Office               string  `json:"office,omitempty"`
	IsNewCivMil          string  `json:"is_new_civ_mil,omitempty" enum:"yes,no,"`
	PrevOrg              string  `json:"prev_org,omitempty"`
	IsNewToBaseAndCenter string  `json:"is_new_to_base_and_center,omitempty" enum:"yes,no,"`
	HasExistingCAC       string  `json:"has_existing_cac,omitempty" enum:"yes,no,"`
	CACExpiration        *string `json:"cac_expiration,omitempty" format:"date-time"`
	ETA                  string  `json:"eta" format:"date-time"`
	CompletionDate       string  `json:"completion_date,omitempty" format:"date-time"`
	SupervisorName       string  `json:"supervisor_name,omitempty"`
	SupervisorEmail      string  `json:"supervisor_email"`
	EmployeeName         string  `json:"employee_name,omitempty"`
	EmployeeEmail        string  `json:"employee_email,omitempty"`
	IsTraveler           string  `json:"is_traveler,omitempty" enum:"yes,no,"`
	IsSupervisor         string  `json:"is_supervisor,omitempty" enum:"yes,no,"`
}

func (b RequestAttrsBody) toAttrs() engine.RequestAttrs {
	return engine.RequestAttrs{
		EmpName:              b.EmpName,
		EmpType:              domain.EmpType(b.EmpType),
		GradeRank:            b.GradeRank,
		MPCN:                 b.MPCN,
		SAR:                  b.SAR,
		SensitivityCode:      b.SensitivityCode,
		WorkLocation:         b.WorkLocation,
		Office:               b.Office,
		IsNewCivMil:          b.IsNewCivMil,
		PrevOrg:              b.PrevOrg,
		IsNewToBaseAndCenter: b.IsNewToBaseAndCenter,
		HasExistingCAC:       b.HasExistingCAC,
		CACExpiration:        b.CACExpiration,
		ETA:                  b.ETA,
		CompletionDate:       b.CompletionDate,
		SupervisorName:       b.SupervisorName,
		SupervisorEmail:      b.SupervisorEmail,
		EmployeeName:         b.EmployeeName,
		EmployeeEmail:        b.EmployeeEmail,
		IsTraveler:           b.IsTraveler,
		IsSupervisor:         b.IsSupervisor,
	}
}

type CancelRequestBody struct {
	Reason string `json:"reason"`
}

type CompleteItemBody struct {
	CompletedByEmail string `json:"completed_by_email"`
}

type AddRoleBody struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role" enum:"Admin,IT,ATAAPS,FOG,DTS,GTC,Security,Employee,Supervisor"`
}

// Response payloads

type RequestResponse struct {
	ID                    int64   `json:"id"`
	EmpName               string  `json:"emp_name"`
	EmpType               string  `json:"emp_type" enum:"Civilian,Contractor,Military"`
	GradeRank             string  `json:"grade_rank,omitempty"`
	MPCN                  int     `json:"mpcn,omitempty"`
	SAR                   int     `json:"sar,omitempty"`
	SensitivityCode       int     `json:"sensitivity_code,omitempty"`
	WorkLocation          string  `json:"work_location,omitempty"`
	Office                string  `json:"office,omitempty"`
	IsNewCivMil           string  `json:"is_new_civ_mil,omitempty"`
	PrevOrg               string  `json:"prev_org,omitempty"`
	IsNewToBaseAndCenter  string  `json:"is_new_to_base_and_center,omitempty"`
	HasExistingCAC        string  `json:"has_existing_cac,omitempty"`
	CACExpiration         *string `json:"cac_expiration,omitempty" format:"date-time"`
	ETA                   string  `json:"eta" format:"date-time"`
	CompletionDate        string  `json:"completion_date,omitempty" format:"date-time"`
	SupervisorID          int64   `json:"supervisor_id"`
	EmployeeID            *int64  `json:"employee_id,omitempty"`
	IsTraveler            string  `json:"is_traveler,omitempty"`
	IsSupervisor          string  `json:"is_supervisor,omitempty"`
	Status                string  `json:"status" enum:"Active,Closed,Cancelled"`
	ClosedOrCancelledDate *string `json:"closed_or_cancelled_date,omitempty" format:"date-time"`
	CancelReason          *string `json:"cancel_reason,omitempty"`
	CreatedAt             string  `json:"created_at" format:"date-time"`
}

type ChecklistItemResponse struct {
	ID            int64   `json:"id"`
	RequestID     int64   `json:"request_id"`
	TemplateID    int     `json:"template_id"`
	Lead          string  `json:"lead"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Active        bool    `json:"active"`
	CompletedDate *string `json:"completed_date,omitempty" format:"date-time"`
	CompletedByID *int64  `json:"completed_by_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type CreateRequestResponse struct {
	Request       RequestResponse         `json:"request"`
	Checklist     []ChecklistItemResponse `json:"checklist"`
	NotifyWarning string                  `json:"notify_warning,omitempty"`
}

type CompleteItemResponse struct {
	Item             ChecklistItemResponse   `json:"item"`
	AlreadyCompleted bool                    `json:"already_completed,omitempty"`
	Activated        []ChecklistItemResponse `json:"activated"`
	NotifyWarning    string                  `json:"notify_warning,omitempty"`
}

type RoleResponse struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EmailResponse struct {
	ID        int64  `json:"id"`
	MessageID string `json:"message_id"`
	To        string `json:"to"`
	CC        string `json:"cc,omitempty"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	RequestID  int64          `json:"request_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Conversion helpers

func requestResponse(r domain.Request) RequestResponse {
	return RequestResponse{
		ID:                    r.ID,
		EmpName:               r.EmpName,
		EmpType:               string(r.EmpType),
		GradeRank:             r.GradeRank,
		MPCN:                  r.MPCN,
		SAR:                   r.SAR,
		SensitivityCode:       r.SensitivityCode,
		WorkLocation:          r.WorkLocation,
		Office:                r.Office,
		IsNewCivMil:           r.IsNewCivMil,
		PrevOrg:               r.PrevOrg,
		IsNewToBaseAndCenter:  r.IsNewToBaseAndCenter,
		HasExistingCAC:        r.HasExistingCAC,
		CACExpiration:         r.CACExpiration,
		ETA:                   r.ETA,
		CompletionDate:        r.CompletionDate,
		SupervisorID:          r.SupervisorID,
		EmployeeID:            r.EmployeeID,
		IsTraveler:            r.IsTraveler,
		IsSupervisor:          r.IsSupervisor,
		Status:                r.Status(),
		ClosedOrCancelledDate: r.ClosedOrCancelledDate,
		CancelReason:          r.CancelReason,
		CreatedAt:             r.CreatedAt,
	}
}

func mapRequests(in []domain.Request) []RequestResponse {
	out := make([]RequestResponse, 0, len(in))
	for _, r := range in {
		out = append(out, requestResponse(r))
	}
	return out
}

func itemResponse(it domain.ChecklistItem) ChecklistItemResponse {
	return ChecklistItemResponse{
		ID:            it.ID,
		RequestID:     it.RequestID,
		TemplateID:    it.TemplateID,
		Lead:          string(it.Lead),
		Title:         it.Title,
		Description:   it.Description,
		Active:        it.Active,
		CompletedDate: it.CompletedDate,
		CompletedByID: it.CompletedByID,
		CreatedAt:     it.CreatedAt,
	}
}

func mapItems(in []domain.ChecklistItem) []ChecklistItemResponse {
	out := make([]ChecklistItemResponse, 0, len(in))
	for _, it := range in {
		out = append(out, itemResponse(it))
	}
	return out
}

func roleResponse(r domain.Role) RoleResponse {
	return RoleResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		Role:      string(r.Role),
		Name:      r.User.Name,
		Email:     r.User.Email,
		CreatedAt: r.CreatedAt,
	}
}

func mapRoles(in []domain.Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(in))
	for _, r := range in {
		out = append(out, roleResponse(r))
	}
	return out
}

func emailResponse(e domain.Email) EmailResponse {
	return EmailResponse(e)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		RequestID:  e.RequestID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func warning(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
