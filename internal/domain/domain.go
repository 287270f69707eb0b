package domain

// RoleType identifies the functional lead responsible for a checklist item.
type RoleType string

const (
	RoleAdmin      RoleType = "Admin"
	RoleIT         RoleType = "IT"
	RoleATAAPS     RoleType = "ATAAPS"
	RoleFOG        RoleType = "FOG"
	RoleDTS        RoleType = "DTS"
	RoleGTC        RoleType = "GTC"
	RoleSecurity   RoleType = "Security"
	RoleEmployee   RoleType = "Employee"
	RoleSupervisor RoleType = "Supervisor"
)

// AllRoles lists every known role type in display order.
var AllRoles = []RoleType{
	RoleAdmin, RoleIT, RoleATAAPS, RoleFOG, RoleDTS,
	RoleGTC, RoleSecurity, RoleEmployee, RoleSupervisor,
}

func ValidRole(r RoleType) bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// NormalizeRole maps unknown lead values stored on old records to Admin so
// those items still land on someone's queue.
func NormalizeRole(r RoleType) RoleType {
	if ValidRole(r) {
		return r
	}
	return RoleAdmin
}

// EmpType is the employment category of an inbound employee.
type EmpType string

const (
	EmpCivilian   EmpType = "Civilian"
	EmpContractor EmpType = "Contractor"
	EmpMilitary   EmpType = "Military"
)

func ValidEmpType(t EmpType) bool {
	return t == EmpCivilian || t == EmpContractor || t == EmpMilitary
}

// Request statuses. Status is derived from the closure fields, never stored.
const (
	StatusActive    = "Active"
	StatusClosed    = "Closed"
	StatusCancelled = "Cancelled"
)

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Request struct {
	ID                    int64   `json:"id"`
	EmpName               string  `json:"emp_name"`
	EmpType               EmpType `json:"emp_type" enum:"Civilian,Contractor,Military"`
	GradeRank             string  `json:"grade_rank,omitempty"`
	MPCN                  int     `json:"mpcn"`
	SAR                   int     `json:"sar"`
	SensitivityCode       int     `json:"sensitivity_code"`
	WorkLocation          string  `json:"work_location"`
	Office                string  `json:"office"`
	IsNewCivMil           string  `json:"is_new_civ_mil"`
	PrevOrg               string  `json:"prev_org,omitempty"`
	IsNewToBaseAndCenter  string  `json:"is_new_to_base_and_center"`
	HasExistingCAC        string  `json:"has_existing_cac"`
	CACExpiration         *string `json:"cac_expiration,omitempty" format:"date-time"`
	ETA                   string  `json:"eta" format:"date-time"`
	CompletionDate        string  `json:"completion_date" format:"date-time"`
	SupervisorID          int64   `json:"supervisor_id"`
	EmployeeID            *int64  `json:"employee_id,omitempty"`
	IsTraveler            string  `json:"is_traveler"`
	IsSupervisor          string  `json:"is_supervisor"`
	ClosedOrCancelledDate *string `json:"closed_or_cancelled_date,omitempty" format:"date-time"`
	CancelReason          *string `json:"cancel_reason,omitempty"`
	CreatedAt             string  `json:"created_at" format:"date-time"`
}

// Status derives the request state from the closure fields. This is the only
// place the derivation lives; callers must not reimplement it.
func (r Request) Status() string {
	if r.CancelReason != nil && *r.CancelReason != "" {
		return StatusCancelled
	}
	if r.ClosedOrCancelledDate != nil && *r.ClosedOrCancelledDate != "" {
		return StatusClosed
	}
	return StatusActive
}

type ChecklistItem struct {
	ID            int64    `json:"id"`
	RequestID     int64    `json:"request_id"`
	TemplateID    int      `json:"template_id,omitempty"`
	Lead          RoleType `json:"lead"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Active        bool     `json:"active"`
	CompletedDate *string  `json:"completed_date,omitempty" format:"date-time"`
	CompletedByID *int64   `json:"completed_by_id,omitempty"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
}

// Completed reports whether the item has been completed. CompletedByID and
// CompletedDate are always set and cleared together.
func (c ChecklistItem) Completed() bool {
	return c.CompletedByID != nil
}

type Role struct {
	ID        int64    `json:"id"`
	UserID    int64    `json:"user_id"`
	Role      RoleType `json:"role"`
	User      User     `json:"user"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type Email struct {
	ID        int64  `json:"id"`
	MessageID string `json:"message_id"`
	To        string `json:"to"`
	CC        string `json:"cc,omitempty"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	RequestID  int64  `json:"request_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
