package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"inproc/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

const requestCols = `id,emp_name,emp_type,grade_rank,mpcn,sar,sensitivity_code,work_location,office,is_new_civ_mil,prev_org,is_new_to_base_and_center,has_existing_cac,cac_expiration,eta,completion_date,supervisor_id,employee_id,is_traveler,is_supervisor,closed_or_cancelled_date,cancel_reason,created_at`

func scanRequest(scan func(dest ...any) error) (domain.Request, error) {
	var r domain.Request
	var gradeRank, prevOrg, cacExp, closedDate, cancelReason sql.NullString
	var employeeID sql.NullInt64
	err := scan(&r.ID, &r.EmpName, &r.EmpType, &gradeRank, &r.MPCN, &r.SAR, &r.SensitivityCode,
		&r.WorkLocation, &r.Office, &r.IsNewCivMil, &prevOrg, &r.IsNewToBaseAndCenter,
		&r.HasExistingCAC, &cacExp, &r.ETA, &r.CompletionDate, &r.SupervisorID, &employeeID,
		&r.IsTraveler, &r.IsSupervisor, &closedDate, &cancelReason, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	if gradeRank.Valid {
		r.GradeRank = gradeRank.String
	}
	if prevOrg.Valid {
		r.PrevOrg = prevOrg.String
	}
	if cacExp.Valid {
		r.CACExpiration = &cacExp.String
	}
	if employeeID.Valid {
		r.EmployeeID = &employeeID.Int64
	}
	if closedDate.Valid {
		r.ClosedOrCancelledDate = &closedDate.String
	}
	if cancelReason.Valid {
		r.CancelReason = &cancelReason.String
	}
	return r, nil
}

func (r Repo) InsertRequestTx(ctx context.Context, tx *sql.Tx, req domain.Request, batchKey string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO requests(emp_name,emp_type,grade_rank,mpcn,sar,sensitivity_code,work_location,office,is_new_civ_mil,prev_org,is_new_to_base_and_center,has_existing_cac,cac_expiration,eta,completion_date,supervisor_id,employee_id,is_traveler,is_supervisor,closed_or_cancelled_date,cancel_reason,batch_key,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.EmpName, req.EmpType, nullable(req.GradeRank), req.MPCN, req.SAR, req.SensitivityCode,
		req.WorkLocation, req.Office, req.IsNewCivMil, nullable(req.PrevOrg), req.IsNewToBaseAndCenter,
		req.HasExistingCAC, nullableStringPtr(req.CACExpiration), req.ETA, req.CompletionDate,
		req.SupervisorID, nullableInt64Ptr(req.EmployeeID), req.IsTraveler, req.IsSupervisor,
		nullableStringPtr(req.ClosedOrCancelledDate), nullableStringPtr(req.CancelReason),
		nullable(batchKey), req.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetRequest(ctx context.Context, id int64) (domain.Request, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+requestCols+` FROM requests WHERE id=?`, id)
	return scanRequest(row.Scan)
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Request, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+requestCols+` FROM requests WHERE id=?`, id)
	return scanRequest(row.Scan)
}

type RequestFilters struct {
	SupervisorID int64
	EmployeeID   int64
	// UserID matches requests where the user is either the supervisor or
	// the employee.
	UserID   int64
	OpenOnly bool
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.Request, error) {
	var clauses []string
	var args []any
	if f.SupervisorID != 0 {
		clauses = append(clauses, "supervisor_id=?")
		args = append(args, f.SupervisorID)
	}
	if f.EmployeeID != 0 {
		clauses = append(clauses, "employee_id=?")
		args = append(args, f.EmployeeID)
	}
	if f.UserID != 0 {
		clauses = append(clauses, "(supervisor_id=? OR employee_id=?)")
		args = append(args, f.UserID, f.UserID)
	}
	if f.OpenOnly {
		clauses = append(clauses, "closed_or_cancelled_date IS NULL AND cancel_reason IS NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+requestCols+` FROM requests `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// UpdateRequestTx rewrites the editable intake attributes. Closure fields are
// managed by the lifecycle operations, not here.
func (r Repo) UpdateRequestTx(ctx context.Context, tx *sql.Tx, req domain.Request) error {
	res, err := tx.ExecContext(ctx, `UPDATE requests SET emp_name=?, emp_type=?, grade_rank=?, mpcn=?, sar=?, sensitivity_code=?, work_location=?, office=?, is_new_civ_mil=?, prev_org=?, is_new_to_base_and_center=?, has_existing_cac=?, cac_expiration=?, eta=?, completion_date=?, supervisor_id=?, employee_id=?, is_traveler=?, is_supervisor=? WHERE id=?`,
		req.EmpName, req.EmpType, nullable(req.GradeRank), req.MPCN, req.SAR, req.SensitivityCode,
		req.WorkLocation, req.Office, req.IsNewCivMil, nullable(req.PrevOrg), req.IsNewToBaseAndCenter,
		req.HasExistingCAC, nullableStringPtr(req.CACExpiration), req.ETA, req.CompletionDate,
		req.SupervisorID, nullableInt64Ptr(req.EmployeeID), req.IsTraveler, req.IsSupervisor, req.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRequestClosureTx records closure or cancellation. A nil date with a nil
// reason clears both, which reopens the request.
func (r Repo) SetRequestClosureTx(ctx context.Context, tx *sql.Tx, id int64, date, reason *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE requests SET closed_or_cancelled_date=?, cancel_reason=? WHERE id=?`,
		nullableStringPtr(date), nullableStringPtr(reason), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRequestTx removes a request; its checklist goes with it through the
// cascade.
func (r Repo) DeleteRequestTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
