package repo

import (
	"context"
	"database/sql"
	"strings"

	"inproc/internal/domain"
)

const itemCols = `id,request_id,template_id,lead,title,description,active,completed_date,completed_by_id,created_at`

func scanItem(scan func(dest ...any) error) (domain.ChecklistItem, error) {
	var it domain.ChecklistItem
	var description, completedDate sql.NullString
	var completedBy sql.NullInt64
	var active int
	err := scan(&it.ID, &it.RequestID, &it.TemplateID, &it.Lead, &it.Title, &description, &active, &completedDate, &completedBy, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.Active = active != 0
	if description.Valid {
		it.Description = description.String
	}
	if completedDate.Valid {
		it.CompletedDate = &completedDate.String
	}
	if completedBy.Valid {
		it.CompletedByID = &completedBy.Int64
	}
	// Old records may carry lead values that predate the role set.
	it.Lead = domain.NormalizeRole(it.Lead)
	return it, nil
}

func (r Repo) InsertItemTx(ctx context.Context, tx *sql.Tx, it domain.ChecklistItem) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO checklist_items(request_id,template_id,lead,title,description,active,completed_date,completed_by_id,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		it.RequestID, it.TemplateID, it.Lead, it.Title, nullable(it.Description), boolInt(it.Active),
		nullableStringPtr(it.CompletedDate), nullableInt64Ptr(it.CompletedByID), it.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetItem(ctx context.Context, id int64) (domain.ChecklistItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+itemCols+` FROM checklist_items WHERE id=?`, id)
	return scanItem(row.Scan)
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id int64) (domain.ChecklistItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+itemCols+` FROM checklist_items WHERE id=?`, id)
	return scanItem(row.Scan)
}

type ChecklistFilters struct {
	RequestID      int64
	Leads          []domain.RoleType
	IncompleteOnly bool
	ActiveOnly     bool
}

func (r Repo) ListItems(ctx context.Context, f ChecklistFilters) ([]domain.ChecklistItem, error) {
	return listItems(ctx, r.DB.QueryContext, f)
}

func (r Repo) ListItemsTx(ctx context.Context, tx *sql.Tx, f ChecklistFilters) ([]domain.ChecklistItem, error) {
	return listItems(ctx, tx.QueryContext, f)
}

func listItems(ctx context.Context, query func(ctx context.Context, q string, args ...any) (*sql.Rows, error), f ChecklistFilters) ([]domain.ChecklistItem, error) {
	var clauses []string
	var args []any
	if f.RequestID != 0 {
		clauses = append(clauses, "request_id=?")
		args = append(args, f.RequestID)
	}
	if len(f.Leads) > 0 {
		placeholders := make([]string, len(f.Leads))
		for i, l := range f.Leads {
			placeholders[i] = "?"
			args = append(args, l)
		}
		clauses = append(clauses, "lead IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.IncompleteOnly {
		clauses = append(clauses, "completed_date IS NULL")
	}
	if f.ActiveOnly {
		clauses = append(clauses, "active=1")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := query(ctx, `SELECT `+itemCols+` FROM checklist_items `+where+` ORDER BY template_id ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (r Repo) CountIncompleteItemsTx(ctx context.Context, tx *sql.Tx, requestID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM checklist_items WHERE request_id=? AND completed_date IS NULL`, requestID).Scan(&n)
	return n, err
}

// MarkItemCompletedTx stamps completion. Date and completer are written
// together so the pair stays consistent.
func (r Repo) MarkItemCompletedTx(ctx context.Context, tx *sql.Tx, id int64, date string, byID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE checklist_items SET completed_date=?, completed_by_id=? WHERE id=?`, date, byID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearItemCompletionTx reverts completion and reactivates the item.
func (r Repo) ClearItemCompletionTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE checklist_items SET completed_date=NULL, completed_by_id=NULL, active=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetItemActiveTx(ctx context.Context, tx *sql.Tx, id int64, active bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE checklist_items SET active=? WHERE id=?`, boolInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItemsForUser returns the items awaiting a user's action. Group roles
// match by lead; the Employee and Supervisor leads match only on requests
// where the user fills that position. Closed and cancelled requests are
// excluded.
func (r Repo) ListItemsForUser(ctx context.Context, userID int64, roles []domain.RoleType, incompleteOnly bool) ([]domain.ChecklistItem, error) {
	var groupRoles []any
	for _, role := range roles {
		if role == domain.RoleEmployee || role == domain.RoleSupervisor {
			continue
		}
		groupRoles = append(groupRoles, role)
	}
	match := []string{"(i.lead='Employee' AND q.employee_id=?)", "(i.lead='Supervisor' AND q.supervisor_id=?)"}
	args := []any{userID, userID}
	if len(groupRoles) > 0 {
		placeholders := make([]string, len(groupRoles))
		for idx := range groupRoles {
			placeholders[idx] = "?"
		}
		match = append(match, "i.lead IN ("+strings.Join(placeholders, ",")+")")
		args = append(args, groupRoles...)
	}
	query := `SELECT i.id,i.request_id,i.template_id,i.lead,i.title,i.description,i.active,i.completed_date,i.completed_by_id,i.created_at
FROM checklist_items i JOIN requests q ON q.id=i.request_id
WHERE q.closed_or_cancelled_date IS NULL AND q.cancel_reason IS NULL AND i.active=1 AND (` + strings.Join(match, " OR ") + `)`
	if incompleteOnly {
		query += " AND i.completed_date IS NULL"
	}
	query += " ORDER BY i.request_id ASC, i.template_id ASC, i.id ASC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
