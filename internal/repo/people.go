package repo

import (
	"context"
	"database/sql"
	"strings"

	"inproc/internal/domain"
)

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	err := scan(&u.ID, &u.Name, &u.Email)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,email FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,email FROM users WHERE email=? COLLATE NOCASE`, email)
	return scanUser(row.Scan)
}

// EnsureUserByEmailTx resolves a user by email, creating the record when the
// address has not been seen before. The name is only written on first insert.
func (r Repo) EnsureUserByEmailTx(ctx context.Context, tx *sql.Tx, name, email, createdAt string) (domain.User, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,name,email FROM users WHERE email=? COLLATE NOCASE`, email)
	u, err := scanUser(row.Scan)
	if err == nil {
		return u, nil
	}
	if err != ErrNotFound {
		return domain.User{}, err
	}
	if name == "" {
		name = email
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO users(name,email,created_at) VALUES (?,?,?)`, name, email, createdAt)
	if err != nil {
		return domain.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: id, Name: name, Email: email}, nil
}

func (r Repo) InsertRoleTx(ctx context.Context, tx *sql.Tx, userID int64, role domain.RoleType, createdAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO roles(user_id,role,created_at) VALUES (?,?,?)`, userID, role, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) DeleteRole(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM roles WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type RoleFilters struct {
	UserID int64
	Role   domain.RoleType
}

func (r Repo) ListRoles(ctx context.Context, f RoleFilters) ([]domain.Role, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.UserID != 0 {
		clauses = append(clauses, "r.user_id=?")
		args = append(args, f.UserID)
	}
	if f.Role != "" {
		clauses = append(clauses, "r.role=?")
		args = append(args, f.Role)
	}
	query := `SELECT r.id,r.user_id,r.role,r.created_at,u.id,u.name,u.email FROM roles r JOIN users u ON u.id=r.user_id WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY r.role ASC, u.name ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.UserID, &role.Role, &role.CreatedAt, &role.User.ID, &role.User.Name, &role.User.Email); err != nil {
			return nil, err
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

// UsersInRole returns the members of a role group for notification fan-out.
func (r Repo) UsersInRole(ctx context.Context, role domain.RoleType) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT u.id,u.name,u.email FROM roles r JOIN users u ON u.id=r.user_id WHERE r.role=? ORDER BY u.email ASC`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) RolesForUser(ctx context.Context, userID int64) ([]domain.RoleType, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role FROM roles WHERE user_id=? ORDER BY role ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RoleType
	for rows.Next() {
		var role domain.RoleType
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

func (r Repo) InsertEmail(ctx context.Context, e domain.Email) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO emails(message_id,recipients,cc,subject,body,created_at) VALUES (?,?,?,?,?,?)`,
		e.MessageID, e.To, nullable(e.CC), e.Subject, e.Body, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListEmails(ctx context.Context, limit int) ([]domain.Email, error) {
	query := `SELECT id,message_id,recipients,COALESCE(cc,''),subject,body,created_at FROM emails ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Email
	for rows.Next() {
		var e domain.Email
		if err := rows.Scan(&e.ID, &e.MessageID, &e.To, &e.CC, &e.Subject, &e.Body, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
