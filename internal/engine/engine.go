package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"inproc/internal/config"
	"inproc/internal/domain"
	"inproc/internal/events"
	"inproc/internal/repo"
)

// ErrValidation marks inputs or state transitions the engine refuses.
// Callers test for it with errors.Is.
var ErrValidation = errors.New("validation failed")

func invalidf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Notifier delivers the notification emails an operation produces. Delivery
// is best effort: the engine commits first and surfaces notifier failures
// separately so a mail outage never blocks checklist progress.
type Notifier interface {
	ActivationEmails(ctx context.Context, req domain.Request, completedItemID int64, activated map[domain.RoleType][]domain.ChecklistItem, all []domain.ChecklistItem) error
	SubmitEmail(ctx context.Context, req domain.Request) error
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Notify Notifier
	Config *config.Config
	Now    func() time.Time

	locks *requestLocks
}

func New(db *sql.DB, cfg *config.Config, notify Notifier) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Notify: notify,
		Config: cfg,
		Now:    time.Now,
		locks:  newRequestLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// requestLocks serializes the read-modify-write operations per request.
// Operations on different requests proceed concurrently.
type requestLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func newRequestLocks() *requestLocks {
	return &requestLocks{m: map[int64]*sync.Mutex{}}
}

func (l *requestLocks) lock(requestID int64) func() {
	l.mu.Lock()
	m, ok := l.m[requestID]
	if !ok {
		m = &sync.Mutex{}
		l.m[requestID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (e Engine) GetRequest(ctx context.Context, id int64) (domain.Request, error) {
	return e.Repo.GetRequest(ctx, id)
}

func (e Engine) ListRequests(ctx context.Context, f repo.RequestFilters) ([]domain.Request, error) {
	return e.Repo.ListRequests(ctx, f)
}

func (e Engine) Checklist(ctx context.Context, requestID int64) ([]domain.ChecklistItem, error) {
	if _, err := e.Repo.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return e.Repo.ListItems(ctx, repo.ChecklistFilters{RequestID: requestID})
}

// MyItems returns the active checklist items awaiting action from the user
// with the given email, across all open requests.
func (e Engine) MyItems(ctx context.Context, email string, incompleteOnly bool) ([]domain.ChecklistItem, error) {
	user, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	roles, err := e.Repo.RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	// Everyone acts on their own Employee items and on the Supervisor items
	// of requests they supervise, whether or not a role record exists.
	roles = append(roles, domain.RoleEmployee, domain.RoleSupervisor)
	return e.Repo.ListItemsForUser(ctx, user.ID, roles, incompleteOnly)
}

// CloseRequest marks an in-processing request finished. Every checklist item
// must be complete first.
func (e Engine) CloseRequest(ctx context.Context, requestID int64, actorID string) (domain.Request, error) {
	unlock := e.locks.lock(requestID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()

	req, err := e.Repo.GetRequestTx(ctx, tx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if req.Status() != domain.StatusActive {
		return domain.Request{}, invalidf("request %d is %s", requestID, req.Status())
	}
	remaining, err := e.Repo.CountIncompleteItemsTx(ctx, tx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if remaining > 0 {
		return domain.Request{}, invalidf("request %d has %d incomplete checklist items", requestID, remaining)
	}
	now := e.stamp()
	if err := e.Repo.SetRequestClosureTx(ctx, tx, requestID, &now, nil); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.closed", requestID, "request", fmt.Sprint(requestID), actorID, nil); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	req.ClosedOrCancelledDate = &now
	return req, nil
}

// CancelRequest abandons a request. A reason is required.
func (e Engine) CancelRequest(ctx context.Context, requestID int64, reason, actorID string) (domain.Request, error) {
	if reason == "" {
		return domain.Request{}, invalidf("cancel reason is required")
	}
	unlock := e.locks.lock(requestID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()

	req, err := e.Repo.GetRequestTx(ctx, tx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if req.Status() != domain.StatusActive {
		return domain.Request{}, invalidf("request %d is %s", requestID, req.Status())
	}
	now := e.stamp()
	if err := e.Repo.SetRequestClosureTx(ctx, tx, requestID, &now, &reason); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.cancelled", requestID, "request", fmt.Sprint(requestID), actorID, events.EventPayload{"reason": reason}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	req.ClosedOrCancelledDate = &now
	req.CancelReason = &reason
	return req, nil
}

// DeleteRequest removes a request and its checklist entirely. Meant for
// records entered by mistake; cancelled requests that happened keep their
// history instead.
func (e Engine) DeleteRequest(ctx context.Context, requestID int64, actorID string) error {
	unlock := e.locks.lock(requestID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := e.Repo.GetRequestTx(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteRequestTx(ctx, tx, requestID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "request.deleted", requestID, "request", fmt.Sprint(requestID), actorID, events.EventPayload{"emp_name": req.EmpName}); err != nil {
		return err
	}
	return tx.Commit()
}

// AddRole puts a user into a role group, creating the user record on first
// sight of the email address. Duplicate memberships are rejected.
func (e Engine) AddRole(ctx context.Context, name, email string, role domain.RoleType, actorID string) (domain.Role, error) {
	if email == "" {
		return domain.Role{}, invalidf("email is required")
	}
	if !domain.ValidRole(role) {
		return domain.Role{}, invalidf("unknown role %q", role)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Role{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	user, err := e.Repo.EnsureUserByEmailTx(ctx, tx, name, email, now)
	if err != nil {
		return domain.Role{}, err
	}
	id, err := e.Repo.InsertRoleTx(ctx, tx, user.ID, role, now)
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Role{}, fmt.Errorf("user %s already has role %s: %w", email, role, repo.ErrConflict)
		}
		return domain.Role{}, err
	}
	if err := e.Events.Append(ctx, tx, "role.added", 0, "role", fmt.Sprint(id), actorID, events.EventPayload{"email": email, "role": role}); err != nil {
		return domain.Role{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Role{}, err
	}
	return domain.Role{ID: id, UserID: user.ID, Role: role, User: user, CreatedAt: now}, nil
}

func (e Engine) RemoveRole(ctx context.Context, id int64) error {
	return e.Repo.DeleteRole(ctx, id)
}

func (e Engine) ListRoles(ctx context.Context, f repo.RoleFilters) ([]domain.Role, error) {
	return e.Repo.ListRoles(ctx, f)
}
