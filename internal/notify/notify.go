// Package notify builds and delivers the checklist notification emails.
// Delivery is best effort; callers commit their transaction first and treat
// a failure here as a warning.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"inproc/internal/config"
	"inproc/internal/domain"
	"inproc/internal/repo"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, email domain.Email) error
}

// OutboxSender records outgoing mail in the emails table, where a delivery
// agent (or a test) can pick it up. Mirrors how the engine treats all
// side effects as rows first.
type OutboxSender struct {
	Repo repo.Repo
}

func (s OutboxSender) Send(ctx context.Context, email domain.Email) error {
	_, err := s.Repo.InsertEmail(ctx, email)
	return err
}

// Dispatcher resolves recipients and fans notification emails out per lead.
type Dispatcher struct {
	Repo   repo.Repo
	Config *config.Config
	Sender Sender
	Now    func() time.Time
}

func New(r repo.Repo, cfg *config.Config, sender Sender) *Dispatcher {
	return &Dispatcher{Repo: r, Config: cfg, Sender: sender, Now: time.Now}
}

func (d *Dispatcher) stamp() string {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// resolver returns the people a lead's notifications go to for a request.
type resolver func(ctx context.Context, d *Dispatcher, req domain.Request) ([]domain.User, error)

// resolvers is keyed by lead. Roles without an entry are treated as role
// groups and resolved through membership.
var resolvers = map[domain.RoleType]resolver{
	domain.RoleEmployee: func(ctx context.Context, d *Dispatcher, req domain.Request) ([]domain.User, error) {
		// Before the employee has an account the supervisor acts for them.
		if req.EmployeeID == nil {
			return d.supervisor(ctx, req)
		}
		u, err := d.Repo.GetUser(ctx, *req.EmployeeID)
		if err != nil {
			return nil, err
		}
		return []domain.User{u}, nil
	},
	domain.RoleSupervisor: func(ctx context.Context, d *Dispatcher, req domain.Request) ([]domain.User, error) {
		return d.supervisor(ctx, req)
	},
}

func (d *Dispatcher) supervisor(ctx context.Context, req domain.Request) ([]domain.User, error) {
	u, err := d.Repo.GetUser(ctx, req.SupervisorID)
	if err != nil {
		return nil, err
	}
	return []domain.User{u}, nil
}

func (d *Dispatcher) recipients(ctx context.Context, lead domain.RoleType, req domain.Request) ([]domain.User, error) {
	if fn, ok := resolvers[lead]; ok {
		return fn(ctx, d, req)
	}
	return d.Repo.UsersInRole(ctx, lead)
}

// ActivationEmails sends one email per lead group listing the items that
// just became available, with a reminder of that group's other outstanding
// items. A failure for one group does not stop the others.
func (d *Dispatcher) ActivationEmails(ctx context.Context, req domain.Request, completedItemID int64, activated map[domain.RoleType][]domain.ChecklistItem, all []domain.ChecklistItem) error {
	leads := make([]domain.RoleType, 0, len(activated))
	for lead := range activated {
		leads = append(leads, lead)
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i] < leads[j] })

	var errs []error
	for _, lead := range leads {
		if err := d.activationEmail(ctx, req, lead, completedItemID, activated[lead], all); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", lead, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) activationEmail(ctx context.Context, req domain.Request, lead domain.RoleType, completedItemID int64, items, all []domain.ChecklistItem) error {
	to, err := d.recipients(ctx, lead, req)
	if err != nil {
		return err
	}
	cc, err := d.supervisor(ctx, req)
	if err != nil {
		return err
	}

	var outstanding []domain.ChecklistItem
	for _, it := range all {
		if it.ID != completedItemID && it.Lead == lead && it.Active && !it.Completed() {
			alreadyListed := false
			for _, fresh := range items {
				if fresh.ID == it.ID {
					alreadyListed = true
					break
				}
			}
			if !alreadyListed {
				outstanding = append(outstanding, it)
			}
		}
	}

	var b strings.Builder
	b.WriteString("The following checklist item(s) are now available to be completed:")
	b.WriteString(itemList(items))
	if len(outstanding) > 0 {
		b.WriteString("<br/>As a reminder the following item(s) are still awaiting your action:")
		b.WriteString(itemList(outstanding))
	}
	b.WriteString("<br/>To view this request and take action follow the below link:<br/>")
	link := d.requestLink(req.ID)
	fmt.Fprintf(&b, `<a href="%s">%s</a>`, link, link)

	return d.send(ctx, to, cc,
		fmt.Sprintf("In Process: New checklist item(s) available for %s", req.EmpName),
		b.String())
}

// SubmitEmail notifies the supervisor that a new request was entered.
func (d *Dispatcher) SubmitEmail(ctx context.Context, req domain.Request) error {
	to, err := d.supervisor(ctx, req)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("A request for in-processing %s has been submitted.\n\nLink to request: %s",
		req.EmpName, d.requestLink(req.ID))
	return d.send(ctx, to, nil,
		fmt.Sprintf("In Process: %s has been submitted", req.EmpName),
		body)
}

func (d *Dispatcher) send(ctx context.Context, to, cc []domain.User, subject, body string) error {
	email := domain.Email{
		MessageID: uuid.NewString(),
		To:        addresses(to),
		CC:        addresses(cc),
		Subject:   d.Config.SubjectFor(subject),
		Body:      strings.ReplaceAll(body, "\n", "<BR>"),
		CreatedAt: d.stamp(),
	}
	if err := d.Sender.Send(ctx, email); err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}
	return nil
}

func (d *Dispatcher) requestLink(requestID int64) string {
	base := ""
	if d.Config != nil {
		base = strings.TrimSuffix(d.Config.App.BaseURL, "/")
	}
	return fmt.Sprintf("%s/item/%d", base, requestID)
}

func itemList(items []domain.ChecklistItem) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, it := range items {
		b.WriteString("<li>")
		b.WriteString(it.Title)
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

func addresses(users []domain.User) string {
	var emails []string
	for _, u := range users {
		if u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	return strings.Join(emails, ";")
}
