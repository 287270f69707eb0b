package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"inproc/internal/catalog"
	"inproc/internal/domain"
	"inproc/internal/events"
	"inproc/internal/repo"
)

// CompletionResult is the outcome of CompleteItem. Activated is grouped by
// lead for notification fan-out. NotifyErr reports failed emails; the
// completion itself is already committed.
type CompletionResult struct {
	Item             domain.ChecklistItem
	AlreadyCompleted bool
	Activated        map[domain.RoleType][]domain.ChecklistItem
	NotifyErr        error
}

// CompleteItem marks a checklist item done and activates every dependent
// item whose prerequisites are now all satisfied. Completing an already
// completed item is a no-op.
func (e Engine) CompleteItem(ctx context.Context, itemID, completedByID int64, actorID string) (CompletionResult, error) {
	probe, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return CompletionResult{}, err
	}
	unlock := e.locks.lock(probe.RequestID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()

	item, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return CompletionResult{}, err
	}
	if item.Completed() {
		return CompletionResult{Item: item, AlreadyCompleted: true}, nil
	}
	req, err := e.Repo.GetRequestTx(ctx, tx, item.RequestID)
	if err != nil {
		return CompletionResult{}, err
	}
	if req.Status() != domain.StatusActive {
		return CompletionResult{}, invalidf("request %d is %s", req.ID, req.Status())
	}

	all, err := e.Repo.ListItemsTx(ctx, tx, repo.ChecklistFilters{RequestID: item.RequestID})
	if err != nil {
		return CompletionResult{}, err
	}

	now := e.stamp()
	if err := e.Repo.MarkItemCompletedTx(ctx, tx, item.ID, now, completedByID); err != nil {
		return CompletionResult{}, err
	}
	item.CompletedDate = &now
	item.CompletedByID = &completedByID
	for i := range all {
		if all[i].ID == item.ID {
			all[i] = item
		}
	}

	activated, err := e.activateDependents(ctx, tx, item, all, actorID)
	if err != nil {
		return CompletionResult{}, err
	}

	if err := e.Events.Append(ctx, tx, "checklist.completed", item.RequestID, "checklist_item", fmt.Sprint(item.ID), actorID, events.EventPayload{
		"template_id":  item.TemplateID,
		"completed_by": completedByID,
	}); err != nil {
		return CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}

	res := CompletionResult{Item: item, Activated: activated}
	if len(activated) > 0 && e.Notify != nil {
		res.NotifyErr = e.Notify.ActivationEmails(ctx, req, item.ID, activated, all)
	}
	return res, nil
}

// activateDependents walks the one-hop dependents of the completed item and
// activates each whose instantiated prerequisites are all complete. A
// prerequisite with no instance on this request is treated as satisfied:
// instantiation already decided it does not apply to this employee.
func (e Engine) activateDependents(ctx context.Context, tx *sql.Tx, completed domain.ChecklistItem, all []domain.ChecklistItem, actorID string) (map[domain.RoleType][]domain.ChecklistItem, error) {
	byTemplate := make(map[int]*domain.ChecklistItem, len(all))
	for i := range all {
		byTemplate[all[i].TemplateID] = &all[i]
	}

	activated := map[domain.RoleType][]domain.ChecklistItem{}
	for _, rule := range catalog.WithPrerequisite(catalog.TemplateID(completed.TemplateID)) {
		instance, ok := byTemplate[int(rule.ID)]
		if !ok || instance.Active || instance.Completed() {
			continue
		}
		satisfied := true
		for _, p := range rule.Prereqs {
			prereq, ok := byTemplate[int(p)]
			if !ok {
				continue
			}
			if !prereq.Completed() {
				satisfied = false
				break
			}
		}
		if !satisfied {
			continue
		}
		if err := e.Repo.SetItemActiveTx(ctx, tx, instance.ID, true); err != nil {
			return nil, err
		}
		instance.Active = true
		activated[instance.Lead] = append(activated[instance.Lead], *instance)
		if err := e.Events.Append(ctx, tx, "checklist.activated", instance.RequestID, "checklist_item", fmt.Sprint(instance.ID), actorID, events.EventPayload{
			"template_id": instance.TemplateID,
			"trigger":     completed.TemplateID,
		}); err != nil {
			return nil, err
		}
	}
	for lead := range activated {
		sort.Slice(activated[lead], func(i, j int) bool {
			return activated[lead][i].TemplateID < activated[lead][j].TemplateID
		})
	}
	return activated, nil
}

// ReactivateItem reverts a completed item so it can be redone. Dependent
// items that were activated by the original completion keep their state; the
// dependency walk only runs forward on completion.
func (e Engine) ReactivateItem(ctx context.Context, itemID int64, actorID string) (domain.ChecklistItem, error) {
	probe, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	unlock := e.locks.lock(probe.RequestID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	defer tx.Rollback()

	item, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	req, err := e.Repo.GetRequestTx(ctx, tx, item.RequestID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	if req.Status() != domain.StatusActive {
		return domain.ChecklistItem{}, invalidf("request %d is %s", req.ID, req.Status())
	}
	if !item.Completed() {
		return item, nil
	}
	if err := e.Repo.ClearItemCompletionTx(ctx, tx, item.ID); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := e.Events.Append(ctx, tx, "checklist.reactivated", item.RequestID, "checklist_item", fmt.Sprint(item.ID), actorID, events.EventPayload{
		"template_id": item.TemplateID,
	}); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ChecklistItem{}, err
	}
	item.CompletedDate = nil
	item.CompletedByID = nil
	item.Active = true
	return item, nil
}
