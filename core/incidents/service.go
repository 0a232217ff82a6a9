package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"halligan-rms/config"
	"halligan-rms/core/rbac"
	"halligan-rms/core/store"
	"halligan-rms/core/utils"
	"halligan-rms/core/workbook"
)

// Incident report statuses. Archived is not a fifth status: it is the
// orthogonal ArchiveStatus flag, so an incident can be Approved and archived
// at the same time.
const (
	StatusDraft     = "Draft"
	StatusSubmitted = "Submitted"
	StatusApproved  = "Approved"
	StatusRejected  = "Rejected"

	ArchiveActive   = "ACTIVE"
	ArchiveArchived = "ARCHIVED"
)

var (
	ErrNotFound             = errors.New("incident not found")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrMissingKey           = errors.New("incident number required")
)

// Actor is the authenticated user as the lifecycle sees it: identity, role
// and per-user capability overrides.
type Actor struct {
	Username string
	Role     string
	Caps     rbac.Capabilities
}

func ActorFromUser(u *store.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{
		Username: u.Username,
		Role:     u.Role,
		Caps: rbac.Capabilities{
			Write:         u.CanWrite,
			Review:        u.CanReview,
			Approve:       u.CanApprove,
			DeleteArchive: u.CanDeleteArchive,
		},
	}
}

// Service owns the incident lifecycle. Every transition authorizes exactly
// once, guards the source status, applies the documented side effects and
// leaves the record untouched on any failure.
type Service struct {
	cfg    *config.AppConfig
	store  *workbook.Store
	policy *rbac.Policy
	audits store.AuditStore
	logger *utils.Logger
	now    func() time.Time
}

func NewService(cfg *config.AppConfig, wb *workbook.Store, policy *rbac.Policy, audits store.AuditStore, logger *utils.Logger) *Service {
	return &Service{cfg: cfg, store: wb, policy: policy, audits: audits, logger: logger, now: utils.NowUTC}
}

func (s *Service) Store() *workbook.Store { return s.store }

func (s *Service) authorize(actor Actor, perm rbac.Permission) error {
	if s.policy.AllowedFor(actor.Role, actor.Caps, perm) {
		return nil
	}
	if s.logger != nil {
		s.logger.Printf("PERM fail user=%s role=%s need=%s", actor.Username, actor.Role, perm)
	}
	return ErrPermissionDenied
}

func (s *Service) audit(ctx context.Context, actor Actor, action, key, detail string) {
	if s.audits == nil {
		return
	}
	_ = s.audits.Append(ctx, &store.AuditEntry{
		Actor:     actor.Username,
		Action:    action,
		Entity:    "incident",
		EntityKey: key,
		Detail:    detail,
	})
}

func (s *Service) timestamp() workbook.Value {
	return workbook.String(s.now().Format(time.RFC3339))
}

// SaveDraft upserts the author-editable fields of an incident. A new record
// is created in Draft with CreatedBy set; an existing record may only be
// edited while it sits in Draft (including after a send-back). Workflow
// columns in the candidate are discarded so a save can never smuggle a
// status change past the transition guards.
func (s *Service) SaveDraft(ctx context.Context, actor Actor, fields workbook.Record) (workbook.Record, error) {
	if err := s.authorize(actor, rbac.PermWrite); err != nil {
		return nil, err
	}
	key := fields.Get(workbook.PrimaryKey).Key()
	if key == "" {
		return nil, ErrMissingKey
	}
	candidate := fields.Clone()
	for _, col := range workbook.IncidentWorkflowColumns {
		delete(candidate, col)
	}
	var saved workbook.Record
	err := s.store.Update(func(ts *workbook.TableSet) error {
		inc := ts.Table(workbook.SheetIncidents)
		existing := inc.FindByKey(workbook.PrimaryKey, key)
		if existing == nil {
			candidate[workbook.ColStatus] = workbook.String(StatusDraft)
			candidate[workbook.ColCreatedBy] = workbook.String(actor.Username)
			candidate[workbook.ColArchiveStatus] = workbook.String(ArchiveActive)
		} else if status := existing.Get(workbook.ColStatus).Str(); status != StatusDraft {
			return fmt.Errorf("%w: cannot edit incident in status %s", ErrInvalidTransition, status)
		}
		inc.Upsert(candidate, workbook.PrimaryKey)
		saved = inc.FindByKey(workbook.PrimaryKey, key).Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "incident.save_draft", key, "")
	return saved, nil
}

// Submit moves a Draft to Submitted and stamps SubmittedAt. Re-submitting
// after a send-back overwrites the previous timestamp; nothing else does.
func (s *Service) Submit(ctx context.Context, actor Actor, key string) (workbook.Record, error) {
	rec, err := s.transition(actor, rbac.PermWrite, key, []string{StatusDraft}, func(rec workbook.Record) {
		rec[workbook.ColStatus] = workbook.String(StatusSubmitted)
		rec[workbook.ColSubmittedAt] = s.timestamp()
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "incident.submit", key, "")
	return rec, nil
}

// Approve is valid only from Submitted and records reviewer attribution.
func (s *Service) Approve(ctx context.Context, actor Actor, key, comments string) (workbook.Record, error) {
	rec, err := s.transition(actor, rbac.PermApprove, key, []string{StatusSubmitted}, func(rec workbook.Record) {
		rec[workbook.ColStatus] = workbook.String(StatusApproved)
		rec[workbook.ColReviewedBy] = workbook.String(actor.Username)
		rec[workbook.ColReviewedAt] = s.timestamp()
		rec[workbook.ColReviewerComments] = workbook.String(comments)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "incident.approve", key, comments)
	return rec, nil
}

// Reject is valid only from Submitted; a blank comment falls back to the
// configured default so the author always sees a reason.
func (s *Service) Reject(ctx context.Context, actor Actor, key, comments string) (workbook.Record, error) {
	if strings.TrimSpace(comments) == "" {
		comments = s.defaultRejectComment()
	}
	rec, err := s.transition(actor, rbac.PermReview, key, []string{StatusSubmitted}, func(rec workbook.Record) {
		rec[workbook.ColStatus] = workbook.String(StatusRejected)
		rec[workbook.ColReviewedBy] = workbook.String(actor.Username)
		rec[workbook.ColReviewedAt] = s.timestamp()
		rec[workbook.ColReviewerComments] = workbook.String(comments)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "incident.reject", key, comments)
	return rec, nil
}

// SendBack returns a Submitted incident to Draft for rework. SubmittedAt is
// deliberately left in place; the history of the prior submission survives
// until the next Submit overwrites it.
func (s *Service) SendBack(ctx context.Context, actor Actor, key, comments string) (workbook.Record, error) {
	rec, err := s.transition(actor, rbac.PermReview, key, []string{StatusSubmitted}, func(rec workbook.Record) {
		rec[workbook.ColStatus] = workbook.String(StatusDraft)
		rec[workbook.ColReviewerComments] = workbook.String(comments)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "incident.send_back", key, comments)
	return rec, nil
}

// ReopenRejected moves a Rejected incident back to Draft so the author can
// edit and resubmit. SubmittedAt is retained, as with SendBack.
func (s *Service) ReopenRejected(ctx context.Context, actor Actor, key string) (workbook.Record, error) {
	rec, err := s.transition(actor, rbac.PermWrite, key, []string{StatusRejected}, func(rec workbook.Record) {
		rec[workbook.ColStatus] = workbook.String(StatusDraft)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "incident.reopen", key, "")
	return rec, nil
}

// Archive flags an Approved incident as archived. Status stays Approved;
// ArchiveStatus is an independent flag, not a fifth status.
func (s *Service) Archive(ctx context.Context, actor Actor, key string) (workbook.Record, error) {
	rec, err := s.transition(actor, rbac.PermApprove, key, []string{StatusApproved}, func(rec workbook.Record) {
		rec[workbook.ColArchiveStatus] = workbook.String(ArchiveArchived)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "incident.archive", key, "")
	return rec, nil
}

// PurgeArchived permanently deletes an archived incident and cascades to
// every child row sharing its key. Irreversible; gated behind an explicit
// confirmation and the archive-delete capability.
func (s *Service) PurgeArchived(ctx context.Context, actor Actor, key string, confirmed bool) error {
	if err := s.authorize(actor, rbac.PermDeleteArchive); err != nil {
		return err
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	var removedChildren int
	err := s.store.Update(func(ts *workbook.TableSet) error {
		inc := ts.Table(workbook.SheetIncidents)
		rec := inc.FindByKey(workbook.PrimaryKey, key)
		if rec == nil {
			return ErrNotFound
		}
		if rec.Get(workbook.ColArchiveStatus).Str() != ArchiveArchived {
			return fmt.Errorf("%w: only archived incidents may be deleted", ErrInvalidTransition)
		}
		for _, sheet := range workbook.ChildSheets {
			removedChildren += ts.Table(sheet).DeleteByKey(workbook.PrimaryKey, key)
		}
		inc.DeleteByKey(workbook.PrimaryKey, key)
		return nil
	})
	if err != nil {
		return err
	}
	s.audit(ctx, actor, "incident.purge", key, fmt.Sprintf("child rows removed: %d", removedChildren))
	if s.logger != nil {
		s.logger.Printf("incident purged key=%s children=%d by=%s", key, removedChildren, actor.Username)
	}
	return nil
}

// transition is the shared guard path: authorize, locate, check the source
// status, mutate. Any failure leaves the table set untouched because the
// mutation closure only runs after every guard has passed.
func (s *Service) transition(actor Actor, perm rbac.Permission, key string, fromStatuses []string, mutate func(workbook.Record)) (workbook.Record, error) {
	if err := s.authorize(actor, perm); err != nil {
		return nil, err
	}
	var out workbook.Record
	err := s.store.Update(func(ts *workbook.TableSet) error {
		inc := ts.Table(workbook.SheetIncidents)
		var target workbook.Record
		for _, rec := range inc.Records {
			if rec.Get(workbook.PrimaryKey).Key() == key {
				target = rec
				break
			}
		}
		if target == nil {
			return ErrNotFound
		}
		status := target.Get(workbook.ColStatus).Str()
		allowed := false
		for _, from := range fromStatuses {
			if status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s not allowed from status %q", ErrInvalidTransition, perm, status)
		}
		mutate(target)
		out = target.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) defaultRejectComment() string {
	if s.cfg != nil && strings.TrimSpace(s.cfg.Incidents.DefaultRejectComment) != "" {
		return s.cfg.Incidents.DefaultRejectComment
	}
	return "Please revise."
}

// Get returns a copy of the incident record.
func (s *Service) Get(ctx context.Context, key string) (workbook.Record, error) {
	var rec workbook.Record
	s.store.View(func(ts *workbook.TableSet) {
		rec = ts.Table(workbook.SheetIncidents).FindByKey(workbook.PrimaryKey, key)
	})
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Filter narrows the incident listing; zero values mean "any".
type Filter struct {
	IncidentType     string
	ResponsePriority string
	Status           string
	CityContains     string
	DateFrom         time.Time
	DateTo           time.Time
	IncludeArchived  bool
}

// List returns incident records in row order, applying the filter.
func (s *Service) List(ctx context.Context, f Filter) []workbook.Record {
	var out []workbook.Record
	s.store.View(func(ts *workbook.TableSet) {
		for _, rec := range ts.Table(workbook.SheetIncidents).Records {
			if !matches(rec, f) {
				continue
			}
			out = append(out, rec.Clone())
		}
	})
	return out
}

func matches(rec workbook.Record, f Filter) bool {
	if f.IncidentType != "" && rec.Get("IncidentType").Str() != f.IncidentType {
		return false
	}
	if f.ResponsePriority != "" && rec.Get("ResponsePriority").Str() != f.ResponsePriority {
		return false
	}
	if f.Status != "" && rec.Get(workbook.ColStatus).Str() != f.Status {
		return false
	}
	if f.CityContains != "" &&
		!strings.Contains(strings.ToLower(rec.Get("City").Str()), strings.ToLower(f.CityContains)) {
		return false
	}
	if !f.IncludeArchived && rec.Get(workbook.ColArchiveStatus).Str() == ArchiveArchived {
		return false
	}
	if !f.DateFrom.IsZero() || !f.DateTo.IsZero() {
		d := rec.Get("IncidentDate")
		if d.Kind() != workbook.KindDate {
			return false
		}
		if !f.DateFrom.IsZero() && d.Time().Before(f.DateFrom) {
			return false
		}
		if !f.DateTo.IsZero() && d.Time().After(f.DateTo) {
			return false
		}
	}
	return true
}
