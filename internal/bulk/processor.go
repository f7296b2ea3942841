// Package bulk applies batched grant/revoke operations against the profile
// grant store with best-effort partial-failure semantics: every operation is
// validated and committed independently, and the caller always gets the full
// per-operation outcome back.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/platform/httpx"
	"github.com/tavolo-app/tavolo/internal/profiles"
)

// Action enumerates the grant mutations a batch may carry.
type Action string

const (
	ActionAddPermission    Action = "add_permission"
	ActionRemovePermission Action = "remove_permission"
	ActionAddRole          Action = "add_role"
	ActionRemoveRole       Action = "remove_role"
)

// Valid reports whether the action is one of the four known mutations.
func (a Action) Valid() bool {
	switch a {
	case ActionAddPermission, ActionRemovePermission, ActionAddRole, ActionRemoveRole:
		return true
	}
	return false
}

// TargetsRole reports whether the action's target ID references a role
// rather than a permission.
func (a Action) TargetsRole() bool {
	return a == ActionAddRole || a == ActionRemoveRole
}

// Operation is one grant or revoke request within a batch.
type Operation struct {
	ProfileID int64  `json:"profile_id"`
	Action    Action `json:"action"`
	TargetID  int64  `json:"target_id"`
}

// Failure records one operation that did not apply, with a machine-readable
// code and a human-readable reason. The admin UI renders these explicitly
// rather than treating a non-100% batch as a hard failure.
type Failure struct {
	Operation Operation `json:"operation"`
	Code      string    `json:"code"`
	Reason    string    `json:"reason"`
}

// Report summarizes a batch. It is the source of truth for what actually
// happened: a caller that timed out mid-batch must consult the report, not
// the request outcome.
type Report struct {
	BatchID         string    `json:"batch_id"`
	Processed       int       `json:"processed"`
	Successful      int       `json:"successful"`
	Failures        []Failure `json:"failures"`
	ChangedProfiles []int64   `json:"-"`
}

// CatalogStore validates batch targets against the catalogs.
type CatalogStore interface {
	GetPermission(ctx context.Context, id int64) (catalog.Permission, error)
	GetRole(ctx context.Context, id int64) (catalog.Role, error)
}

// GrantStore is the slice of the profile repository the processor mutates.
type GrantStore interface {
	Get(ctx context.Context, id int64) (profiles.Profile, error)
	AddPermission(ctx context.Context, profileID, permissionID int64) error
	RemovePermission(ctx context.Context, profileID, permissionID int64) error
	AddRole(ctx context.Context, profileID, roleID int64) error
	RemoveRole(ctx context.Context, profileID, roleID int64) error
}

// Notifier signals which profiles changed after a batch so downstream read
// caches keyed by profile can be invalidated. It is a notification, not a
// dependency of the mutation itself.
type Notifier interface {
	ProfilesChanged(ctx context.Context, profileIDs []int64) error
}

// Processor applies batches. It holds no state between calls.
type Processor struct {
	catalogs CatalogStore
	grants   GrantStore
	notifier Notifier
	auditor  Auditor
	logger   *slog.Logger
}

// NewProcessor builds Processor instance. notifier and auditor may be nil.
func NewProcessor(catalogs CatalogStore, grants GrantStore, notifier Notifier, auditor Auditor, logger *slog.Logger) *Processor {
	return &Processor{catalogs: catalogs, grants: grants, notifier: notifier, auditor: auditor, logger: logger}
}

// Apply deduplicates, validates, and applies a batch. Deduplication keeps
// the last operation per (profile, target) pair in input order, matching an
// interactive grid where later clicks override earlier ones. Operations
// never share a transaction: a failure in one neither rolls back earlier
// operations nor blocks later ones.
//
// On context cancellation the partial report is returned together with the
// context error; already-committed operations stay applied.
func (p *Processor) Apply(ctx context.Context, ops []Operation) (Report, error) {
	report := Report{BatchID: uuid.NewString(), Failures: []Failure{}}

	surviving := dedupe(ops)
	report.Processed = len(surviving)

	changed := make(map[int64]struct{})
	for _, op := range surviving {
		if err := ctx.Err(); err != nil {
			report.ChangedProfiles = profileIDs(changed)
			p.notify(changed)
			p.audit(report)
			return report, err
		}
		if err := p.applyOne(ctx, op); err != nil {
			report.Failures = append(report.Failures, Failure{
				Operation: op,
				Code:      failureCode(err),
				Reason:    err.Error(),
			})
			continue
		}
		report.Successful++
		changed[op.ProfileID] = struct{}{}
	}

	report.ChangedProfiles = profileIDs(changed)
	p.notify(changed)
	p.audit(report)
	return report, nil
}

func (p *Processor) applyOne(ctx context.Context, op Operation) error {
	if !op.Action.Valid() {
		return fmt.Errorf("bulk: unknown action %q: %w", op.Action, httpx.ErrValidation)
	}
	if _, err := p.grants.Get(ctx, op.ProfileID); err != nil {
		return err
	}
	if op.Action.TargetsRole() {
		role, err := p.catalogs.GetRole(ctx, op.TargetID)
		if err != nil {
			return err
		}
		if !role.Active {
			return fmt.Errorf("bulk: role %q is inactive: %w", role.Name, httpx.ErrValidation)
		}
	} else {
		perm, err := p.catalogs.GetPermission(ctx, op.TargetID)
		if err != nil {
			return err
		}
		if !perm.Active {
			return fmt.Errorf("bulk: permission %q is inactive: %w", perm.Name, httpx.ErrValidation)
		}
	}

	switch op.Action {
	case ActionAddPermission:
		return p.grants.AddPermission(ctx, op.ProfileID, op.TargetID)
	case ActionRemovePermission:
		return p.grants.RemovePermission(ctx, op.ProfileID, op.TargetID)
	case ActionAddRole:
		return p.grants.AddRole(ctx, op.ProfileID, op.TargetID)
	default:
		return p.grants.RemoveRole(ctx, op.ProfileID, op.TargetID)
	}
}

func (p *Processor) notify(changed map[int64]struct{}) {
	if p.notifier == nil || len(changed) == 0 {
		return
	}
	// Invalidation runs on a fresh context so a caller timeout cannot strand
	// stale cache entries for operations that already committed.
	if err := p.notifier.ProfilesChanged(context.Background(), profileIDs(changed)); err != nil && p.logger != nil {
		p.logger.Error("bulk: notify changed profiles", slog.Any("error", err))
	}
}

// audit writes the batch trail best-effort. A trail write failure never fails
// the batch; the report already went back to the caller path.
func (p *Processor) audit(report Report) {
	if p.auditor == nil {
		return
	}
	entry := AuditEntry{
		BatchID:    report.BatchID,
		Processed:  report.Processed,
		Successful: report.Successful,
		Failures:   report.Failures,
	}
	if err := p.auditor.RecordBatch(context.Background(), entry); err != nil && p.logger != nil {
		p.logger.Error("bulk: record batch audit", slog.Any("error", err))
	}
}

type dedupeKey struct {
	profileID int64
	targetID  int64
}

// dedupe keeps only the last operation per (profile, target) pair,
// regardless of action, preserving the surviving operations' input order.
func dedupe(ops []Operation) []Operation {
	last := make(map[dedupeKey]int, len(ops))
	for i, op := range ops {
		last[dedupeKey{op.ProfileID, op.TargetID}] = i
	}
	surviving := make([]Operation, 0, len(last))
	for i, op := range ops {
		if last[dedupeKey{op.ProfileID, op.TargetID}] == i {
			surviving = append(surviving, op)
		}
	}
	return surviving
}

func profileIDs(changed map[int64]struct{}) []int64 {
	if len(changed) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(changed))
	for id := range changed {
		ids = append(ids, id)
	}
	return ids
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, httpx.ErrNotFound):
		return "not_found"
	case errors.Is(err, httpx.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
