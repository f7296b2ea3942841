package bulk

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/platform/httpx"
	"github.com/tavolo-app/tavolo/internal/profiles"
)

type memoryStore struct {
	perms    map[int64]catalog.Permission
	roles    map[int64]catalog.Role
	profiles map[int64]*profiles.Profile
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		perms:    make(map[int64]catalog.Permission),
		roles:    make(map[int64]catalog.Role),
		profiles: make(map[int64]*profiles.Profile),
	}
}

func (s *memoryStore) GetPermission(ctx context.Context, id int64) (catalog.Permission, error) {
	p, ok := s.perms[id]
	if !ok {
		return catalog.Permission{}, fmt.Errorf("catalog: permission %d: %w", id, httpx.ErrNotFound)
	}
	return p, nil
}

func (s *memoryStore) GetRole(ctx context.Context, id int64) (catalog.Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return catalog.Role{}, fmt.Errorf("catalog: role %d: %w", id, httpx.ErrNotFound)
	}
	return r, nil
}

func (s *memoryStore) Get(ctx context.Context, id int64) (profiles.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return profiles.Profile{}, fmt.Errorf("profiles: profile %d: %w", id, httpx.ErrNotFound)
	}
	return *p, nil
}

func (s *memoryStore) AddPermission(ctx context.Context, profileID, permissionID int64) error {
	p := s.profiles[profileID]
	for _, id := range p.DirectPermissionIDs {
		if id == permissionID {
			return nil
		}
	}
	p.DirectPermissionIDs = append(p.DirectPermissionIDs, permissionID)
	return nil
}

func (s *memoryStore) RemovePermission(ctx context.Context, profileID, permissionID int64) error {
	p := s.profiles[profileID]
	out := p.DirectPermissionIDs[:0]
	for _, id := range p.DirectPermissionIDs {
		if id != permissionID {
			out = append(out, id)
		}
	}
	p.DirectPermissionIDs = out
	return nil
}

func (s *memoryStore) AddRole(ctx context.Context, profileID, roleID int64) error {
	p := s.profiles[profileID]
	for _, id := range p.RoleIDs {
		if id == roleID {
			return nil
		}
	}
	p.RoleIDs = append(p.RoleIDs, roleID)
	return nil
}

func (s *memoryStore) RemoveRole(ctx context.Context, profileID, roleID int64) error {
	p := s.profiles[profileID]
	out := p.RoleIDs[:0]
	for _, id := range p.RoleIDs {
		if id != roleID {
			out = append(out, id)
		}
	}
	p.RoleIDs = out
	return nil
}

type recordingNotifier struct {
	batches [][]int64
}

func (n *recordingNotifier) ProfilesChanged(ctx context.Context, profileIDs []int64) error {
	n.batches = append(n.batches, profileIDs)
	return nil
}

type recordingAuditor struct {
	entries []AuditEntry
}

func (a *recordingAuditor) RecordBatch(ctx context.Context, entry AuditEntry) error {
	a.entries = append(a.entries, entry)
	return nil
}

func seedStore() *memoryStore {
	store := newMemoryStore()
	store.perms[1] = catalog.Permission{ID: 1, Name: "view_logs", Active: true}
	store.perms[2] = catalog.Permission{ID: 2, Name: "retired_flag", Active: false}
	store.roles[7] = catalog.Role{ID: 7, Name: "kitchen_manager_role", Active: true}
	store.profiles[1] = &profiles.Profile{ID: 1, UserID: 11}
	store.profiles[2] = &profiles.Profile{ID: 2, UserID: 12}
	return store
}

func TestApplyDeduplicationLastWins(t *testing.T) {
	store := seedStore()
	proc := NewProcessor(store, store, nil, nil, nil)
	ctx := context.Background()

	report, err := proc.Apply(ctx, []Operation{
		{ProfileID: 1, Action: ActionAddPermission, TargetID: 1},
		{ProfileID: 1, Action: ActionRemovePermission, TargetID: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.Equal(t, 1, report.Successful)
	require.Empty(t, store.profiles[1].DirectPermissionIDs)

	// Reverse order grants.
	report, err = proc.Apply(ctx, []Operation{
		{ProfileID: 1, Action: ActionRemovePermission, TargetID: 1},
		{ProfileID: 1, Action: ActionAddPermission, TargetID: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.Equal(t, []int64{1}, store.profiles[1].DirectPermissionIDs)
}

func TestApplyIdempotentGrants(t *testing.T) {
	store := seedStore()
	proc := NewProcessor(store, store, nil, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		report, err := proc.Apply(ctx, []Operation{{ProfileID: 1, Action: ActionAddPermission, TargetID: 1}})
		require.NoError(t, err)
		require.Equal(t, 1, report.Successful)
	}
	require.Equal(t, []int64{1}, store.profiles[1].DirectPermissionIDs)

	// Removing an absent grant is likewise a no-op success.
	report, err := proc.Apply(ctx, []Operation{{ProfileID: 2, Action: ActionRemovePermission, TargetID: 1}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Successful)
	require.Empty(t, report.Failures)
}

func TestApplyPartialFailure(t *testing.T) {
	store := seedStore()
	notifier := &recordingNotifier{}
	proc := NewProcessor(store, store, notifier, nil, nil)
	ctx := context.Background()

	// Role 99 does not exist: U1's two operations succeed, U2's lands in
	// failures without aborting the batch.
	report, err := proc.Apply(ctx, []Operation{
		{ProfileID: 1, Action: ActionAddPermission, TargetID: 1},
		{ProfileID: 1, Action: ActionAddRole, TargetID: 7},
		{ProfileID: 2, Action: ActionRemoveRole, TargetID: 99},
	})
	require.NoError(t, err)
	require.Equal(t, 3, report.Processed)
	require.Equal(t, 2, report.Successful)
	require.Len(t, report.Failures, 1)
	require.Equal(t, "not_found", report.Failures[0].Code)
	require.Equal(t, int64(2), report.Failures[0].Operation.ProfileID)
	require.NotEmpty(t, report.BatchID)

	require.Equal(t, []int64{1}, store.profiles[1].DirectPermissionIDs)
	require.Equal(t, []int64{7}, store.profiles[1].RoleIDs)

	// Only the profile that actually changed is announced.
	require.Len(t, notifier.batches, 1)
	require.Equal(t, []int64{1}, notifier.batches[0])
}

func TestApplyRejectsInactiveTarget(t *testing.T) {
	store := seedStore()
	proc := NewProcessor(store, store, nil, nil, nil)

	report, err := proc.Apply(context.Background(), []Operation{
		{ProfileID: 1, Action: ActionAddPermission, TargetID: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 0, report.Successful)
	require.Len(t, report.Failures, 1)
	require.Equal(t, "validation", report.Failures[0].Code)
}

func TestApplyRejectsUnknownActionAndProfile(t *testing.T) {
	store := seedStore()
	proc := NewProcessor(store, store, nil, nil, nil)

	report, err := proc.Apply(context.Background(), []Operation{
		{ProfileID: 1, Action: Action("grant_everything"), TargetID: 1},
		{ProfileID: 404, Action: ActionAddPermission, TargetID: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed)
	require.Equal(t, 0, report.Successful)
	require.Len(t, report.Failures, 2)
	require.Equal(t, "validation", report.Failures[0].Code)
	require.Equal(t, "not_found", report.Failures[1].Code)
}

func TestApplyRecordsAuditTrail(t *testing.T) {
	store := seedStore()
	auditor := &recordingAuditor{}
	proc := NewProcessor(store, store, nil, auditor, nil)

	report, err := proc.Apply(context.Background(), []Operation{
		{ProfileID: 1, Action: ActionAddPermission, TargetID: 1},
		{ProfileID: 2, Action: ActionAddRole, TargetID: 99},
	})
	require.NoError(t, err)

	require.Len(t, auditor.entries, 1)
	entry := auditor.entries[0]
	require.Equal(t, report.BatchID, entry.BatchID)
	require.Equal(t, 2, entry.Processed)
	require.Equal(t, 1, entry.Successful)
	require.Len(t, entry.Failures, 1)
}

func TestApplyStopsOnCancelledContext(t *testing.T) {
	store := seedStore()
	proc := NewProcessor(store, store, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := proc.Apply(ctx, []Operation{{ProfileID: 1, Action: ActionAddPermission, TargetID: 1}})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, report.Successful)
	require.Empty(t, store.profiles[1].DirectPermissionIDs)
}

func TestDedupeKeyIgnoresAction(t *testing.T) {
	ops := []Operation{
		{ProfileID: 1, Action: ActionAddPermission, TargetID: 5},
		{ProfileID: 2, Action: ActionAddPermission, TargetID: 5},
		{ProfileID: 1, Action: ActionRemovePermission, TargetID: 5},
		{ProfileID: 1, Action: ActionAddPermission, TargetID: 6},
	}
	surviving := dedupe(ops)
	require.Equal(t, []Operation{
		{ProfileID: 2, Action: ActionAddPermission, TargetID: 5},
		{ProfileID: 1, Action: ActionRemovePermission, TargetID: 5},
		{ProfileID: 1, Action: ActionAddPermission, TargetID: 6},
	}, surviving)
}
