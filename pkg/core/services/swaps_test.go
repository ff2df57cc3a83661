package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
	"github.com/jakechorley/volunteer-rota/pkg/memdb"
	"github.com/jakechorley/volunteer-rota/pkg/notify"
)

const (
	evening   = model.Clock(18 * 60)
	lateNight = model.Clock(20 * 60)
)

// swapFixture has member x holding A1 on Monday and member y holding A2 on Tuesday
func swapFixture(t *testing.T) (*fixture, *SwapCoordinator) {
	t.Helper()
	f := newFixture(t)
	f.addMember(t, group, "x", model.RoleMember)
	f.addMember(t, group, "y", model.RoleMember)
	f.assign(t, "A1", group, "x", "2026-03-02", evening, lateNight)
	f.assign(t, "A2", group, "y", "2026-03-03", evening, lateNight)

	coordinator := NewSwapCoordinator(f.db, f.gateway, f.logger, time.UTC, func() time.Time { return now })
	return f, coordinator
}

func TestSwap_AcceptExchangesMembers(t *testing.T) {
	f, c := swapFixture(t)
	ctx := context.Background()

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2", Reason: "Away Monday"})
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, swap.Status)
	assert.Equal(t, "x", swap.RequesterMemberID)
	assert.Equal(t, "y", swap.TargetMemberID)

	resolved, err := c.Respond(ctx, "y", swap.ID, SwapAccept)
	require.NoError(t, err)
	assert.Equal(t, model.SwapAccepted, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, now, *resolved.ResolvedAt)

	assert.Equal(t, "y", f.assignment(t, "A1").MemberID)
	assert.Equal(t, "x", f.assignment(t, "A2").MemberID)

	stored, err := f.db.GetSwapRequest(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapAccepted, stored.Status)

	require.Len(t, f.gateway.events, 2)
	requested := f.gateway.events[0]
	assert.Equal(t, notify.EventSwapRequested, requested.Type)
	assert.Equal(t, "y", requested.RecipientMemberID)
	assert.Equal(t, "x", requested.Payload[notify.KeyCounterpartyID])
	assert.Equal(t, "Away Monday", requested.Payload[notify.KeyReason])

	accepted := f.gateway.events[1]
	assert.Equal(t, notify.EventSwapAccepted, accepted.Type)
	assert.Equal(t, "x", accepted.RecipientMemberID)
	assert.Equal(t, "y", accepted.Payload[notify.KeyCounterpartyID])
	assert.Equal(t, "2026-03-03", accepted.Payload[notify.KeyDate])
	assert.Equal(t, "accepted", accepted.Payload[notify.KeyOutcome])
}

func TestSwap_Reject(t *testing.T) {
	f, c := swapFixture(t)
	ctx := context.Background()

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	resolved, err := c.Respond(ctx, "y", swap.ID, SwapReject)
	require.NoError(t, err)
	assert.Equal(t, model.SwapRejected, resolved.Status)

	assert.Equal(t, "x", f.assignment(t, "A1").MemberID)
	assert.Equal(t, "y", f.assignment(t, "A2").MemberID)
	assert.Equal(t, []notify.EventType{notify.EventSwapRequested, notify.EventSwapRejected}, f.gateway.types())

	_, err = c.Respond(ctx, "y", swap.ID, SwapAccept)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestSwap_CancelRemovesRequest(t *testing.T) {
	f, c := swapFixture(t)
	ctx := context.Background()

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	assert.ErrorIs(t, c.Cancel(ctx, "y", swap.ID), ErrNotRequester)
	require.NoError(t, c.Cancel(ctx, "x", swap.ID))

	_, err = f.db.GetSwapRequest(ctx, swap.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	_, err = c.Respond(ctx, "y", swap.ID, SwapAccept)
	assert.ErrorIs(t, err, ErrSwapNotFound)
	_, err = c.Respond(ctx, "y", swap.ID, SwapReject)
	assert.ErrorIs(t, err, ErrSwapNotFound)
	assert.ErrorIs(t, c.Cancel(ctx, "x", swap.ID), ErrSwapNotFound)

	last := f.gateway.events[len(f.gateway.events)-1]
	assert.Equal(t, notify.EventSwapCancelled, last.Type)
	assert.Equal(t, "y", last.RecipientMemberID)

	// Both assignments are free for a new request
	_, err = c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	assert.NoError(t, err)
}

func TestSwap_CreateErrors(t *testing.T) {
	f, c := swapFixture(t)
	f.addMember(t, "g2", "z", model.RoleMember)
	f.assign(t, "B1", "g2", "z", "2026-03-04", evening, lateNight)
	f.assign(t, "OLD", group, "y", "2026-02-23", evening, lateNight)
	f.assign(t, "TODAY", group, "y", "2026-03-01", model.Clock(8*60), model.Clock(10*60))
	ctx := context.Background()

	tests := []struct {
		name    string
		req     CreateSwapRequest
		wantErr error
	}{
		{"unknown requester assignment", CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "nope", TargetAssignmentID: "A2"}, ErrAssignmentNotFound},
		{"unknown target assignment", CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "nope"}, ErrAssignmentNotFound},
		{"caller does not hold assignment", CreateSwapRequest{CallerID: "y", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"}, ErrForbidden},
		{"same assignment", CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A1"}, ErrInvalidSwap},
		{"other group", CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "B1"}, ErrCrossGroupMismatch},
		{"target in the past", CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "OLD"}, ErrAssignmentInPast},
		{"target already started", CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "TODAY"}, ErrAssignmentInPast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, f.gateway.events)
}

func TestSwap_SecondPendingRequestIsRejected(t *testing.T) {
	f, c := swapFixture(t)
	f.addMember(t, group, "w", model.RoleMember)
	f.assign(t, "A3", group, "w", "2026-03-05", evening, lateNight)
	ctx := context.Background()

	_, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	_, err = c.Create(ctx, CreateSwapRequest{CallerID: "w", RequesterAssignmentID: "A3", TargetAssignmentID: "A2"})
	assert.ErrorIs(t, err, ErrAlreadyPendingSwap)

	_, err = c.Create(ctx, CreateSwapRequest{CallerID: "y", RequesterAssignmentID: "A2", TargetAssignmentID: "A3"})
	assert.ErrorIs(t, err, ErrAlreadyPendingSwap)
}

func TestSwap_ConcurrentRequestsForSameAssignment(t *testing.T) {
	f, c := swapFixture(t)
	f.addMember(t, group, "w", model.RoleMember)
	f.assign(t, "A3", group, "w", "2026-03-05", evening, lateNight)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	requests := []CreateSwapRequest{
		{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"},
		{CallerID: "w", RequesterAssignmentID: "A3", TargetAssignmentID: "A2"},
	}
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req CreateSwapRequest) {
			defer wg.Done()
			_, errs[i] = c.Create(ctx, req)
		}(i, req)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyPendingSwap)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestSwap_RespondErrors(t *testing.T) {
	_, c := swapFixture(t)
	ctx := context.Background()

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	_, err = c.Respond(ctx, "y", "missing", SwapAccept)
	assert.ErrorIs(t, err, ErrSwapNotFound)

	_, err = c.Respond(ctx, "x", swap.ID, SwapAccept)
	assert.ErrorIs(t, err, ErrNotTargetMember)

	_, err = c.Respond(ctx, "lead", swap.ID, SwapReject)
	assert.ErrorIs(t, err, ErrNotTargetMember)

	_, err = c.Respond(ctx, "y", swap.ID, "maybe")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSwap_AcceptAfterAssignmentDeleted(t *testing.T) {
	f, c := swapFixture(t)
	ctx := context.Background()

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)
	require.NoError(t, DeleteAssignment(ctx, f.db, f.gateway, f.logger, "lead", "A1", now))

	_, err = c.Respond(ctx, "y", swap.ID, SwapAccept)
	assert.ErrorIs(t, err, ErrAssignmentNoLongerValid)

	stored, err := f.db.GetSwapRequest(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, stored.Status)
	assert.Equal(t, "y", f.assignment(t, "A2").MemberID)

	// Rejecting is still possible
	_, err = c.Respond(ctx, "y", swap.ID, SwapReject)
	assert.NoError(t, err)
}

func TestSwap_AcceptAfterDatePassed(t *testing.T) {
	f, c := swapFixture(t)
	ctx := context.Background()

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	c.now = func() time.Time { return time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC) }
	_, err = c.Respond(ctx, "y", swap.ID, SwapAccept)
	assert.ErrorIs(t, err, ErrAssignmentNoLongerValid)

	assert.Equal(t, "x", f.assignment(t, "A1").MemberID)
	assert.Equal(t, "y", f.assignment(t, "A2").MemberID)
}

func TestSwap_AcceptThatWouldDoubleBookIsRejected(t *testing.T) {
	f, c := swapFixture(t)
	ctx := context.Background()

	// y also has Monday evening in another group, so cannot take A1
	f.addMember(t, "g2", "y", model.RoleMember)
	f.assign(t, "B1", "g2", "y", "2026-03-02", evening, lateNight)

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	_, err = c.Respond(ctx, "y", swap.ID, SwapAccept)
	assert.ErrorIs(t, err, ErrAssignmentNoLongerValid)

	stored, err := f.db.GetSwapRequest(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, stored.Status)
	assert.Equal(t, "x", f.assignment(t, "A1").MemberID)
}

// failingTxStore breaks the Nth assignment update inside every transaction
type failingTxStore struct {
	*memdb.DB
	failOn int
}

func (s *failingTxStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	return s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, failOn: s.failOn})
	})
}

type failingTx struct {
	db.Tx
	calls  int
	failOn int
}

func (t *failingTx) UpdateAssignmentMember(ctx context.Context, id, memberID string) error {
	t.calls++
	if t.calls == t.failOn {
		return errors.New("connection reset")
	}
	return t.Tx.UpdateAssignmentMember(ctx, id, memberID)
}

func TestSwap_AcceptIsAtomic(t *testing.T) {
	f, _ := swapFixture(t)
	ctx := context.Background()
	store := &failingTxStore{DB: f.db, failOn: 2}
	c := NewSwapCoordinator(store, f.gateway, f.logger, time.UTC, func() time.Time { return now })

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	_, err = c.Respond(ctx, "y", swap.ID, SwapAccept)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Equal(t, "x", f.assignment(t, "A1").MemberID)
	assert.Equal(t, "y", f.assignment(t, "A2").MemberID)

	stored, err := f.db.GetSwapRequest(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, stored.Status)
	assert.Nil(t, stored.ResolvedAt)
	assert.Equal(t, []notify.EventType{notify.EventSwapRequested}, f.gateway.types())
}

func TestSwap_GatewayFailureDoesNotUndoTransition(t *testing.T) {
	f, c := swapFixture(t)
	f.gateway.err = errors.New("smtp down")
	ctx := context.Background()

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	_, err = c.Respond(ctx, "y", swap.ID, SwapAccept)
	require.NoError(t, err)
	assert.Equal(t, "y", f.assignment(t, "A1").MemberID)
}

func TestSwap_List(t *testing.T) {
	_, c := swapFixture(t)
	ctx := context.Background()

	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	for _, member := range []string{"x", "y"} {
		swaps, err := c.List(ctx, member)
		require.NoError(t, err)
		require.Len(t, swaps, 1)
		assert.Equal(t, swap.ID, swaps[0].ID)
	}

	swaps, err := c.List(ctx, "lead")
	require.NoError(t, err)
	assert.Empty(t, swaps)
}

// recordingTxStore records the order assignments are locked in and can make
// the store abort a lock the way a database does when it picks a deadlock victim
type recordingTxStore struct {
	*memdb.DB
	mu      sync.Mutex
	locked  []string
	abortOn string
}

func (s *recordingTxStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	return s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return fn(ctx, &recordingTx{Tx: tx, store: s})
	})
}

func (s *recordingTxStore) lockOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.locked...)
}

type recordingTx struct {
	db.Tx
	store *recordingTxStore
}

func (t *recordingTx) LockGroup(ctx context.Context, groupID string) error {
	t.store.mu.Lock()
	t.store.locked = append(t.store.locked, "group:"+groupID)
	t.store.mu.Unlock()
	return t.Tx.LockGroup(ctx, groupID)
}

func (t *recordingTx) GetAssignmentForUpdate(ctx context.Context, id string) (*model.Assignment, error) {
	t.store.mu.Lock()
	t.store.locked = append(t.store.locked, id)
	abort := id == t.store.abortOn
	t.store.mu.Unlock()
	if abort {
		return nil, &db.ConflictError{Constraint: "concurrent_update", Detail: "deadlock detected"}
	}
	return t.Tx.GetAssignmentForUpdate(ctx, id)
}

func TestSwap_LocksAssignmentsInIDOrder(t *testing.T) {
	f, _ := swapFixture(t)
	ctx := context.Background()
	store := &recordingTxStore{DB: f.db}
	c := NewSwapCoordinator(store, f.gateway, f.logger, time.UTC, func() time.Time { return now })

	// y asks for A1 in exchange for A2, the reverse of the usual request
	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "y", RequesterAssignmentID: "A2", TargetAssignmentID: "A1"})
	require.NoError(t, err)
	assert.Equal(t, "A2", swap.RequesterAssignmentID)
	assert.Equal(t, "y", swap.RequesterMemberID)
	assert.Equal(t, []string{"A1", "A2"}, store.lockOrder())

	_, err = c.Respond(ctx, "x", swap.ID, SwapAccept)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "A1", "A2"}, store.lockOrder())
	assert.Equal(t, "y", f.assignment(t, "A1").MemberID)
	assert.Equal(t, "x", f.assignment(t, "A2").MemberID)
}

func TestSwap_AbortedLockMapsToDomainError(t *testing.T) {
	f, _ := swapFixture(t)
	ctx := context.Background()
	store := &recordingTxStore{DB: f.db}
	c := NewSwapCoordinator(store, f.gateway, f.logger, time.UTC, func() time.Time { return now })

	store.abortOn = "A2"
	_, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	assert.ErrorIs(t, err, ErrAlreadyPendingSwap)

	store.abortOn = ""
	swap, err := c.Create(ctx, CreateSwapRequest{CallerID: "x", RequesterAssignmentID: "A1", TargetAssignmentID: "A2"})
	require.NoError(t, err)

	store.abortOn = "A2"
	_, err = c.Respond(ctx, "y", swap.ID, SwapAccept)
	assert.ErrorIs(t, err, ErrAssignmentNoLongerValid)

	stored, err := f.db.GetSwapRequest(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, stored.Status)
	assert.Equal(t, "x", f.assignment(t, "A1").MemberID)
}

func TestLockAssignmentPair_ReturnsAskedOrder(t *testing.T) {
	f, _ := swapFixture(t)
	store := &recordingTxStore{DB: f.db}

	err := store.WithTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		first, second, err := lockAssignmentPair(ctx, tx, "A2", "A1", ErrAssignmentNotFound)
		require.NoError(t, err)
		assert.Equal(t, "A2", first.ID)
		assert.Equal(t, "A1", second.ID)

		_, _, err = lockAssignmentPair(ctx, tx, "A1", "missing", ErrAssignmentNotFound)
		assert.ErrorIs(t, err, ErrAssignmentNotFound)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "A1", "missing"}, store.lockOrder())
}
