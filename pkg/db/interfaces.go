package db

import (
	"context"
	"time"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// AssignmentFilter selects assignments by any combination of fields.
// Empty fields are ignored; From and To are inclusive dates.
type AssignmentFilter struct {
	GroupID   string
	MemberIDs []string
	From      string
	To        string
}

// Tx is the set of operations available inside a transaction.
// Reads through Tx lock the returned rows until the transaction ends.
// Uniqueness of assignments is checked no later than commit.
type Tx interface {
	// LockGroup blocks until no other transaction holds the group's lock,
	// then holds it until this transaction ends
	LockGroup(ctx context.Context, groupID string) error

	GetAssignmentForUpdate(ctx context.Context, id string) (*model.Assignment, error)
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error)
	InsertAssignments(ctx context.Context, assignments []model.Assignment) error
	UpdateAssignmentMember(ctx context.Context, id, memberID string) error
	DeleteAssignments(ctx context.Context, ids []string) error

	GetSwapRequestForUpdate(ctx context.Context, id string) (*model.SwapRequest, error)
	ListPendingSwapRequests(ctx context.Context, assignmentIDs []string) ([]model.SwapRequest, error)
	InsertSwapRequest(ctx context.Context, swap *model.SwapRequest) error
	ResolveSwapRequest(ctx context.Context, id string, status model.SwapStatus, resolvedAt time.Time) error
	DeleteSwapRequests(ctx context.Context, ids []string) error

	DeleteMembership(ctx context.Context, groupID, memberID string) error
}

// MemberStore defines member and membership operations
type MemberStore interface {
	GetMember(ctx context.Context, id string) (*model.Member, error)
	UpsertMember(ctx context.Context, member *model.Member) error
	GetMembership(ctx context.Context, groupID, memberID string) (*model.Membership, error)
	UpsertMembership(ctx context.Context, membership *model.Membership) error
	ListGroupMembers(ctx context.Context, groupID string) ([]model.GroupMember, error)
}

// SlotStore defines slot configuration operations
type SlotStore interface {
	ListSlots(ctx context.Context, groupID string) ([]model.Slot, error)
	GetSlot(ctx context.Context, id string) (*model.Slot, error)
	InsertSlot(ctx context.Context, slot *model.Slot) error
	DeleteSlot(ctx context.Context, id string) error
}

// AvailabilityStore defines availability and preference operations
type AvailabilityStore interface {
	// ListAvailabilityMarks returns dated marks between from and to plus all recurring marks
	ListAvailabilityMarks(ctx context.Context, groupID, from, to string) ([]model.AvailabilityMark, error)
	UpsertAvailabilityMarks(ctx context.Context, marks []model.AvailabilityMark) error
	ListPreferences(ctx context.Context, groupID string) ([]model.Preference, error)
	UpsertPreference(ctx context.Context, pref *model.Preference) error
}

// AssignmentStore defines assignment and swap request reads plus transactions
type AssignmentStore interface {
	GetAssignment(ctx context.Context, id string) (*model.Assignment, error)
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error)
	GetSwapRequest(ctx context.Context, id string) (*model.SwapRequest, error)
	ListSwapRequests(ctx context.Context, memberID string) ([]model.SwapRequest, error)

	// WithTx runs fn in a single transaction. If fn returns an error nothing
	// it did is kept. A uniqueness violation detected at commit is returned
	// as an error matching ErrConflict.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Database defines the interface for all database operations.
// Both the Postgres-backed postgres.DB and the in-memory memdb.DB implement this interface.
type Database interface {
	MemberStore
	SlotStore
	AvailabilityStore
	AssignmentStore
}
