package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrForbidden               = errors.New("forbidden")
	ErrNoEligibleMembers       = errors.New("no eligible members")
	ErrInvalidSlotDefinition   = errors.New("invalid slot definition")
	ErrInvalidDateRange        = errors.New("invalid date range")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrSlotNotFound            = errors.New("slot not found")
	ErrMemberNotFound          = errors.New("member not found")
	ErrAssignmentNotFound      = errors.New("assignment not found")
	ErrAssignmentInPast        = errors.New("assignment is in the past")
	ErrAssignmentConflict      = errors.New("assignment conflicts with an existing assignment")
	ErrAlreadyPendingSwap      = errors.New("assignment already has a pending swap request")
	ErrCrossGroupMismatch      = errors.New("assignments belong to different groups")
	ErrInvalidSwap             = errors.New("invalid swap")
	ErrSwapNotFound            = errors.New("swap request not found")
	ErrNotTargetMember         = errors.New("only the target member can respond to a swap request")
	ErrNotRequester            = errors.New("only the requester can cancel a swap request")
	ErrAlreadyResolved         = errors.New("swap request already resolved")
	ErrAssignmentNoLongerValid = errors.New("assignment no longer valid")
)

// InstanceConflict names a slot-instance that could not be committed
type InstanceConflict struct {
	SlotID    string
	SlotLabel string
	Date      string

	// MemberID is set when the member already holds an overlapping assignment
	MemberID string

	Description string
}

func (c InstanceConflict) String() string {
	label := c.SlotLabel
	if label == "" {
		label = c.SlotID
	}
	return fmt.Sprintf("%s %s: %s", label, c.Date, c.Description)
}

// BatchConflictError reports a schedule commit that was abandoned because
// other assignments were written after the schedule was generated.
// Nothing from the batch is kept.
type BatchConflictError struct {
	Conflicts []InstanceConflict
}

func (e *BatchConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("schedule commit aborted, %d conflicting slot-instances: %s", len(e.Conflicts), strings.Join(parts, "; "))
}

func (e *BatchConflictError) Is(target error) bool {
	return target == ErrAssignmentConflict
}
