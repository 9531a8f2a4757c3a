package models

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"tally/internal/money"
	dErrors "tally/pkg/domain-errors"
)

// EntryRole is the side of a double-entry posting a leg sits on. The stored
// amount is always non-negative; sign is carried by the role.
type EntryRole string

const (
	RoleDebit  EntryRole = "debit"
	RoleCredit EntryRole = "credit"
)

// IsValid checks if the role is one of the supported enum values.
func (r EntryRole) IsValid() bool {
	return r == RoleDebit || r == RoleCredit
}

// PostingStatus is the lifecycle stage of a journal entry. Transitions are
// monotonic: pending -> committed -> settled, never backward, never skipping.
type PostingStatus string

const (
	StatusPending   PostingStatus = "pending"
	StatusCommitted PostingStatus = "committed"
	StatusSettled   PostingStatus = "settled"
)

var statusRank = map[PostingStatus]int{
	StatusPending:   0,
	StatusCommitted: 1,
	StatusSettled:   2,
}

// IsValid checks if the status is one of the supported enum values.
func (p PostingStatus) IsValid() bool {
	_, ok := statusRank[p]
	return ok
}

// Rank returns the status position in the lifecycle, for ordering checks.
func (p PostingStatus) Rank() int {
	return statusRank[p]
}

// Account is a named balance holder. Balance is mutated exclusively through
// the balance mutator; Version is the CAS guard for those mutations.
type Account struct {
	ID        string
	OrgID     string
	Name      string
	Balance   money.Money
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates an Account with domain invariant validation.
func NewAccount(orgID, name string, opening money.Money) (*Account, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account name cannot be empty")
	}
	if opening.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "opening balance cannot be negative")
	}
	now := time.Now().UTC()
	return &Account{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Name:      name,
		Balance:   opening,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// JournalEntry is one leg of a double-entry posting.
type JournalEntry struct {
	ID          string
	GroupID     string
	AccountID   string
	Role        EntryRole
	Amount      money.Money
	Status      PostingStatus
	Description string
	Metadata    map[string]string
	CreatedBy   string
	CreatedAt   time.Time
}

// ProposedLeg is one leg of a journal group before validation.
type ProposedLeg struct {
	AccountID   string
	Role        EntryRole
	Amount      money.Money
	Description string
	Metadata    map[string]string
}

// ProposedGroup is a transaction group submitted for posting. Legs are
// persisted all-or-nothing.
type ProposedGroup struct {
	Legs      []ProposedLeg
	CreatedBy string
}

const (
	maxMetadataKeys     = 16
	maxMetadataValueLen = 256
)

var metadataKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ValidateMetadata enforces the schema-on-write for entry metadata: at most
// 16 keys, lowercase snake_case keys up to 64 chars, values up to 256 chars.
// Unknown-shaped metadata is rejected here, at the boundary, before it
// enters the core.
func ValidateMetadata(metadata map[string]string) error {
	if len(metadata) > maxMetadataKeys {
		return dErrors.Newf(dErrors.CodeInvalidInput, "metadata exceeds %d keys", maxMetadataKeys)
	}
	for k, v := range metadata {
		if !metadataKeyPattern.MatchString(k) {
			return dErrors.Newf(dErrors.CodeInvalidInput, "metadata key %q is not lowercase snake_case", k)
		}
		if len(v) > maxMetadataValueLen {
			return dErrors.Newf(dErrors.CodeInvalidInput, "metadata value for %q exceeds %d characters", k, maxMetadataValueLen)
		}
	}
	return nil
}

// Validate checks the group's internal invariants: at least two legs, valid
// roles, strictly positive amounts, valid metadata, and the double-entry
// balance invariant (sum of debits equals sum of credits). Account existence
// is checked by the service against the account store.
func (g ProposedGroup) Validate() error {
	if len(g.Legs) < 2 {
		return dErrors.New(dErrors.CodeInvalidInput, "journal group needs at least two legs")
	}

	var debits, credits money.Money
	for i, leg := range g.Legs {
		if leg.AccountID == "" {
			return dErrors.Newf(dErrors.CodeInvalidInput, "leg %d is missing an account", i)
		}
		if !leg.Role.IsValid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "leg %d has invalid role %q", i, leg.Role)
		}
		if leg.Amount.Sign() <= 0 {
			return dErrors.Newf(dErrors.CodeInvalidInput, "leg %d amount must be strictly positive", i)
		}
		if err := ValidateMetadata(leg.Metadata); err != nil {
			return err
		}
		switch leg.Role {
		case RoleDebit:
			debits = debits.Add(leg.Amount)
		case RoleCredit:
			credits = credits.Add(leg.Amount)
		}
	}

	if debits.Cmp(credits) != 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"journal group is unbalanced: debits %s, credits %s", debits, credits)
	}
	return nil
}

// Entries materializes the group into pending journal entries sharing one
// freshly assigned group ID.
func (g ProposedGroup) Entries() []JournalEntry {
	groupID := uuid.NewString()
	now := time.Now().UTC()
	entries := make([]JournalEntry, len(g.Legs))
	for i, leg := range g.Legs {
		entries[i] = JournalEntry{
			ID:          uuid.NewString(),
			GroupID:     groupID,
			AccountID:   leg.AccountID,
			Role:        leg.Role,
			Amount:      leg.Amount,
			Status:      StatusPending,
			Description: leg.Description,
			Metadata:    leg.Metadata,
			CreatedBy:   g.CreatedBy,
			CreatedAt:   now,
		}
	}
	return entries
}

// String renders a role/amount pair for error messages.
func (e JournalEntry) String() string {
	return fmt.Sprintf("%s %s on %s", e.Role, e.Amount, e.AccountID)
}
