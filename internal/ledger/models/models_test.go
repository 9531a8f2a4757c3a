package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"tally/internal/money"
	dErrors "tally/pkg/domain-errors"
)

type ModelsSuite struct {
	suite.Suite
}

func TestModelsSuite(t *testing.T) {
	suite.Run(t, new(ModelsSuite))
}

func (s *ModelsSuite) TestValidateMetadata() {
	s.Run("accepts snake_case keys within limits", func() {
		s.NoError(ValidateMetadata(map[string]string{
			"invoice_id": "inv-42",
			"channel":    "api",
		}))
	})

	s.Run("rejects more than sixteen keys", func() {
		md := make(map[string]string)
		for i := 0; i < 17; i++ {
			md["key_"+string(rune('a'+i))] = "v"
		}
		err := ValidateMetadata(md)
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects keys that are not lowercase snake_case", func() {
		for _, key := range []string{"Invoice", "9lives", "has-dash", "", "_leading"} {
			err := ValidateMetadata(map[string]string{key: "v"})
			s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput), "key %q", key)
		}
	})

	s.Run("rejects oversized values", func() {
		err := ValidateMetadata(map[string]string{"note": strings.Repeat("x", 257)})
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("accepts value at the limit", func() {
		s.NoError(ValidateMetadata(map[string]string{"note": strings.Repeat("x", 256)}))
	})
}

func (s *ModelsSuite) TestProposedGroupValidate() {
	s.Run("rejects single leg", func() {
		err := ProposedGroup{Legs: []ProposedLeg{
			{AccountID: "a", Role: RoleDebit, Amount: money.FromCents(100)},
		}}.Validate()
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects negative amounts", func() {
		err := ProposedGroup{Legs: []ProposedLeg{
			{AccountID: "a", Role: RoleDebit, Amount: money.FromCents(-100)},
			{AccountID: "b", Role: RoleCredit, Amount: money.FromCents(-100)},
		}}.Validate()
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("accepts multi-leg balanced group", func() {
		err := ProposedGroup{Legs: []ProposedLeg{
			{AccountID: "a", Role: RoleDebit, Amount: money.FromCents(300)},
			{AccountID: "b", Role: RoleCredit, Amount: money.FromCents(100)},
			{AccountID: "c", Role: RoleCredit, Amount: money.FromCents(200)},
		}}.Validate()
		s.NoError(err)
	})

	s.Run("rejects one-cent imbalance", func() {
		err := ProposedGroup{Legs: []ProposedLeg{
			{AccountID: "a", Role: RoleDebit, Amount: money.FromCents(300)},
			{AccountID: "b", Role: RoleCredit, Amount: money.FromCents(299)},
		}}.Validate()
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ModelsSuite) TestStatusRank() {
	s.Less(StatusPending.Rank(), StatusCommitted.Rank())
	s.Less(StatusCommitted.Rank(), StatusSettled.Rank())
	s.False(PostingStatus("voided").IsValid())
}

func (s *ModelsSuite) TestEntriesShareGroupID() {
	g := ProposedGroup{CreatedBy: "user-1", Legs: []ProposedLeg{
		{AccountID: "a", Role: RoleDebit, Amount: money.FromCents(100)},
		{AccountID: "b", Role: RoleCredit, Amount: money.FromCents(100)},
	}}
	entries := g.Entries()
	s.Require().Len(entries, 2)
	s.Equal(entries[0].GroupID, entries[1].GroupID)
	s.NotEqual(entries[0].ID, entries[1].ID)
	s.Equal(StatusPending, entries[0].Status)
	s.Equal("user-1", entries[0].CreatedBy)
}
