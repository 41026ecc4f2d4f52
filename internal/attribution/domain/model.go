package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Role is one of the fixed earning roles on a placement.
type Role string

const (
	RoleCandidateRecruiter Role = "candidate_recruiter"
	RoleCompanyRecruiter   Role = "company_recruiter"
	RoleJobOwner           Role = "job_owner"
	RoleCandidateSourcer   Role = "candidate_sourcer"
	RoleCompanySourcer     Role = "company_sourcer"
)

// Roles lists every role in payout order.
var Roles = []Role{
	RoleCandidateRecruiter,
	RoleCompanyRecruiter,
	RoleJobOwner,
	RoleCandidateSourcer,
	RoleCompanySourcer,
}

func (r Role) Valid() bool {
	for _, role := range Roles {
		if role == r {
			return true
		}
	}
	return false
}

// Snapshot is the immutable attribution record of a placement. It is written
// once and never updated.
type Snapshot struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	PlacementID string          `json:"placement_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	TotalFee    decimal.Decimal `json:"total_fee" gorm:"type:numeric(14,2);not null"`
	Currency    string          `json:"currency" gorm:"type:varchar(3);not null"`

	CandidateRecruiterID   *string             `json:"candidate_recruiter_id,omitempty" gorm:"type:varchar(64)"`
	CandidateRecruiterTier *string             `json:"candidate_recruiter_tier,omitempty" gorm:"type:varchar(32)"`
	CandidateRecruiterRate decimal.NullDecimal `json:"candidate_recruiter_rate" gorm:"type:numeric(5,2)"`
	CompanyRecruiterID     *string             `json:"company_recruiter_id,omitempty" gorm:"type:varchar(64)"`
	CompanyRecruiterTier   *string             `json:"company_recruiter_tier,omitempty" gorm:"type:varchar(32)"`
	CompanyRecruiterRate   decimal.NullDecimal `json:"company_recruiter_rate" gorm:"type:numeric(5,2)"`
	JobOwnerID             *string             `json:"job_owner_id,omitempty" gorm:"type:varchar(64)"`
	JobOwnerTier           *string             `json:"job_owner_tier,omitempty" gorm:"type:varchar(32)"`
	JobOwnerRate           decimal.NullDecimal `json:"job_owner_rate" gorm:"type:numeric(5,2)"`
	CandidateSourcerID     *string             `json:"candidate_sourcer_id,omitempty" gorm:"type:varchar(64)"`
	CandidateSourcerTier   *string             `json:"candidate_sourcer_tier,omitempty" gorm:"type:varchar(32)"`
	CandidateSourcerRate   decimal.NullDecimal `json:"candidate_sourcer_rate" gorm:"type:numeric(5,2)"`
	CompanySourcerID       *string             `json:"company_sourcer_id,omitempty" gorm:"type:varchar(64)"`
	CompanySourcerTier     *string             `json:"company_sourcer_tier,omitempty" gorm:"type:varchar(32)"`
	CompanySourcerRate     decimal.NullDecimal `json:"company_sourcer_rate" gorm:"type:numeric(5,2)"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Snapshot) TableName() string { return "placement_snapshots" }

// RoleAssignment is one populated role of a snapshot.
type RoleAssignment struct {
	Role    Role
	PayeeID string
	Tier    string
	Rate    decimal.Decimal
	// HasRate is false when an identifier is present without a rate.
	HasRate bool
}

type roleColumns struct {
	id   **string
	tier **string
	rate *decimal.NullDecimal
}

func (s *Snapshot) columns(role Role) (roleColumns, bool) {
	switch role {
	case RoleCandidateRecruiter:
		return roleColumns{&s.CandidateRecruiterID, &s.CandidateRecruiterTier, &s.CandidateRecruiterRate}, true
	case RoleCompanyRecruiter:
		return roleColumns{&s.CompanyRecruiterID, &s.CompanyRecruiterTier, &s.CompanyRecruiterRate}, true
	case RoleJobOwner:
		return roleColumns{&s.JobOwnerID, &s.JobOwnerTier, &s.JobOwnerRate}, true
	case RoleCandidateSourcer:
		return roleColumns{&s.CandidateSourcerID, &s.CandidateSourcerTier, &s.CandidateSourcerRate}, true
	case RoleCompanySourcer:
		return roleColumns{&s.CompanySourcerID, &s.CompanySourcerTier, &s.CompanySourcerRate}, true
	}
	return roleColumns{}, false
}

// Assign sets a role on a snapshot that has not been persisted yet.
func (s *Snapshot) Assign(role Role, payeeID, tier string, rate decimal.Decimal) bool {
	cols, ok := s.columns(role)
	if !ok {
		return false
	}
	id, t := payeeID, tier
	*cols.id = &id
	*cols.tier = &t
	*cols.rate = decimal.NewNullDecimal(rate)
	return true
}

// Assignments returns the populated roles in payout order.
func (s *Snapshot) Assignments() []RoleAssignment {
	out := make([]RoleAssignment, 0, len(Roles))
	for _, role := range Roles {
		cols, _ := s.columns(role)
		if *cols.id == nil || **cols.id == "" {
			continue
		}
		assignment := RoleAssignment{Role: role, PayeeID: **cols.id}
		if *cols.tier != nil {
			assignment.Tier = **cols.tier
		}
		if cols.rate.Valid {
			assignment.Rate = cols.rate.Decimal
			assignment.HasRate = true
		}
		out = append(out, assignment)
	}
	return out
}

// RateSum is the sum of every populated rate.
func (s *Snapshot) RateSum() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range s.Assignments() {
		if a.HasRate {
			sum = sum.Add(a.Rate)
		}
	}
	return sum
}

// Participant is one role of an incoming placement, before rates are looked up.
type Participant struct {
	Role    Role
	PayeeID string
	Tier    string
}

// PlacementFacts carries what is known about a placement at creation time.
type PlacementFacts struct {
	PlacementID  string
	TotalFee     decimal.Decimal
	Currency     string
	Participants []Participant
}
