package models

import (
	"encoding/json"
	"time"
)

// Status is the single canonical lifecycle state of a Connection. The
// historical admin_approved/client_approved/draft_locked booleans are derived
// projections, never stored.
type Status string

const (
	StatusPending        Status = "pending"
	StatusAdminApproved  Status = "admin_approved"
	StatusClientApproved Status = "client_approved"
	StatusApproved       Status = "approved"
)

// rank orders statuses along the approval pipeline. Unknown statuses rank
// below pending so they never satisfy a gate.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAdminApproved:
		return 1
	case StatusClientApproved:
		return 2
	case StatusApproved:
		return 3
	}
	return -1
}

// AtLeast reports whether s has reached stage t in the pipeline.
func (s Status) AtLeast(t Status) bool {
	return s.rank() >= t.rank() && s.rank() >= 0
}

func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Connection is a tracked request to introduce a client to a decision-maker,
// either standalone (user to user) or attached to a Deal.
type Connection struct {
	ID               string     `json:"connection_id" db:"connection_id"`
	FromUserID       string     `json:"from_user_id" db:"from_user_id"`
	ToUserID         *string    `json:"to_user_id,omitempty" db:"to_user_id"`
	DealID           *string    `json:"deal_id,omitempty" db:"deal_id"`
	Status           Status     `json:"status" db:"status"`
	DraftMessage     string     `json:"draft_message,omitempty" db:"draft_message"`
	DraftGeneratedAt *time.Time `json:"draft_generated_at,omitempty" db:"draft_generated_at"`
	ClientApprovedAt *time.Time `json:"client_approved_at,omitempty" db:"client_approved_at"`
	RequestedAt      time.Time  `json:"requested_at" db:"requested_at"`
	SentAt           *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	RowVersion       int64      `json:"row_version" db:"row_version"`
}

// AdminApproved reports whether the admin gate has been passed.
func (c *Connection) AdminApproved() bool { return c.Status.AtLeast(StatusAdminApproved) }

// ClientApproved reports whether the client has approved the draft.
func (c *Connection) ClientApproved() bool { return c.Status.AtLeast(StatusClientApproved) }

// DraftLocked reports whether the draft is frozen by the admin's final
// approval.
func (c *Connection) DraftLocked() bool { return c.Status.AtLeast(StatusApproved) }

// MarshalJSON emits the legacy boolean flag projections alongside the
// canonical status so older dashboard queries keep working.
func (c Connection) MarshalJSON() ([]byte, error) {
	type alias Connection
	return json.Marshal(struct {
		alias
		AdminApprovedFlag  bool `json:"admin_approved"`
		ClientApprovedFlag bool `json:"client_approved"`
		DraftLockedFlag    bool `json:"draft_locked"`
	}{
		alias:              alias(c),
		AdminApprovedFlag:  c.AdminApproved(),
		ClientApprovedFlag: c.ClientApproved(),
		DraftLockedFlag:    c.DraftLocked(),
	})
}

// DecisionMaker is a contact attached to a Deal. The same person may appear
// both as the Deal's flat primary fields and as an entry in the list; callers
// reconcile by name.
type DecisionMaker struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Email       string `json:"email,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// Deal is a pipeline opportunity. It owns at most one Connection per
// decision-maker at a time.
type Deal struct {
	ID             string          `json:"deal_id" db:"deal_id"`
	ClientID       string          `json:"client_id" db:"client_id"`
	Company        string          `json:"company" db:"company"`
	Stage          string          `json:"stage" db:"stage"`
	TargetDealSize int64           `json:"target_deal_size" db:"target_deal_size"` // in cents
	PrimaryDM      DecisionMaker   `json:"primary_decision_maker"`
	DecisionMakers []DecisionMaker `json:"decision_makers,omitempty"`
	Created        time.Time       `json:"created_at" db:"created_at"`
	Updated        time.Time       `json:"updated_at" db:"updated_at"`
	RowVersion     int64           `json:"row_version" db:"row_version"`
}

// ContactFor resolves the contact channel for a decision-maker by name,
// preferring the list entry and falling back to the flat primary fields when
// the two representations diverge.
func (d *Deal) ContactFor(name string) *DecisionMaker {
	for i := range d.DecisionMakers {
		if d.DecisionMakers[i].Name == name {
			return &d.DecisionMakers[i]
		}
	}
	if d.PrimaryDM.Name == name {
		return &d.PrimaryDM
	}
	return nil
}

// PrimaryContact returns the best known contact for the Deal: the list entry
// matching the primary name when present, otherwise the flat fields.
func (d *Deal) PrimaryContact() DecisionMaker {
	if dm := d.ContactFor(d.PrimaryDM.Name); dm != nil {
		return *dm
	}
	return d.PrimaryDM
}

// DealStages enumerates the pipeline stages in order.
var DealStages = []string{"identified", "contacted", "intro_requested", "in_discussion", "closed_won", "closed_lost"}

func ValidDealStage(s string) bool {
	for _, v := range DealStages {
		if v == s {
			return true
		}
	}
	return false
}

// Signal is an enrichment record produced for a client profile by the
// external search service. Only read here; generation is out of scope.
type Signal struct {
	ID                 string    `json:"signal_id" db:"signal_id"`
	ClientID           string    `json:"client_id" db:"client_id"`
	Date               time.Time `json:"date" db:"date"`
	Headline           string    `json:"headline" db:"headline"`
	RelevanceScore     int       `json:"relevance_score" db:"relevance_score"`
	OpportunityScore   int       `json:"opportunity_score" db:"opportunity_score"`
	ActionabilityScore int       `json:"actionability_score" db:"actionability_score"`
	SuggestedNextStep  string    `json:"suggested_next_step,omitempty" db:"suggested_next_step"`
	EstimatedDealValue int64     `json:"estimated_deal_value" db:"estimated_deal_value"` // in cents
	Published          bool      `json:"published" db:"published"`
}

// Client is an authenticated dashboard user on the client side. Admins are
// identified by role claim only and have no row here.
type Client struct {
	ID           string `json:"client_id" db:"client_id"`
	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	Updated      int64  `json:"updated" db:"updated"`
	PasswordHash string `json:"-" db:"password_hash"`
}
