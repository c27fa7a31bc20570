package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStatusAtLeast(t *testing.T) {
	tests := []struct {
		s, gate Status
		want    bool
	}{
		{StatusPending, StatusAdminApproved, false},
		{StatusAdminApproved, StatusAdminApproved, true},
		{StatusClientApproved, StatusAdminApproved, true},
		{StatusApproved, StatusClientApproved, true},
		{StatusPending, StatusPending, true},
		{Status("bogus"), StatusPending, false},
	}
	for _, tc := range tests {
		if got := tc.s.AtLeast(tc.gate); got != tc.want {
			t.Fatalf("%s.AtLeast(%s) = %v, want %v", tc.s, tc.gate, got, tc.want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusAdminApproved, StatusClientApproved, StatusApproved} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if Status("shipped").Valid() {
		t.Fatal("unknown status should be invalid")
	}
}

func TestConnectionProjections(t *testing.T) {
	tests := []struct {
		status                Status
		admin, client, locked bool
	}{
		{StatusPending, false, false, false},
		{StatusAdminApproved, true, false, false},
		{StatusClientApproved, true, true, false},
		{StatusApproved, true, true, true},
	}
	for _, tc := range tests {
		c := Connection{Status: tc.status}
		if c.AdminApproved() != tc.admin || c.ClientApproved() != tc.client || c.DraftLocked() != tc.locked {
			t.Fatalf("%s: projections = %v/%v/%v, want %v/%v/%v",
				tc.status, c.AdminApproved(), c.ClientApproved(), c.DraftLocked(), tc.admin, tc.client, tc.locked)
		}
	}
}

func TestConnectionMarshalEmitsFlags(t *testing.T) {
	c := Connection{
		ID:          "conn-1",
		FromUserID:  "client-1",
		Status:      StatusClientApproved,
		RequestedAt: time.Now().UTC(),
	}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"status":"client_approved"`, `"admin_approved":true`, `"client_approved":true`, `"draft_locked":false`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}
}

func TestDealContactFor(t *testing.T) {
	d := Deal{
		PrimaryDM: DecisionMaker{Name: "Dana Voss", Role: "CTO"},
		DecisionMakers: []DecisionMaker{
			{Name: "Dana Voss", Role: "CTO", Email: "dana@acme.example"},
			{Name: "Iris Chen", Role: "CFO"},
		},
	}

	// the list entry wins when both representations carry the same name
	got := d.ContactFor("Dana Voss")
	if got == nil || got.Email != "dana@acme.example" {
		t.Fatalf("expected list entry preferred, got %+v", got)
	}
	if d.ContactFor("Nobody") != nil {
		t.Fatal("expected nil for unknown name")
	}

	pc := d.PrimaryContact()
	if pc.Email != "dana@acme.example" {
		t.Fatalf("primary contact not reconciled: %+v", pc)
	}
}

func TestDealPrimaryContactFallback(t *testing.T) {
	d := Deal{PrimaryDM: DecisionMaker{Name: "Solo Contact", Email: "solo@example.com"}}
	pc := d.PrimaryContact()
	if pc.Email != "solo@example.com" {
		t.Fatalf("expected flat fields fallback, got %+v", pc)
	}
}

func TestValidDealStage(t *testing.T) {
	for _, s := range DealStages {
		if !ValidDealStage(s) {
			t.Fatalf("%s should be valid", s)
		}
	}
	if ValidDealStage("shipped") {
		t.Fatal("unknown stage should be invalid")
	}
}
