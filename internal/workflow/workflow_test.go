package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garnizeh/introdesk/internal/events"
	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/pkg/mailer"
	"github.com/garnizeh/introdesk/pkg/repository"
	"github.com/garnizeh/introdesk/pkg/repository/mock"
)

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, m mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func newTestService(t *testing.T) (*Service, *mock.Mocks, *events.Hub, *fakeMailer) {
	t.Helper()
	m := mock.NewMocks()
	hub := events.NewHub(64, 0)
	t.Cleanup(hub.Close)
	fm := &fakeMailer{}
	svc := NewService(m.ConnRepo, m.DealRepo, m.ClientRepo, hub, fm, nil)
	return svc, m, hub, fm
}

func drainKinds(sub *events.Subscription) []events.Kind {
	var kinds []events.Kind
	for {
		select {
		case ev := <-sub.C:
			kinds = append(kinds, ev.Type)
		default:
			return kinds
		}
	}
}

func seedDeal(t *testing.T, m *mock.Mocks, id, clientID string) {
	t.Helper()
	err := m.DealRepo.CreateDeal(context.Background(), &models.Deal{
		ID:       id,
		ClientID: clientID,
		Company:  "Acme Corp",
		Stage:    "identified",
		PrimaryDM: models.DecisionMaker{
			Name:  "Dana Voss",
			Role:  "CTO",
			Email: "dana@acme.example",
		},
		RowVersion: 1,
	})
	if err != nil {
		t.Fatalf("seed deal: %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	svc, m, _, _ := newTestService(t)
	ctx := context.Background()
	seedDeal(t, m, "deal-1", "client-1")
	dealID := "deal-1"
	userID := "user-2"

	tests := []struct {
		name     string
		clientID string
		dealID   *string
		toUserID *string
		wantErr  error
	}{
		{"missing client", "", &dealID, nil, repository.ErrValidation},
		{"neither target", "client-1", nil, nil, repository.ErrValidation},
		{"both targets", "client-1", &dealID, &userID, repository.ErrValidation},
		{"deal not found", "client-1", ptr("deal-missing"), nil, repository.ErrNotFound},
		{"foreign deal", "client-2", &dealID, nil, repository.ErrValidation},
		{"target user not found", "client-1", nil, &userID, repository.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Request(ctx, tc.clientID, tc.dealID, tc.toUserID)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRequestCreatesPending(t *testing.T) {
	svc, m, hub, _ := newTestService(t)
	ctx := context.Background()
	seedDeal(t, m, "deal-1", "client-1")
	sub := hub.Subscribe(8)
	defer sub.Cancel()

	dealID := "deal-1"
	conn, err := svc.Request(ctx, "client-1", &dealID, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if conn.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", conn.Status)
	}
	if conn.ID == "" || conn.RequestedAt.IsZero() {
		t.Fatalf("expected id and requested_at, got %+v", conn)
	}
	if conn.AdminApproved() || conn.ClientApproved() || conn.DraftLocked() {
		t.Fatal("new connection must carry no approval projections")
	}

	kinds := drainKinds(sub)
	if len(kinds) != 1 || kinds[0] != events.ConnectionCreated {
		t.Fatalf("expected one connection_created event, got %v", kinds)
	}
}

func TestApproveLifecycle(t *testing.T) {
	svc, m, hub, _ := newTestService(t)
	ctx := context.Background()
	seedDeal(t, m, "deal-1", "client-1")
	dealID := "deal-1"
	conn, err := svc.Request(ctx, "client-1", &dealID, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	sub := hub.Subscribe(8)
	defer sub.Cancel()

	got, err := svc.Approve(ctx, conn.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != models.StatusAdminApproved {
		t.Fatalf("expected admin_approved, got %s", got.Status)
	}

	// second approve is a no-op, not an error, and emits nothing
	again, err := svc.Approve(ctx, conn.ID)
	if err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if again.Status != models.StatusAdminApproved {
		t.Fatalf("expected status unchanged, got %s", again.Status)
	}

	kinds := drainKinds(sub)
	if len(kinds) != 1 || kinds[0] != events.AdminApproved {
		t.Fatalf("expected exactly one admin_approved event, got %v", kinds)
	}

	if _, err := svc.Approve(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEditDraftGuards(t *testing.T) {
	svc, m, _, _ := newTestService(t)
	ctx := context.Background()
	seedDeal(t, m, "deal-1", "client-1")
	dealID := "deal-1"
	conn, _ := svc.Request(ctx, "client-1", &dealID, nil)

	if _, err := svc.EditDraft(ctx, conn.ID, "hello", 0); !errors.Is(err, repository.ErrPrecondition) {
		t.Fatalf("expected precondition on pending connection, got %v", err)
	}
	if _, err := svc.Approve(ctx, conn.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.EditDraft(ctx, conn.ID, "   ", 0); !errors.Is(err, repository.ErrValidation) {
		t.Fatalf("expected validation on empty draft, got %v", err)
	}

	text := "Hej Dana — koffie ☕ volgende week?"
	got, err := svc.EditDraft(ctx, conn.ID, text, 0)
	if err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	if got.DraftMessage != text {
		t.Fatalf("draft text mangled: %q", got.DraftMessage)
	}
}

func TestEditDraftVersionConflict(t *testing.T) {
	svc, m, _, _ := newTestService(t)
	ctx := context.Background()
	seedDeal(t, m, "deal-1", "client-1")
	dealID := "deal-1"
	conn, _ := svc.Request(ctx, "client-1", &dealID, nil)
	svc.Approve(ctx, conn.ID)

	cur, _ := svc.Get(ctx, conn.ID)
	if _, err := svc.EditDraft(ctx, conn.ID, "first edit", cur.RowVersion); err != nil {
		t.Fatalf("edit with current version: %v", err)
	}

	// the version we read is now stale
	_, err := svc.EditDraft(ctx, conn.ID, "second edit", cur.RowVersion)
	var conflict *repository.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("conflict must match ErrConflict sentinel, got %v", err)
	}
}

func TestApproveDraftGuards(t *testing.T) {
	svc, m, hub, _ := newTestService(t)
	ctx := context.Background()
	seedDeal(t, m, "deal-1", "client-1")
	dealID := "deal-1"
	conn, _ := svc.Request(ctx, "client-1", &dealID, nil)
	svc.Approve(ctx, conn.ID)

	// no draft yet
	if _, err := svc.ApproveDraft(ctx, conn.ID, "client-1"); !errors.Is(err, repository.ErrPrecondition) {
		t.Fatalf("expected precondition without draft, got %v", err)
	}
	svc.EditDraft(ctx, conn.ID, "Hi Dana", 0)

	// wrong owner
	if _, err := svc.ApproveDraft(ctx, conn.ID, "client-2"); !errors.Is(err, repository.ErrValidation) {
		t.Fatalf("expected validation for foreign caller, got %v", err)
	}

	sub := hub.Subscribe(8)
	defer sub.Cancel()

	got, err := svc.ApproveDraft(ctx, conn.ID, "client-1")
	if err != nil {
		t.Fatalf("approve draft: %v", err)
	}
	if got.Status != models.StatusClientApproved {
		t.Fatalf("expected client_approved, got %s", got.Status)
	}
	if got.ClientApprovedAt == nil {
		t.Fatal("expected client_approved_at recorded")
	}
	firstAt := *got.ClientApprovedAt

	// idempotent: timestamp does not move, no second event
	time.Sleep(2 * time.Millisecond)
	again, err := svc.ApproveDraft(ctx, conn.ID, "client-1")
	if err != nil {
		t.Fatalf("re-approve draft: %v", err)
	}
	if again.ClientApprovedAt == nil || !again.ClientApprovedAt.Equal(firstAt) {
		t.Fatalf("client_approved_at moved on repeat call: %v -> %v", firstAt, again.ClientApprovedAt)
	}
	kinds := drainKinds(sub)
	if len(kinds) != 1 || kinds[0] != events.ClientApproved {
		t.Fatalf("expected one client_approved event, got %v", kinds)
	}
}

func TestFinalApproveLocksDraft(t *testing.T) {
	svc, m, hub, _ := newTestService(t)
	ctx := context.Background()
	seedDeal(t, m, "deal-1", "client-1")
	dealID := "deal-1"
	conn, _ := svc.Request(ctx, "client-1", &dealID, nil)

	// out of order: pending cannot be locked
	if _, err := svc.FinalApprove(ctx, conn.ID); !errors.Is(err, repository.ErrPrecondition) {
		t.Fatalf("expected precondition, got %v", err)
	}

	svc.Approve(ctx, conn.ID)
	svc.EditDraft(ctx, conn.ID, "Hi Dana", 0)
	svc.ApproveDraft(ctx, conn.ID, "client-1")

	sub := hub.Subscribe(8)
	defer sub.Cancel()

	got, err := svc.FinalApprove(ctx, conn.ID)
	if err != nil {
		t.Fatalf("final approve: %v", err)
	}
	if !got.DraftLocked() {
		t.Fatalf("expected locked draft, got status %s", got.Status)
	}

	// locked draft rejects edits
	if _, err := svc.EditDraft(ctx, conn.ID, "late change", 0); !errors.Is(err, repository.ErrPrecondition) {
		t.Fatalf("expected precondition on locked draft, got %v", err)
	}

	// repeat lock is a no-op
	if _, err := svc.FinalApprove(ctx, conn.ID); err != nil {
		t.Fatalf("re-lock: %v", err)
	}
	kinds := drainKinds(sub)
	if len(kinds) != 1 || kinds[0] != events.FinalApproved {
		t.Fatalf("expected one final_approved event, got %v", kinds)
	}
}

func TestSendDeliversToDecisionMaker(t *testing.T) {
	svc, m, _, fm := newTestService(t)
	ctx := context.Background()
	seedDeal(t, m, "deal-1", "client-1")
	dealID := "deal-1"
	conn, _ := svc.Request(ctx, "client-1", &dealID, nil)
	svc.Approve(ctx, conn.ID)
	svc.EditDraft(ctx, conn.ID, "Hi Dana, meet my client.", 0)
	svc.ApproveDraft(ctx, conn.ID, "client-1")

	// not locked yet
	if _, err := svc.Send(ctx, conn.ID, "client-1"); !errors.Is(err, repository.ErrPrecondition) {
		t.Fatalf("expected precondition before lock, got %v", err)
	}
	svc.FinalApprove(ctx, conn.ID)

	got, err := svc.Send(ctx, conn.ID, "client-1")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.SentAt == nil {
		t.Fatal("expected sent_at recorded")
	}
	if got.Status != models.StatusApproved {
		t.Fatalf("sending must not change status, got %s", got.Status)
	}
	if len(fm.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(fm.sent))
	}
	msg := fm.sent[0]
	if msg.To != "dana@acme.example" {
		t.Fatalf("wrong recipient: %s", msg.To)
	}
	if msg.Subject != "Introduction regarding Acme Corp" {
		t.Fatalf("wrong subject: %s", msg.Subject)
	}

	// re-sendable: second call delivers again
	if _, err := svc.Send(ctx, conn.ID, "client-1"); err != nil {
		t.Fatalf("re-send: %v", err)
	}
	if len(fm.sent) != 2 {
		t.Fatalf("expected two deliveries, got %d", len(fm.sent))
	}
}

func TestSendToTargetUser(t *testing.T) {
	svc, m, _, fm := newTestService(t)
	ctx := context.Background()
	m.ClientRepo.CreateClient(ctx, &models.Client{ID: "user-2", Name: "Ben Ito", Email: "ben@example.com"})

	userID := "user-2"
	conn, err := svc.Request(ctx, "client-1", nil, &userID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	svc.Approve(ctx, conn.ID)
	svc.EditDraft(ctx, conn.ID, "Hi Ben", 0)
	svc.ApproveDraft(ctx, conn.ID, "client-1")
	svc.FinalApprove(ctx, conn.ID)

	if _, err := svc.Send(ctx, conn.ID, "client-1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fm.sent) != 1 || fm.sent[0].To != "ben@example.com" {
		t.Fatalf("unexpected deliveries: %+v", fm.sent)
	}
}

func TestSendMailerFailure(t *testing.T) {
	svc, m, _, fm := newTestService(t)
	ctx := context.Background()
	seedDeal(t, m, "deal-1", "client-1")
	dealID := "deal-1"
	conn, _ := svc.Request(ctx, "client-1", &dealID, nil)
	svc.Approve(ctx, conn.ID)
	svc.EditDraft(ctx, conn.ID, "Hi", 0)
	svc.ApproveDraft(ctx, conn.ID, "client-1")
	svc.FinalApprove(ctx, conn.ID)

	fm.err = errors.New("smtp unreachable")
	if _, err := svc.Send(ctx, conn.ID, "client-1"); err == nil {
		t.Fatal("expected send failure surfaced")
	}
	got, _ := svc.Get(ctx, conn.ID)
	if got.SentAt != nil {
		t.Fatal("sent_at must not be recorded when delivery failed")
	}
}

func TestListValidatesStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.List(context.Background(), repository.ConnectionFilter{Status: "bogus"})
	if !errors.Is(err, repository.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func ptr(s string) *string { return &s }
