package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/introdesk/internal/events"
	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/pkg/mailer"
	"github.com/garnizeh/introdesk/pkg/repository"
)

// Service owns the Connection lifecycle:
//
//	pending -> admin_approved -> (draft, implicit) -> client_approved -> approved
//
// Each transition is issued as a single conditional statement against the
// store, so two racing callers of the same transition produce one state
// change and one event; the loser observes an idempotent no-op.
type Service struct {
	conns   repository.ConnectionRepo
	deals   repository.DealRepo
	clients repository.ClientRepo
	hub     *events.Hub
	mail    mailer.Mailer
	logger  *slog.Logger
}

func NewService(conns repository.ConnectionRepo, deals repository.DealRepo, clients repository.ClientRepo, hub *events.Hub, mail mailer.Mailer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{conns: conns, deals: deals, clients: clients, hub: hub, mail: mail, logger: logger}
}

func (s *Service) publish(kind events.Kind, connectionID string) {
	if s.hub != nil {
		s.hub.Publish(kind, connectionID)
	}
}

// Request creates a new Connection in status pending, attached to a deal or
// aimed at a target user. Exactly one of dealID/toUserID must be set.
func (s *Service) Request(ctx context.Context, clientID string, dealID, toUserID *string) (*models.Connection, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", repository.ErrValidation)
	}
	if (dealID == nil) == (toUserID == nil) {
		return nil, fmt.Errorf("%w: exactly one of deal_id and to_user_id is required", repository.ErrValidation)
	}

	if dealID != nil {
		deal, err := s.deals.GetDeal(ctx, *dealID)
		if err != nil {
			return nil, err
		}
		if deal.ClientID != clientID {
			return nil, fmt.Errorf("%w: deal %s does not belong to the caller", repository.ErrValidation, *dealID)
		}
	} else if s.clients != nil {
		if _, err := s.clients.GetClientByID(ctx, *toUserID); err != nil {
			return nil, err
		}
	}

	c := &models.Connection{
		ID:          uuid.NewString(),
		FromUserID:  clientID,
		ToUserID:    toUserID,
		DealID:      dealID,
		Status:      models.StatusPending,
		RequestedAt: time.Now().UTC(),
		RowVersion:  1,
	}
	if err := s.conns.CreateConnection(ctx, c); err != nil {
		return nil, err
	}

	s.publish(events.ConnectionCreated, c.ID)
	return c, nil
}

// Approve moves pending -> admin_approved. Re-approving an already approved
// connection is a no-op, not an error.
func (s *Service) Approve(ctx context.Context, id string) (*models.Connection, error) {
	changed, err := s.conns.TransitionConnection(ctx, id, []models.Status{models.StatusPending}, models.StatusAdminApproved, nil)
	if err != nil {
		return nil, err
	}

	conn, err := s.conns.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(events.AdminApproved, id)
		return conn, nil
	}
	if conn.AdminApproved() {
		// another caller got here first; same terminal state either way
		return conn, nil
	}
	return nil, fmt.Errorf("%w: connection %s cannot be approved from status %s", repository.ErrPrecondition, id, conn.Status)
}

// EditDraft overwrites the draft text. Allowed to admin and client until the
// draft is locked. No version history is kept; when expectedVersion is
// non-zero a concurrent overwrite surfaces as a conflict instead of a silent
// lost update.
func (s *Service) EditDraft(ctx context.Context, id, text string, expectedVersion int64) (*models.Connection, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: draft text is required", repository.ErrValidation)
	}

	conn, err := s.conns.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn.DraftLocked() {
		return nil, fmt.Errorf("%w: draft for connection %s is locked", repository.ErrPrecondition, id)
	}
	if !conn.AdminApproved() {
		return nil, fmt.Errorf("%w: connection %s is not admin approved", repository.ErrPrecondition, id)
	}

	if err := s.conns.UpdateConnectionFields(ctx, id, map[string]any{"draft_message": text}, expectedVersion); err != nil {
		return nil, err
	}

	s.publish(events.DraftUpdated, id)
	conn.DraftMessage = text
	return conn, nil
}

// ApproveDraft records the client's approval of the current draft text.
// Guard: draft present and not locked. The conditional transition guarantees
// a single client_approved_at under concurrent calls.
func (s *Service) ApproveDraft(ctx context.Context, id, clientID string) (*models.Connection, error) {
	conn, err := s.conns.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if clientID != "" && conn.FromUserID != clientID {
		return nil, fmt.Errorf("%w: connection %s does not belong to the caller", repository.ErrValidation, id)
	}
	if strings.TrimSpace(conn.DraftMessage) == "" {
		return nil, fmt.Errorf("%w: connection %s has no draft to approve", repository.ErrPrecondition, id)
	}

	changed, err := s.conns.TransitionConnection(ctx, id,
		[]models.Status{models.StatusAdminApproved}, models.StatusClientApproved,
		map[string]any{"client_approved_at": time.Now().UTC().UnixMilli()})
	if err != nil {
		return nil, err
	}

	conn, err = s.conns.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(events.ClientApproved, id)
		return conn, nil
	}
	if conn.ClientApproved() {
		return conn, nil
	}
	return nil, fmt.Errorf("%w: connection %s cannot be client approved from status %s", repository.ErrPrecondition, id, conn.Status)
}

// FinalApprove locks the draft: client_approved -> approved. Admin only.
func (s *Service) FinalApprove(ctx context.Context, id string) (*models.Connection, error) {
	changed, err := s.conns.TransitionConnection(ctx, id, []models.Status{models.StatusClientApproved}, models.StatusApproved, nil)
	if err != nil {
		return nil, err
	}

	conn, err := s.conns.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(events.FinalApproved, id)
		return conn, nil
	}
	if conn.DraftLocked() {
		return conn, nil
	}
	return nil, fmt.Errorf("%w: connection %s cannot be locked from status %s", repository.ErrPrecondition, id, conn.Status)
}

// Send delivers the locked draft to the resolved recipient. Sending does not
// transition status: the connection stays approved and re-sendable; sent_at
// records the most recent delivery.
func (s *Service) Send(ctx context.Context, id, clientID string) (*models.Connection, error) {
	conn, err := s.conns.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if clientID != "" && conn.FromUserID != clientID {
		return nil, fmt.Errorf("%w: connection %s does not belong to the caller", repository.ErrValidation, id)
	}
	if !conn.DraftLocked() || !conn.ClientApproved() {
		return nil, fmt.Errorf("%w: connection %s is not locked for sending", repository.ErrPrecondition, id)
	}
	if s.mail == nil {
		return nil, fmt.Errorf("%w: outbound delivery is not configured", repository.ErrValidation)
	}

	to, subject, err := s.resolveRecipient(ctx, conn)
	if err != nil {
		return nil, err
	}

	if err := s.mail.Send(ctx, mailer.Message{To: to, Subject: subject, Body: conn.DraftMessage}); err != nil {
		return nil, fmt.Errorf("send introduction: %w", err)
	}

	nowUTC := time.Now().UTC()
	if err := s.conns.UpdateConnectionFields(ctx, id, map[string]any{"sent_at": nowUTC.UnixMilli()}, 0); err != nil {
		// delivery succeeded; a failed bookkeeping write must not be
		// reported as a failed send
		s.logger.Error("record sent_at", slog.String("connection_id", id), slog.Any("err", err))
	}

	conn.SentAt = &nowUTC
	return conn, nil
}

// resolveRecipient finds the contact channel for the introduction: the
// deal's decision-maker when deal-based, otherwise the target user's email.
func (s *Service) resolveRecipient(ctx context.Context, conn *models.Connection) (to, subject string, err error) {
	if conn.DealID != nil {
		deal, derr := s.deals.GetDeal(ctx, *conn.DealID)
		if derr != nil {
			return "", "", derr
		}
		dm := deal.PrimaryContact()
		if dm.Email == "" {
			return "", "", fmt.Errorf("%w: no email on record for decision-maker %q", repository.ErrValidation, dm.Name)
		}
		return dm.Email, fmt.Sprintf("Introduction regarding %s", deal.Company), nil
	}

	if conn.ToUserID == nil || s.clients == nil {
		return "", "", fmt.Errorf("%w: connection has no resolvable recipient", repository.ErrValidation)
	}
	target, terr := s.clients.GetClientByID(ctx, *conn.ToUserID)
	if terr != nil {
		return "", "", terr
	}
	if target.Email == "" {
		return "", "", fmt.Errorf("%w: target user has no email on record", repository.ErrValidation)
	}
	return target.Email, "An introduction", nil
}

// Get returns one connection.
func (s *Service) Get(ctx context.Context, id string) (*models.Connection, error) {
	return s.conns.GetConnection(ctx, id)
}

// List returns connections, optionally filtered by status and owner.
func (s *Service) List(ctx context.Context, f repository.ConnectionFilter) ([]models.Connection, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrValidation, f.Status)
	}
	return s.conns.ListConnections(ctx, f)
}
