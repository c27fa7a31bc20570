package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	ConnRepo   *ConnectionRepo
	DealRepo   *DealRepo
	SignalRepo *SignalRepo
	ClientRepo *ClientRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		ConnRepo:   &ConnectionRepo{byID: map[string]*models.Connection{}},
		DealRepo:   &DealRepo{byID: map[string]*models.Deal{}},
		SignalRepo: &SignalRepo{byID: map[string]*models.Signal{}},
		ClientRepo: &ClientRepo{byID: map[string]*models.Client{}},
	}
}

// ConnectionRepo is an in-memory ConnectionRepo with the same transition
// semantics as the SQLite implementation, including the conditional guard,
// so workflow tests exercise real no-op behavior.
type ConnectionRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.Connection
	CreateErr error
	GetErr    error
	UpdateErr error
}

func (m *ConnectionRepo) CreateConnection(ctx context.Context, c *models.Connection) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[c.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", repository.ErrValidation, c.ID)
	}
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *ConnectionRepo) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *ConnectionRepo) ListConnections(ctx context.Context, f repository.ConnectionFilter) ([]models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Connection
	for _, c := range m.byID {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.ClientID != "" && c.FromUserID != f.ClientID {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *ConnectionRepo) UpdateConnectionFields(ctx context.Context, id string, fields map[string]any, expectedVersion int64) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if expectedVersion > 0 && c.RowVersion != expectedVersion {
		return &repository.ConflictError{Table: "connections", ID: id, ExpectedVersion: expectedVersion, CurrentVersion: c.RowVersion}
	}
	if err := applyConnectionFields(c, fields); err != nil {
		return err
	}
	c.RowVersion++
	return nil
}

func (m *ConnectionRepo) TransitionConnection(ctx context.Context, id string, from []models.Status, to models.Status, fields map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if c.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	c.Status = to
	if err := applyConnectionFields(c, fields); err != nil {
		return false, err
	}
	c.RowVersion++
	return true, nil
}

func (m *ConnectionRepo) DeleteConnection(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func applyConnectionFields(c *models.Connection, fields map[string]any) error {
	for k, v := range fields {
		switch k {
		case "draft_message":
			c.DraftMessage, _ = v.(string)
		case "draft_generated_at":
			c.DraftGeneratedAt = msField(v)
		case "client_approved_at":
			c.ClientApprovedAt = msField(v)
		case "sent_at":
			c.SentAt = msField(v)
		case "status":
			c.Status = models.Status(fmt.Sprint(v))
		default:
			return fmt.Errorf("%w: unknown field %q for table connections", repository.ErrValidation, k)
		}
	}
	return nil
}

func msField(v any) *time.Time {
	switch ms := v.(type) {
	case int64:
		t := time.UnixMilli(ms).UTC()
		return &t
	case *time.Time:
		return ms
	case time.Time:
		return &ms
	}
	return nil
}

type DealRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.Deal
	GetErr error
	// DeleteDelay simulates a slow store so handler timeout paths can be
	// exercised.
	DeleteDelay time.Duration
}

func (m *DealRepo) CreateDeal(ctx context.Context, d *models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.byID[d.ID] = &cp
	return nil
}

func (m *DealRepo) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *DealRepo) ListDeals(ctx context.Context, clientID string) ([]models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Deal
	for _, d := range m.byID {
		if clientID != "" && d.ClientID != clientID {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (m *DealRepo) UpdateDealFields(ctx context.Context, id string, fields map[string]any, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if expectedVersion > 0 && d.RowVersion != expectedVersion {
		return &repository.ConflictError{Table: "deals", ID: id, ExpectedVersion: expectedVersion, CurrentVersion: d.RowVersion}
	}
	for k, v := range fields {
		switch k {
		case "stage":
			d.Stage = fmt.Sprint(v)
		case "company":
			d.Company = fmt.Sprint(v)
		case "updated_at":
			// bookkeeping only
		default:
			return fmt.Errorf("%w: unknown field %q for table deals", repository.ErrValidation, k)
		}
	}
	d.RowVersion++
	return nil
}

func (m *DealRepo) UpdateDealStage(ctx context.Context, id, stage string) error {
	if !models.ValidDealStage(stage) {
		return fmt.Errorf("%w: unknown deal stage %q", repository.ErrValidation, stage)
	}
	return m.UpdateDealFields(ctx, id, map[string]any{"stage": stage}, 0)
}

func (m *DealRepo) DeleteDeal(ctx context.Context, id string) error {
	if m.DeleteDelay > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", repository.ErrTimeout, ctx.Err())
		case <-time.After(m.DeleteDelay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type SignalRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Signal
}

func (m *SignalRepo) Add(s models.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.byID[s.ID] = &cp
}

func (m *SignalRepo) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *SignalRepo) ListSignals(ctx context.Context, clientID string, publishedOnly bool) ([]models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Signal
	for _, s := range m.byID {
		if s.ClientID != clientID {
			continue
		}
		if publishedOnly && !s.Published {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

type ClientRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.Client
	CreateErr error
}

func (m *ClientRepo) CreateClient(ctx context.Context, c *models.Client) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *ClientRepo) GetClientByID(ctx context.Context, id string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *ClientRepo) GetClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

var _ repository.ConnectionRepo = (*ConnectionRepo)(nil)
var _ repository.DealRepo = (*DealRepo)(nil)
var _ repository.SignalRepo = (*SignalRepo)(nil)
var _ repository.ClientRepo = (*ClientRepo)(nil)
