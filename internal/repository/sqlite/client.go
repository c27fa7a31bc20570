package sqlite

import (
	"context"
	"fmt"

	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/pkg/repository"
)

func (r *SQLiteRepo) CreateClient(ctx context.Context, c *models.Client) error {
	if c == nil {
		return fmt.Errorf("%w: client is nil", repository.ErrValidation)
	}

	return r.appendRow(ctx, clientsTable, map[string]any{
		"client_id":     c.ID,
		"name":          c.Name,
		"email":         c.Email,
		"password_hash": c.PasswordHash,
		"updated":       now(),
	})
}

func (r *SQLiteRepo) GetClientByID(ctx context.Context, id string) (*models.Client, error) {
	row := r.conn.QueryRow(ctx, `SELECT client_id, name, email, password_hash, updated FROM clients WHERE client_id = ?`, id)
	var c models.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Updated); err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

func (r *SQLiteRepo) GetClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	row := r.conn.QueryRow(ctx, `SELECT client_id, name, email, password_hash, updated FROM clients WHERE email = ?`, email)
	var c models.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Updated); err != nil {
		return nil, classify(err)
	}
	return &c, nil
}
