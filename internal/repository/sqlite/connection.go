package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/pkg/repository"
)

const connectionCols = `connection_id, from_user_id, to_user_id, deal_id, status, draft_message, draft_generated_at, client_approved_at, requested_at, sent_at, row_version`

func scanConnection(row interface{ Scan(...any) error }) (*models.Connection, error) {
	var (
		c          models.Connection
		toUser     sql.NullString
		dealID     sql.NullString
		draftAt    sql.NullInt64
		approvedAt sql.NullInt64
		requested  int64
		sentAt     sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.FromUserID, &toUser, &dealID, &c.Status, &c.DraftMessage, &draftAt, &approvedAt, &requested, &sentAt, &c.RowVersion); err != nil {
		return nil, err
	}
	if toUser.Valid {
		c.ToUserID = &toUser.String
	}
	if dealID.Valid {
		c.DealID = &dealID.String
	}
	c.DraftGeneratedAt = timePtr(draftAt)
	c.ClientApprovedAt = timePtr(approvedAt)
	c.RequestedAt = fromMillis(requested)
	c.SentAt = timePtr(sentAt)
	return &c, nil
}

func (r *SQLiteRepo) CreateConnection(ctx context.Context, c *models.Connection) error {
	if c == nil {
		return fmt.Errorf("%w: connection is nil", repository.ErrValidation)
	}

	var toUser, dealID any
	if c.ToUserID != nil {
		toUser = *c.ToUserID
	}
	if c.DealID != nil {
		dealID = *c.DealID
	}

	return r.appendRow(ctx, connectionsTable, map[string]any{
		"connection_id":      c.ID,
		"from_user_id":       c.FromUserID,
		"to_user_id":         toUser,
		"deal_id":            dealID,
		"status":             string(c.Status),
		"draft_message":      c.DraftMessage,
		"draft_generated_at": millisOrNil(c.DraftGeneratedAt),
		"client_approved_at": millisOrNil(c.ClientApprovedAt),
		"requested_at":       toMillis(c.RequestedAt),
		"sent_at":            millisOrNil(c.SentAt),
		"row_version":        int64(1),
	})
}

func (r *SQLiteRepo) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	canonical, err := r.findID(ctx, connectionsTable, "connection_id", id)
	if err != nil {
		return nil, err
	}

	row := r.conn.QueryRow(ctx, `SELECT `+connectionCols+` FROM connections WHERE connection_id = ?`, canonical)
	c, err := scanConnection(row)
	if err != nil {
		return nil, classify(err)
	}
	return c, nil
}

func (r *SQLiteRepo) ListConnections(ctx context.Context, f repository.ConnectionFilter) ([]models.Connection, error) {
	query := `SELECT ` + connectionCols + ` FROM connections`
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(f.Status))
	}
	if f.ClientID != "" {
		where = append(where, `from_user_id = ?`)
		args = append(args, f.ClientID)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY requested_at DESC`

	rows, err := r.conn.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (r *SQLiteRepo) UpdateConnectionFields(ctx context.Context, id string, fields map[string]any, expectedVersion int64) error {
	return r.updateFields(ctx, connectionsTable, id, fields, expectedVersion)
}

// TransitionConnection issues the state change as one conditional statement:
// the status guard and the write happen in the same round trip, which is what
// makes concurrent duplicate transitions collapse into no-ops instead of
// double applies.
func (r *SQLiteRepo) TransitionConnection(ctx context.Context, id string, from []models.Status, to models.Status, fields map[string]any) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("%w: empty transition guard", repository.ErrValidation)
	}

	sets := []string{`status = ?`, `row_version = row_version + 1`}
	args := []any{string(to)}
	for field, v := range fields {
		col, err := connectionsTable.resolveField(field)
		if err != nil {
			return false, err
		}
		sets = append(sets, col+` = ?`)
		args = append(args, v)
	}

	marks := make([]string, len(from))
	for i, s := range from {
		marks[i] = "?"
		args = append(args, string(s))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE connections SET %s WHERE status IN (%s) AND connection_id = ?`,
		strings.Join(sets, ", "), strings.Join(marks, ", "))

	res, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

func (r *SQLiteRepo) DeleteConnection(ctx context.Context, id string) error {
	return r.deleteRow(ctx, connectionsTable, id)
}
