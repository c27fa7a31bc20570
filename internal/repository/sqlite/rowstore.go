package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/garnizeh/introdesk/pkg/repository"
)

// tableSchema is the typed mapping from logical field names to columns for
// one table. Writes resolve fields through it; an unrecognized field is an
// error, never a silent drop.
type tableSchema struct {
	name      string
	idCol     string
	idAliases []string          // historical key-name variants still accepted on lookups
	columns   map[string]string // logical field -> column
}

var connectionsTable = tableSchema{
	name:      "connections",
	idCol:     "connection_id",
	idAliases: []string{"id"},
	columns: map[string]string{
		"connection_id":      "connection_id",
		"from_user_id":       "from_user_id",
		"to_user_id":         "to_user_id",
		"deal_id":            "deal_id",
		"status":             "status",
		"draft_message":      "draft_message",
		"draft_generated_at": "draft_generated_at",
		"client_approved_at": "client_approved_at",
		"requested_at":       "requested_at",
		"sent_at":            "sent_at",
		"row_version":        "row_version",
	},
}

var dealsTable = tableSchema{
	name:      "deals",
	idCol:     "deal_id",
	idAliases: []string{"id"},
	columns: map[string]string{
		"deal_id":          "deal_id",
		"client_id":        "client_id",
		"company":          "company",
		"stage":            "stage",
		"target_deal_size": "target_deal_size",
		"dm_name":          "dm_name",
		"dm_role":          "dm_role",
		"dm_email":         "dm_email",
		"dm_linkedin":      "dm_linkedin",
		"decision_makers":  "decision_makers",
		"created_at":       "created_at",
		"updated_at":       "updated_at",
		"row_version":      "row_version",
	},
}

var signalsTable = tableSchema{
	name:      "signals",
	idCol:     "signal_id",
	idAliases: []string{"id"},
	columns: map[string]string{
		"signal_id":            "signal_id",
		"client_id":            "client_id",
		"date":                 "date",
		"headline":             "headline",
		"relevance_score":      "relevance_score",
		"opportunity_score":    "opportunity_score",
		"actionability_score":  "actionability_score",
		"suggested_next_step":  "suggested_next_step",
		"estimated_deal_value": "estimated_deal_value",
		"published":            "published",
	},
}

var clientsTable = tableSchema{
	name:      "clients",
	idCol:     "client_id",
	idAliases: []string{"id"},
	columns: map[string]string{
		"client_id":     "client_id",
		"name":          "name",
		"email":         "email",
		"password_hash": "password_hash",
		"updated":       "updated",
	},
}

var allTables = []tableSchema{connectionsTable, dealsTable, signalsTable, clientsTable}

// resolveField maps a logical field name to its column, accepting the id
// aliases for the key field.
func (ts tableSchema) resolveField(field string) (string, error) {
	if col, ok := ts.columns[field]; ok {
		return col, nil
	}
	for _, alias := range ts.idAliases {
		if field == alias {
			return ts.idCol, nil
		}
	}
	return "", fmt.Errorf("%w: unknown field %q for table %s", repository.ErrValidation, field, ts.name)
}

// validateSchemas checks every declared column against the live table so a
// schema drift fails at startup, not at write time.
func (r *SQLiteRepo) validateSchemas(ctx context.Context) error {
	for _, ts := range allTables {
		rows, err := r.conn.QueryRows(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, ts.name))
		if err != nil {
			return classify(err)
		}

		live := map[string]bool{}
		for rows.Next() {
			var (
				cid     int
				name    string
				colType string
				notNull int
				dflt    sql.NullString
				pk      int
			)
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
				rows.Close()
				return classify(err)
			}
			live[name] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return classify(err)
		}
		rows.Close()

		if len(live) == 0 {
			return fmt.Errorf("table %s does not exist", ts.name)
		}

		missing := make([]string, 0)
		for _, col := range ts.columns {
			if !live[col] {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("table %s is missing columns %v", ts.name, missing)
		}
	}
	return nil
}

// findID resolves a row's canonical identifier with the tolerant comparison
// the dashboards rely on: trimmed string equality on the key column, with
// legacy key-name variants accepted in keyField.
func (r *SQLiteRepo) findID(ctx context.Context, ts tableSchema, keyField, value string) (string, error) {
	col, err := ts.resolveField(keyField)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE TRIM(%s) = TRIM(?)`, ts.idCol, ts.name, col)
	var id string
	if err := r.conn.QueryRow(ctx, query, value).Scan(&id); err != nil {
		return "", classify(err)
	}
	return id, nil
}

// updateFields applies a logical field map to one row in a single statement.
// When expectedVersion is non-zero the write is rejected with a
// *ConflictError if another writer got there first.
func (r *SQLiteRepo) updateFields(ctx context.Context, ts tableSchema, id string, fields map[string]any, expectedVersion int64) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields to update", repository.ErrValidation)
	}

	setMap := make(map[string]any, len(fields)+1)
	for field, v := range fields {
		col, err := ts.resolveField(field)
		if err != nil {
			return err
		}
		if col == ts.idCol {
			return fmt.Errorf("%w: field %q is immutable", repository.ErrValidation, field)
		}
		setMap[col] = v
	}

	b := sq.Update(ts.name).
		SetMap(setMap).
		Set("row_version", sq.Expr("row_version + 1")).
		Where(sq.Eq{ts.idCol: id})
	if expectedVersion > 0 {
		b = b.Where(sq.Eq{"row_version": expectedVersion})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n > 0 {
		return nil
	}

	// No row matched: missing row or stale version. Re-read to tell them
	// apart.
	var current int64
	err = r.conn.QueryRow(ctx, fmt.Sprintf(`SELECT row_version FROM %s WHERE %s = ?`, ts.name, ts.idCol), id).Scan(&current)
	if err != nil {
		return classify(err)
	}
	return &repository.ConflictError{Table: ts.name, ID: id, ExpectedVersion: expectedVersion, CurrentVersion: current}
}

// appendRow inserts a new row. The caller pre-generates a unique identifier;
// the primary key constraint is the collision check.
func (r *SQLiteRepo) appendRow(ctx context.Context, ts tableSchema, fields map[string]any) error {
	cols := make([]string, 0, len(fields))
	vals := make([]any, 0, len(fields))
	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)
	for _, field := range names {
		col, err := ts.resolveField(field)
		if err != nil {
			return err
		}
		cols = append(cols, col)
		vals = append(vals, fields[field])
	}

	query, args, err := sq.Insert(ts.name).Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return classify(err)
	}
	return nil
}

// deleteRow removes a row by identifier. Identifier addressing means a
// concurrent delete of another row can never shift this one's target.
func (r *SQLiteRepo) deleteRow(ctx context.Context, ts tableSchema, id string) error {
	res, err := r.conn.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, ts.name, ts.idCol), id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
