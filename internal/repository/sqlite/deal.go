package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/pkg/repository"
)

const dealCols = `deal_id, client_id, company, stage, target_deal_size, dm_name, dm_role, dm_email, dm_linkedin, decision_makers, created_at, updated_at, row_version`

func scanDeal(row interface{ Scan(...any) error }) (*models.Deal, error) {
	var (
		d        models.Deal
		dmList   string
		created  int64
		updated  int64
		primary  models.DecisionMaker
		linkedIn string
	)
	if err := row.Scan(&d.ID, &d.ClientID, &d.Company, &d.Stage, &d.TargetDealSize,
		&primary.Name, &primary.Role, &primary.Email, &linkedIn, &dmList, &created, &updated, &d.RowVersion); err != nil {
		return nil, err
	}
	primary.LinkedInURL = linkedIn
	d.PrimaryDM = primary
	d.Created = fromMillis(created)
	d.Updated = fromMillis(updated)
	if dmList != "" {
		if err := json.Unmarshal([]byte(dmList), &d.DecisionMakers); err != nil {
			return nil, fmt.Errorf("decode decision maker list for deal %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func (r *SQLiteRepo) CreateDeal(ctx context.Context, d *models.Deal) error {
	if d == nil {
		return fmt.Errorf("%w: deal is nil", repository.ErrValidation)
	}

	dmList, err := json.Marshal(d.DecisionMakers)
	if err != nil {
		return fmt.Errorf("encode decision maker list: %w", err)
	}

	return r.appendRow(ctx, dealsTable, map[string]any{
		"deal_id":          d.ID,
		"client_id":        d.ClientID,
		"company":          d.Company,
		"stage":            d.Stage,
		"target_deal_size": d.TargetDealSize,
		"dm_name":          d.PrimaryDM.Name,
		"dm_role":          d.PrimaryDM.Role,
		"dm_email":         d.PrimaryDM.Email,
		"dm_linkedin":      d.PrimaryDM.LinkedInURL,
		"decision_makers":  string(dmList),
		"created_at":       toMillis(d.Created),
		"updated_at":       toMillis(d.Updated),
		"row_version":      int64(1),
	})
}

func (r *SQLiteRepo) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	canonical, err := r.findID(ctx, dealsTable, "deal_id", id)
	if err != nil {
		return nil, err
	}

	row := r.conn.QueryRow(ctx, `SELECT `+dealCols+` FROM deals WHERE deal_id = ?`, canonical)
	d, err := scanDeal(row)
	if err != nil {
		return nil, classify(err)
	}
	return d, nil
}

func (r *SQLiteRepo) ListDeals(ctx context.Context, clientID string) ([]models.Deal, error) {
	query := `SELECT ` + dealCols + ` FROM deals`
	var args []any
	if clientID != "" {
		query += ` WHERE client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.conn.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (r *SQLiteRepo) UpdateDealFields(ctx context.Context, id string, fields map[string]any, expectedVersion int64) error {
	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["updated_at"] = now()
	return r.updateFields(ctx, dealsTable, id, merged, expectedVersion)
}

func (r *SQLiteRepo) UpdateDealStage(ctx context.Context, id, stage string) error {
	if !models.ValidDealStage(stage) {
		return fmt.Errorf("%w: unknown deal stage %q", repository.ErrValidation, stage)
	}
	return r.UpdateDealFields(ctx, id, map[string]any{"stage": stage}, 0)
}

func (r *SQLiteRepo) DeleteDeal(ctx context.Context, id string) error {
	return r.deleteRow(ctx, dealsTable, id)
}
