package sqlite

import (
	"context"
	"fmt"

	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/pkg/repository"
)

const signalCols = `signal_id, client_id, date, headline, relevance_score, opportunity_score, actionability_score, suggested_next_step, estimated_deal_value, published`

func scanSignal(row interface{ Scan(...any) error }) (*models.Signal, error) {
	var (
		s    models.Signal
		date int64
		pub  int
	)
	if err := row.Scan(&s.ID, &s.ClientID, &date, &s.Headline, &s.RelevanceScore, &s.OpportunityScore,
		&s.ActionabilityScore, &s.SuggestedNextStep, &s.EstimatedDealValue, &pub); err != nil {
		return nil, err
	}
	s.Date = fromMillis(date)
	s.Published = pub != 0
	return &s, nil
}

// CreateSignal is the ingest hook for the external search service; the API
// surface only reads signals.
func (r *SQLiteRepo) CreateSignal(ctx context.Context, s *models.Signal) error {
	if s == nil {
		return fmt.Errorf("%w: signal is nil", repository.ErrValidation)
	}

	published := 0
	if s.Published {
		published = 1
	}
	return r.appendRow(ctx, signalsTable, map[string]any{
		"signal_id":            s.ID,
		"client_id":            s.ClientID,
		"date":                 toMillis(s.Date),
		"headline":             s.Headline,
		"relevance_score":      s.RelevanceScore,
		"opportunity_score":    s.OpportunityScore,
		"actionability_score":  s.ActionabilityScore,
		"suggested_next_step":  s.SuggestedNextStep,
		"estimated_deal_value": s.EstimatedDealValue,
		"published":            published,
	})
}

func (r *SQLiteRepo) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	canonical, err := r.findID(ctx, signalsTable, "signal_id", id)
	if err != nil {
		return nil, err
	}

	row := r.conn.QueryRow(ctx, `SELECT `+signalCols+` FROM signals WHERE signal_id = ?`, canonical)
	s, err := scanSignal(row)
	if err != nil {
		return nil, classify(err)
	}
	return s, nil
}

func (r *SQLiteRepo) ListSignals(ctx context.Context, clientID string, publishedOnly bool) ([]models.Signal, error) {
	query := `SELECT ` + signalCols + ` FROM signals WHERE client_id = ?`
	args := []any{clientID}
	if publishedOnly {
		query += ` AND published = 1`
	}
	query += ` ORDER BY date DESC`

	rows, err := r.conn.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
