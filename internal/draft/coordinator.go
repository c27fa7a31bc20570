package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/introdesk/internal/events"
	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/pkg/drafter"
	"github.com/garnizeh/introdesk/pkg/repository"
)

// TextGenerator is the external drafting collaborator: an LLM-backed message
// writer. pkg/drafter provides the production implementation.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// defaultTemplate renders the generation prompt from the connection's deal
// and decision-maker context.
const defaultTemplate = `You are writing a short, warm introduction email on behalf of {{.FromName}}.
{{if .Company}}The introduction concerns a potential deal with {{.Company}}.{{end}}
{{if .DMName}}The recipient is {{.DMName}}{{if .DMRole}}, {{.DMRole}}{{end}}.{{end}}
{{if .NextStep}}Suggested next step: {{.NextStep}}{{end}}
Respond with a single JSON object of the form {"subject": "...", "message": "..."}.
The message must be plain text, at most three short paragraphs, and must not invent facts.`

// responseSchema validates the collaborator's structured output before any of
// it is persisted.
const responseSchema = `{
  "type": "object",
  "required": ["message"],
  "properties": {
    "subject": {"type": "string"},
    "message": {"type": "string", "minLength": 1}
  }
}`

// draftResponse is the structured reply expected from the collaborator.
type draftResponse struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Coordinator orchestrates draft generation: gather context, call the
// collaborator, validate, persist verbatim, notify. Successive generations
// overwrite each other; there is no draft version history.
type Coordinator struct {
	gen     TextGenerator
	conns   repository.ConnectionRepo
	deals   repository.DealRepo
	clients repository.ClientRepo
	hub     *events.Hub
	timeout time.Duration
	schema  *jsonschema.Schema
	logger  *slog.Logger
}

func NewCoordinator(gen TextGenerator, conns repository.ConnectionRepo, deals repository.DealRepo, clients repository.ClientRepo, hub *events.Hub, timeout time.Duration, logger *slog.Logger) (*Coordinator, error) {
	if gen == nil {
		return nil, fmt.Errorf("text generator is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(responseSchema), rs); err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}

	return &Coordinator{
		gen:     gen,
		conns:   conns,
		deals:   deals,
		clients: clients,
		hub:     hub,
		timeout: timeout,
		schema:  rs,
		logger:  logger,
	}, nil
}

// Generate produces a fresh draft for the connection and stores it verbatim.
// Guard: the admin gate must have been passed and the draft must not be
// locked. The row is re-read immediately before the write to keep the
// stale-state window small.
func (c *Coordinator) Generate(ctx context.Context, connectionID string) (*models.Connection, error) {
	conn, err := c.conns.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.AdminApproved() {
		return nil, fmt.Errorf("%w: connection %s is not admin approved", repository.ErrPrecondition, connectionID)
	}
	if conn.DraftLocked() {
		return nil, fmt.Errorf("%w: draft for connection %s is locked", repository.ErrPrecondition, connectionID)
	}

	prompt, err := c.buildPrompt(ctx, conn)
	if err != nil {
		return nil, err
	}

	ctxGen, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.gen.Generate(ctxGen, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctxGen.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: draft generation exceeded %s", repository.ErrTimeout, c.timeout)
		}
		return nil, fmt.Errorf("draft generation: %w", err)
	}

	resp, err := c.parseResponse(ctx, raw)
	if err != nil {
		c.logger.Error("drafter returned malformed output", slog.String("connection_id", connectionID), slog.Any("err", err))
		return nil, err
	}

	nowUTC := time.Now().UTC()
	fields := map[string]any{
		"draft_message":      resp.Message,
		"draft_generated_at": nowUTC.UnixMilli(),
	}
	// overwrite unconditionally: generation has no version history and the
	// last write wins
	if err := c.conns.UpdateConnectionFields(ctx, conn.ID, fields, 0); err != nil {
		return nil, err
	}

	if c.hub != nil {
		c.hub.Publish(events.DraftGenerated, conn.ID)
	}

	conn.DraftMessage = resp.Message
	conn.DraftGeneratedAt = &nowUTC
	return conn, nil
}

func (c *Coordinator) buildPrompt(ctx context.Context, conn *models.Connection) (string, error) {
	data := map[string]any{
		"FromName": conn.FromUserID,
		"Company":  "",
		"DMName":   "",
		"DMRole":   "",
		"NextStep": "",
	}

	if c.clients != nil {
		if cl, err := c.clients.GetClientByID(ctx, conn.FromUserID); err == nil {
			data["FromName"] = cl.Name
		}
	}

	if conn.DealID != nil && c.deals != nil {
		deal, err := c.deals.GetDeal(ctx, *conn.DealID)
		if err != nil {
			return "", err
		}
		dm := deal.PrimaryContact()
		data["Company"] = deal.Company
		data["DMName"] = dm.Name
		data["DMRole"] = dm.Role
	}

	return drafter.RenderTemplate(defaultTemplate, data)
}

func (c *Coordinator) parseResponse(ctx context.Context, raw string) (*draftResponse, error) {
	j := extractJSON(raw)
	if j == "" {
		return nil, fmt.Errorf("%w: no JSON object found in drafter response", repository.ErrValidation)
	}

	if errs, err := c.schema.ValidateBytes(ctx, []byte(j)); err != nil {
		return nil, fmt.Errorf("%w: validate drafter response: %v", repository.ErrValidation, err)
	} else if len(errs) > 0 {
		return nil, fmt.Errorf("%w: drafter response rejected by schema: %v", repository.ErrValidation, errs[0].Error())
	}

	var resp draftResponse
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		return nil, fmt.Errorf("%w: decode drafter response: %v", repository.ErrValidation, err)
	}
	if strings.TrimSpace(resp.Message) == "" {
		return nil, fmt.Errorf("%w: drafter returned an empty message", repository.ErrValidation)
	}
	return &resp, nil
}

// extractJSON returns the substring from the first '{' to the last '}' in the input.
func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}
