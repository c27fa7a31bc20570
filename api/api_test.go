package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/garnizeh/introdesk/internal/draft"
	"github.com/garnizeh/introdesk/internal/events"
	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/internal/workflow"
	"github.com/garnizeh/introdesk/pkg/mailer"
	"github.com/garnizeh/introdesk/pkg/repository/mock"
)

const testSecret = "test-secret"

type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

type stubMailer struct {
	sent []mailer.Message
	err  error
}

func (s *stubMailer) Send(ctx context.Context, m mailer.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

// testEnv wires the full protected router against in-memory mocks.
type testEnv struct {
	router *mux.Router
	mocks  *mock.Mocks
	hub    *events.Hub
	mail   *stubMailer
	gen    *stubGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	m := mock.NewMocks()
	hub := events.NewHub(64, 0)
	t.Cleanup(hub.Close)
	mail := &stubMailer{}
	gen := &stubGenerator{response: `{"subject": "Intro", "message": "Hi there"}`}

	coordinator, err := draft.NewCoordinator(gen, m.ConnRepo, m.DealRepo, m.ClientRepo, hub, time.Second, nil)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	svc := workflow.NewService(m.ConnRepo, m.DealRepo, m.ClientRepo, hub, mail, nil)

	connectionsHandler := NewConnectionsHandler(svc, coordinator)
	adminHandler := NewAdminHandler(svc, coordinator, m.DealRepo, m.SignalRepo)
	dealsHandler := NewDealsHandler(m.DealRepo, m.SignalRepo)
	eventsHandler := NewEventsHandler(hub, 16)

	r := mux.NewRouter()
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(testSecret))
	apiV1.HandleFunc("/connections/request", connectionsHandler.RequestConnection).Methods("POST")
	apiV1.HandleFunc("/connections", connectionsHandler.ListConnections).Methods("GET")
	apiV1.HandleFunc("/connections/{id}/generate-draft", connectionsHandler.GenerateDraft).Methods("POST")
	apiV1.HandleFunc("/connections/{id}/draft", connectionsHandler.EditDraft).Methods("PATCH")
	apiV1.HandleFunc("/connections/{id}/approve-draft", connectionsHandler.ApproveDraft).Methods("POST")
	apiV1.HandleFunc("/connections/{id}/send-email", connectionsHandler.SendEmail).Methods("POST")
	apiV1.HandleFunc("/deals", dealsHandler.ListDeals).Methods("GET")
	apiV1.HandleFunc("/signals", dealsHandler.ListSignals).Methods("GET")
	apiV1.HandleFunc("/events", eventsHandler.Stream).Methods("GET")

	adminV1 := apiV1.PathPrefix("/admin").Subrouter()
	adminV1.Use(RequireAdmin)
	adminV1.HandleFunc("/connections", adminHandler.ListConnections).Methods("GET")
	adminV1.HandleFunc("/connections/{id}/approve", adminHandler.ApproveConnection).Methods("PATCH")
	adminV1.HandleFunc("/connections/{id}/generate-draft", adminHandler.GenerateDraft).Methods("POST")
	adminV1.HandleFunc("/connections/{id}/final-approve", adminHandler.FinalApprove).Methods("POST")
	adminV1.HandleFunc("/deals", adminHandler.CreateDeal).Methods("POST")
	adminV1.HandleFunc("/deals/{id}/stage", adminHandler.UpdateDealStage).Methods("PATCH")
	adminV1.HandleFunc("/deals/{id}", adminHandler.DeleteDeal).Methods("DELETE")

	return &testEnv{router: r, mocks: m, hub: hub, mail: mail, gen: gen}
}

func signToken(t *testing.T, role, clientID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role":      role,
		"client_id": clientID,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func (e *testEnv) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedDeal(t *testing.T, id, clientID string) {
	t.Helper()
	err := e.mocks.DealRepo.CreateDeal(context.Background(), &models.Deal{
		ID:       id,
		ClientID: clientID,
		Company:  "Acme Corp",
		Stage:    "identified",
		PrimaryDM: models.DecisionMaker{
			Name: "Dana Voss", Role: "CTO", Email: "dana@acme.example",
		},
		RowVersion: 1,
	})
	if err != nil {
		t.Fatalf("seed deal: %v", err)
	}
}
