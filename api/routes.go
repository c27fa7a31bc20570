package api

import (
	"github.com/gorilla/mux"

	"github.com/garnizeh/introdesk/internal/config"
	"github.com/garnizeh/introdesk/internal/draft"
	"github.com/garnizeh/introdesk/internal/events"
	"github.com/garnizeh/introdesk/internal/repository/sqlite"
	"github.com/garnizeh/introdesk/internal/workflow"
	"github.com/garnizeh/introdesk/pkg/mailer"
)

// SetupRoutes wires the HTTP surface. The client and admin routers share the
// workflow service so there is exactly one copy of the transition guards.
func SetupRoutes(cfg *config.Config, version, buildTime string, repo *sqlite.SQLiteRepo, hub *events.Hub, gen draft.TextGenerator, mail mailer.Mailer) (*mux.Router, error) {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	coordinator, err := draft.NewCoordinator(gen, repo, repo, repo, hub, cfg.Drafter.Timeout, logger)
	if err != nil {
		return nil, err
	}
	svc := workflow.NewService(repo, repo, repo, hub, mail, logger)

	// Create handlers
	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(repo, cfg.JWTSecret, cfg.TokenDuration)
	connectionsHandler := NewConnectionsHandler(svc, coordinator)
	adminHandler := NewAdminHandler(svc, coordinator, repo, repo)
	dealsHandler := NewDealsHandler(repo, repo)
	eventsHandler := NewEventsHandler(hub, cfg.Events.SubscriberBuffer)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Auth endpoints
	authV1 := apiV1.PathPrefix("/auth").Subrouter()
	authV1.HandleFunc("/signout", authHandler.Signout).Methods("POST")

	// Client-facing workflow endpoints (also reachable by admins)
	apiV1.HandleFunc("/connections/request", connectionsHandler.RequestConnection).Methods("POST")
	apiV1.HandleFunc("/connections", connectionsHandler.ListConnections).Methods("GET")
	apiV1.HandleFunc("/connections/{id}/generate-draft", connectionsHandler.GenerateDraft).Methods("POST")
	apiV1.HandleFunc("/connections/{id}/draft", connectionsHandler.EditDraft).Methods("PATCH")
	apiV1.HandleFunc("/connections/{id}/approve-draft", connectionsHandler.ApproveDraft).Methods("POST")
	apiV1.HandleFunc("/connections/{id}/send-email", connectionsHandler.SendEmail).Methods("POST")

	apiV1.HandleFunc("/deals", dealsHandler.ListDeals).Methods("GET")
	apiV1.HandleFunc("/signals", dealsHandler.ListSignals).Methods("GET")

	// Live update stream
	apiV1.HandleFunc("/events", eventsHandler.Stream).Methods("GET")

	// Admin endpoints
	adminV1 := apiV1.PathPrefix("/admin").Subrouter()
	adminV1.Use(RequireAdmin)
	adminV1.HandleFunc("/connections", adminHandler.ListConnections).Methods("GET")
	adminV1.HandleFunc("/connections/{id}/approve", adminHandler.ApproveConnection).Methods("PATCH")
	adminV1.HandleFunc("/connections/{id}/generate-draft", adminHandler.GenerateDraft).Methods("POST")
	adminV1.HandleFunc("/connections/{id}/final-approve", adminHandler.FinalApprove).Methods("POST")
	adminV1.HandleFunc("/deals", adminHandler.CreateDeal).Methods("POST")
	adminV1.HandleFunc("/deals/{id}/stage", adminHandler.UpdateDealStage).Methods("PATCH")
	adminV1.HandleFunc("/deals/{id}", adminHandler.DeleteDeal).Methods("DELETE")

	return r, nil
}
