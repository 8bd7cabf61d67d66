// Package server exposes the settlement engine's HTTP surface: the
// payer-facing create endpoint, the processor notification endpoint, the
// internal retry endpoints and the payee eligibility check.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tutorhive/payments/internal/auth"
	"github.com/tutorhive/payments/internal/fees"
	"github.com/tutorhive/payments/internal/middleware"
	"github.com/tutorhive/payments/internal/processor"
	"github.com/tutorhive/payments/internal/service"
	"github.com/tutorhive/payments/internal/storage"
)

// maxNotificationBytes bounds inbound webhook payloads.
const maxNotificationBytes = 256 << 10

// Server routes HTTP requests to the settlement services.
type Server struct {
	settlements *service.SettlementService
	payouts     *service.PayoutService
	eligibility *service.EligibilityService
	reconciler  *service.Reconciler
	gateway     processor.Gateway
	jwtManager  *auth.JWTManager
	internal    *auth.InternalVerifier
	logger      *slog.Logger
}

// New creates a server.
func New(
	settlements *service.SettlementService,
	payouts *service.PayoutService,
	eligibility *service.EligibilityService,
	reconciler *service.Reconciler,
	gateway processor.Gateway,
	jwtManager *auth.JWTManager,
	internal *auth.InternalVerifier,
	logger *slog.Logger,
) *Server {
	return &Server{
		settlements: settlements,
		payouts:     payouts,
		eligibility: eligibility,
		reconciler:  reconciler,
		gateway:     gateway,
		jwtManager:  jwtManager,
		internal:    internal,
		logger:      logger,
	}
}

// Handler builds the route table with per-route auth middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(s.jwtManager, h)
	}
	internal := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireInternal(s.internal, h)
	}

	mux.Handle("POST /api/v1/settlements", authed(s.handleCreateSettlement))
	mux.Handle("GET /api/v1/settlements/{id}", authed(s.handleGetSettlement))
	mux.Handle("GET /api/v1/payees/me/eligibility", authed(s.handleEligibility))
	mux.Handle("GET /api/v1/payees/me/settlements", authed(s.handleListSettlements))
	mux.HandleFunc("POST /webhooks/processor", s.handleNotification)
	mux.Handle("POST /internal/v1/payouts/retry", internal(s.handleRetryForPayee))
	mux.Handle("POST /internal/v1/payouts/retry-record", internal(s.handleRetrySingle))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return middleware.Logging(mux)
}

func (s *Server) handleCreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EngagementID string `json:"engagement_id"`
		Amount       int64  `json:"amount"`
		PayeeID      string `json:"payee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.EngagementID == "" || req.PayeeID == "" {
		respondJSONError(w, http.StatusBadRequest, "engagement_id and payee_id are required")
		return
	}

	callerID := middleware.GetUserID(r.Context())
	result, err := s.settlements.CreateSettlement(r.Context(), req.EngagementID, req.Amount, req.PayeeID, callerID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"record_id":     result.RecordID,
		"client_secret": result.ClientHandle,
	})
}

func (s *Server) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	record, err := s.settlements.GetSettlement(r.Context(), r.PathValue("id"), callerID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"record_id":          record.ID,
		"engagement_id":      record.EngagementID,
		"amount":             record.Amount,
		"platform_fee":       record.PlatformFee,
		"payee_payout":       record.PayeePayout,
		"status":             record.Status,
		"transferred":        record.Transferred(),
		"created_at":         record.CreatedAt,
		"last_transition_at": record.LastTransitionAt,
	})
}

// handleNotification is the processor webhook. It responds 400 only on
// signature failure or a malformed payload; everything else, including
// events referencing unknown records, is acknowledged with 200 so the
// processor does not exhaust redelivery. A 500 means "not durably
// processed, redeliver".
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	payload, err := readAll(w, r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	notification, err := s.gateway.VerifyNotification(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, processor.ErrInvalidSignature) || errors.Is(err, processor.ErrMalformedEvent) {
			s.logger.Warn("rejected processor notification", "error", err)
			respondJSONError(w, http.StatusBadRequest, "invalid notification")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	if err := s.reconciler.HandleNotification(r.Context(), notification); err != nil {
		s.logger.Error("notification processing failed",
			"event_id", notification.EventID, "error", err)
		respondJSONError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	payeeID := middleware.GetUserID(r.Context())
	records, err := s.settlements.ListForPayee(r.Context(), payeeID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"record_id":     record.ID,
			"engagement_id": record.EngagementID,
			"amount":        record.Amount,
			"payee_payout":  record.PayeePayout,
			"status":        record.Status,
			"transferred":   record.Transferred(),
			"created_at":    record.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"settlements": items})
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	payeeID := middleware.GetUserID(r.Context())
	flags, err := s.eligibility.CheckAndMaybeTriggerRetry(r.Context(), payeeID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"can_receive_charges": flags.CanReceiveCharges,
		"can_receive_payouts": flags.CanReceivePayouts,
		"eligible":            flags.Eligible(),
	})
}

func (s *Server) handleRetryForPayee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PayeeID string `json:"payee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PayeeID == "" {
		respondJSONError(w, http.StatusBadRequest, "payee_id is required")
		return
	}

	outcome, err := s.payouts.RetryForPayee(r.Context(), req.PayeeID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleRetrySingle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordID string `json:"record_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecordID == "" {
		respondJSONError(w, http.StatusBadRequest, "record_id is required")
		return
	}

	outcome, err := s.payouts.RetrySingle(r.Context(), req.RecordID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// respondServiceError maps service errors onto the HTTP taxonomy.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		respondJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrEngagementNotFound),
		errors.Is(err, storage.ErrRecordNotFound):
		respondJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPayeeNotOnboarded),
		errors.Is(err, service.ErrPayeeNotEligible),
		errors.Is(err, service.ErrPayeeMismatch),
		errors.Is(err, service.ErrAlreadyTransferred),
		errors.Is(err, service.ErrNotYetCompleted):
		respondJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrDuplicateActiveRecord):
		respondJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPartialFailure):
		// The ambiguous outcome is reported explicitly; the caller must not
		// blindly retry without reconciling the orphaned authorization.
		respondJSONError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, fees.ErrInvalidAmount):
		respondJSONError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("internal error", "error", err)
		respondJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func readAll(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBytes)
	return io.ReadAll(r.Body)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondJSONError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
