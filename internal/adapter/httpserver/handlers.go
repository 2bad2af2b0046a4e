package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/snapsolve/internal/adapter/observability"
	"github.com/fairyhunter13/snapsolve/internal/config"
	"github.com/fairyhunter13/snapsolve/internal/domain"
	"github.com/fairyhunter13/snapsolve/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Solver     usecase.SolveService
	Ledger     usecase.LedgerService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, solver usecase.SolveService, ledger usecase.LedgerService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Solver: solver, Ledger: ledger, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// acceptsJSON rejects requests that explicitly refuse JSON responses.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{
		Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a},
	}})
	return false
}

func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

func accessPayload(s domain.AccessSummary) map[string]any {
	m := map[string]any{
		"free_used":      s.FreeUsed,
		"free_limit":     s.FreeLimit,
		"free_remaining": s.FreeRemaining(),
		"credits":        s.CreditsLeft,
	}
	if s.PassExpiry != nil {
		m["pass_expires_at"] = s.PassExpiry.UTC().Format(time.RFC3339)
	}
	return m
}

// SolveHandler runs the answer pipeline for a submitted image.
func (s *Server) SolveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			UserID   string `json:"user_id" validate:"required,max=128"`
			Username string `json:"username" validate:"max=128"`
			ImageURL string `json:"image_url" validate:"required,url"`
			ImageUID string `json:"image_uid" validate:"required,max=256"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}

		outcome, err := s.Solver.Solve(r.Context(), domain.SolveRequest{
			UserID:   req.UserID,
			Username: req.Username,
			ImageURL: req.ImageURL,
			ImageUID: req.ImageUID,
		})
		if err != nil {
			recordSolveReject(err)
			writeError(w, r, err, nil)
			return
		}
		observability.RecordSolve(outcome.Cached, string(outcome.Source), outcome.Answer.Confidence)

		resp := map[string]any{
			"answer":  outcome.Answer,
			"cached":  outcome.Cached,
			"charged": outcome.Charged,
			"access":  accessPayload(outcome.Summary),
		}
		if outcome.Charged {
			resp["source"] = string(outcome.Source)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func recordSolveReject(err error) {
	switch {
	case errors.Is(err, domain.ErrCooldown):
		observability.RecordAdmissionReject("cooldown")
	case errors.Is(err, domain.ErrBusy):
		observability.RecordAdmissionReject("busy")
	case errors.Is(err, domain.ErrNoAccess):
		observability.RecordAdmissionReject("no_access")
	}
}

// GrantHandler applies an entitlement grant from the payment collaborator.
// Either a catalog plan or an explicit kind+amount is accepted.
func (s *Server) GrantHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			UserID           string `json:"user_id" validate:"required,max=128"`
			ExternalChargeID string `json:"external_charge_id" validate:"required,max=256"`
			Plan             string `json:"plan" validate:"omitempty,max=64"`
			Kind             string `json:"kind" validate:"omitempty,oneof=time credits"`
			Amount           int64  `json:"amount" validate:"omitempty,min=1"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}

		ctx := r.Context()
		var err error
		switch {
		case req.Plan != "":
			err = s.Ledger.GrantPlan(ctx, req.UserID, req.Plan, req.ExternalChargeID)
		case req.Kind != "":
			err = s.Ledger.Grant(ctx, req.UserID, domain.GrantKind(req.Kind), req.Amount, req.ExternalChargeID, "")
		default:
			err = fmt.Errorf("%w: plan or kind required", domain.ErrInvalidArgument)
		}
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if req.Plan != "" {
			observability.RecordGrant(req.Plan)
		}

		summary, err := s.Ledger.Summarize(ctx, req.UserID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "access": accessPayload(summary)})
	}
}

// AccessHandler returns the entitlement summary for a user.
func (s *Server) AccessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			writeError(w, r, fmt.Errorf("%w: user id missing", domain.ErrInvalidArgument), nil)
			return
		}
		summary, err := s.Ledger.Summarize(r.Context(), userID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "access": accessPayload(summary)})
	}
}

// StatsHandler returns operator-facing ledger aggregates.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.Ledger.Stats(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"users":               stats.Users,
			"active_passes":       stats.ActivePasses,
			"credits_outstanding": stats.CreditsOutstanding,
		})
	}
}

// ReadyzHandler reports dependency health.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
