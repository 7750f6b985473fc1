package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/foxzi/rbacdash/internal/auth"
	"github.com/foxzi/rbacdash/internal/collection"
	"github.com/foxzi/rbacdash/internal/directory"
	"github.com/foxzi/rbacdash/internal/metrics"
	"github.com/foxzi/rbacdash/internal/rbac"
)

var validate = validator.New()

// LoginRequest is the request body for POST /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the response for POST /login
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// DashboardResponse is the response for GET /dashboard
type DashboardResponse struct {
	rbac.Dashboard
	DanglingPermissions map[string][]string `json:"danglingPermissions"`
}

// CatalogueResponse lists the values forms may offer
type CatalogueResponse struct {
	Permissions     []string `json:"permissions"`
	UserRoles       []string `json:"userRoles"`
	UserStatuses    []string `json:"userStatuses"`
	PermissionTypes []string `json:"permissionTypes"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleLogin handles POST /api/v1/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		s.sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid login request", Fields: fields})
		return
	}

	if err := s.auth.Authenticate(r.Context(), req.Email, req.Password); err != nil {
		metrics.IncLogins("failed")
		s.logger.Warn("login failed", "email", req.Email, "remote_addr", r.RemoteAddr)
		s.sendError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	sess := s.sessions.Create(req.Email)
	metrics.IncLogins("ok")
	s.logger.Info("login", "email", sess.Email)

	s.sendJSON(w, http.StatusOK, LoginResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

// handleLogout handles POST /api/v1/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Revoke(bearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

// handleDashboard handles GET /api/v1/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, DashboardResponse{
		Dashboard:           s.svc.Dashboard(s.recentLimit),
		DanglingPermissions: s.svc.DanglingPermissions(),
	})
}

// handleCatalogue handles GET /api/v1/catalogue
func (s *Server) handleCatalogue(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, CatalogueResponse{
		Permissions:     s.svc.PermissionCatalogue(),
		UserRoles:       rbac.UserRoles,
		UserStatuses:    rbac.UserStatuses,
		PermissionTypes: rbac.PermissionTypes,
	})
}

// handleBootstrapStatus handles GET /api/v1/bootstrap
func (s *Server) handleBootstrapStatus(w http.ResponseWriter, r *http.Request) {
	if s.boot == nil {
		s.sendJSON(w, http.StatusOK, directory.Status{State: directory.StateIdle})
		return
	}
	s.sendJSON(w, http.StatusOK, s.boot.Status())
}

// ensureUsers runs the directory bootstrap before the users collection is
// read. A failed bootstrap is reported on every read until restart.
func (s *Server) ensureUsers(w http.ResponseWriter, r *http.Request) bool {
	if s.boot == nil {
		return true
	}

	// The fetch is shared by concurrent readers and must outlive any one of them
	if _, err := s.boot.Run(context.WithoutCancel(r.Context())); err != nil {
		s.sendError(w, http.StatusServiceUnavailable, "Failed to fetch users data")
		return false
	}
	return true
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// sendServiceError maps core errors to HTTP responses
func (s *Server) sendServiceError(w http.ResponseWriter, err error) {
	var verr *rbac.ValidationError
	switch {
	case errors.As(err, &verr):
		s.sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: verr.Fields})
	case errors.Is(err, collection.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, collection.ErrUnknownSortKey), errors.Is(err, collection.ErrUnknownFilter):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.sendError(w, http.StatusUnauthorized, "Invalid email or password")
	default:
		s.logger.Error("request failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal error")
	}
}
