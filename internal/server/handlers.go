// internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"nutricoach/internal/auth"
	"nutricoach/internal/models"
)

// maxBodyBytes bounds request bodies; a base64 photo is the largest input.
const maxBodyBytes = 15 << 20

type ctxKey string

const userKey ctxKey = "user"

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

type analyzeMealRequest struct {
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
}

type planRequest struct {
	Metrics models.UserMetrics `json:"metrics"`
	Goal    string             `json:"goal"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.sessions.Register(r.Context(), req.Name, req.Email, req.Password)
	s.respondWithSession(w, user, err)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	s.respondWithSession(w, user, err)
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	user, err := s.sessions.GoogleLogin(r.Context())
	s.respondWithSession(w, user, err)
}

func (s *Server) respondWithSession(w http.ResponseWriter, user *models.User, err error) {
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		s.logger.Errorw("Failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not start a session. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context()); err != nil {
		s.logger.Errorw("Logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not log out. Please try again.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*models.User{"user": userFrom(r.Context())})
}

func (s *Server) handleAnalyzeMeal(w http.ResponseWriter, r *http.Request) {
	var req analyzeMealRequest
	if !s.decode(w, r, &req) {
		return
	}

	// accept a full data URL as well as a bare payload
	if strings.HasPrefix(req.ImageBase64, "data:") {
		if meta, payload, ok := strings.Cut(strings.TrimPrefix(req.ImageBase64, "data:"), ","); ok {
			req.MimeType = strings.TrimSuffix(meta, ";base64")
			req.ImageBase64 = payload
		}
	}
	if req.ImageBase64 == "" || !strings.HasPrefix(req.MimeType, "image/") {
		writeError(w, http.StatusBadRequest, "Please upload an image file.")
		return
	}

	info, err := s.gateway.AnalyzeMealImage(r.Context(), req.ImageBase64, req.MimeType)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to analyze the meal. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := models.ValidateRequest(req.Metrics, req.Goal); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Please correct the highlighted fields.", Fields: verr.Fields})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := s.gateway.GeneratePersonalizedPlan(r.Context(), req.Metrics, strings.TrimSpace(req.Goal))
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to generate your plan. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.gateway.GetHistory(r.Context())
	if err != nil {
		s.logger.Errorw("Failed to load history", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load history.")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.ClearHistory(r.Context()); err != nil {
		s.logger.Errorw("Failed to clear history", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear history.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireSession admits requests whose bearer token names the active user.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "Please sign in.")
			return
		}
		email, err := s.tokens.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Your session has expired. Please sign in again.")
			return
		}
		user := s.sessions.Current()
		if user == nil || user.Email != email {
			writeError(w, http.StatusUnauthorized, "Please sign in.")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Please fill in all fields.")
	case errors.Is(err, auth.ErrAccountExists):
		writeError(w, http.StatusConflict, "An account with this email already exists.")
	case errors.Is(err, auth.ErrAccountNotFound):
		writeError(w, http.StatusUnauthorized, "No account found with this email.")
	case errors.Is(err, auth.ErrInvalidPassword):
		writeError(w, http.StatusUnauthorized, "Incorrect password.")
	default:
		s.logger.Errorw("Authentication failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed. Please try again.")
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
