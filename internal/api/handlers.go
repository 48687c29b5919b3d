// Package api exposes the REST endpoints for profile creation and user
// reports, mounted on the same listener as the WebSocket upgrade.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/campusmeet/meet-app/internal/moderation"
	"github.com/campusmeet/meet-app/internal/user"
)

const requestTimeout = 5 * time.Second

// Users is the slice of the user store the handlers need.
type Users interface {
	Create(ctx context.Context, u *user.User) error
}

// Reporter applies the report/ban policy.
type Reporter interface {
	Report(ctx context.Context, reporterEmail, reportedEmail string) (*user.User, error)
}

// Handlers bundles the REST endpoints and their dependencies.
type Handlers struct {
	users    Users
	reporter Reporter
}

// NewHandlers creates the REST handler set.
func NewHandlers(users Users, reporter Reporter) *Handlers {
	return &Handlers{users: users, reporter: reporter}
}

// Mount registers the REST routes on the given mux. Callers that need
// per-route middleware can register AddUser and Report directly instead.
func (h *Handlers) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/add-user", h.AddUser)
	mux.HandleFunc("/report", h.Report)
}

type addUserRequest struct {
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	ProfilePic string   `json:"profilePic"`
	Keywords   []string `json:"keywords"`
}

// AddUser creates a user profile. Responds 201 with the created record
// or 500 when persistence (including the institutional email check) fails.
func (h *Handlers) AddUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
		return
	}

	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u := &user.User{
		Email:      req.Email,
		Name:       req.Name,
		ProfilePic: req.ProfilePic,
		Keywords:   req.Keywords,
	}
	if err := h.users.Create(ctx, u); err != nil {
		log.Printf("api: add-user %s: %v", req.Email, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Failed to add user",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User added successfully",
		"user":    u,
	})
}

type reportRequest struct {
	ReporterEmail string `json:"reporterEmail"`
	ReportedEmail string `json:"reportedEmail"`
}

// Report records a report and applies the escalation policy. Responds
// 200 with the updated reported-user record, 404 when either user is unknown,
// 400 when the reported user is already banned (no state change), and 500 on
// persistence failure.
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	reported, err := h.reporter.Report(ctx, req.ReporterEmail, req.ReportedEmail)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":      "Report recorded",
			"reportedUser": reported,
		})
	case errors.Is(err, moderation.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message": "User(s) not found",
		})
	case errors.Is(err, moderation.ErrAlreadyBanned):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"message": "This user is currently banned.",
		})
	default:
		log.Printf("api: report %s -> %s: %v", req.ReporterEmail, req.ReportedEmail, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Failed to record report",
		})
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
