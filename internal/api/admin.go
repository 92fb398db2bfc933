package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/careerbot/internal/lead"
	"github.com/ashureev/careerbot/internal/session"
	"github.com/ashureev/careerbot/internal/setup"
)

// maxSetupBodySize bounds setup payloads (1MB).
const maxSetupBodySize = 1 << 20

// AdminHandler serves setup, lead and bulk-clear endpoints.
type AdminHandler struct {
	sessions *session.Manager
	leads    *lead.Book
	setups   *setup.Registry
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(sessions *session.Manager, leads *lead.Book, setups *setup.Registry) *AdminHandler {
	return &AdminHandler{sessions: sessions, leads: leads, setups: setups}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/setup", h.SaveSetup)
	r.Get("/api/setup/{userID}", h.GetSetup)
	r.Get("/api/leads", h.Leads)
	r.Post("/api/clear-leads", h.ClearLeads)
	r.Post("/api/clear-conversations", h.ClearConversations)
}

// SaveSetup stores a channel setup and clears that channel's conversations
// so the next turn picks up the new system prompt.
func (h *AdminHandler) SaveSetup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSetupBodySize)
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := setup.Decode(payload)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.setups.Save(r.Context(), s); err != nil {
		if errors.Is(err, setup.ErrInvalidSetup) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Failed to save setup", "channel_id", s.ChannelID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save setup")
		return
	}

	cleared, err := h.sessions.ClearChannel(r.Context(), s.ChannelID)
	if err != nil {
		slog.Error("Failed to clear channel conversations", "channel_id", s.ChannelID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to reset conversations")
		return
	}
	slog.Info("Setup applied", "channel_id", s.ChannelID, "user_id", s.UserID, "cleared_conversations", cleared)

	JSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"message":               "Setup saved",
		"cleared_conversations": cleared,
	})
}

// GetSetup returns the setup last saved by a user.
func (h *AdminHandler) GetSetup(w http.ResponseWriter, r *http.Request) {
	s, ok := h.setups.ForUser(chi.URLParam(r, "userID"))
	if !ok {
		Error(w, http.StatusNotFound, "User data not found")
		return
	}
	JSON(w, http.StatusOK, s)
}

// Leads returns every lead.
func (h *AdminHandler) Leads(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.leads.All())
}

// ClearLeads removes every lead.
func (h *AdminHandler) ClearLeads(w http.ResponseWriter, r *http.Request) {
	if err := h.leads.Clear(r.Context()); err != nil {
		slog.Error("Failed to clear leads", "error", err)
		JSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	Status(w, "All leads cleared")
}

// ClearConversations removes every conversation.
func (h *AdminHandler) ClearConversations(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ClearAll(r.Context()); err != nil {
		slog.Error("Failed to clear conversations", "error", err)
		JSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	Status(w, "All conversations cleared")
}
