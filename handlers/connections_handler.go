package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/utils"
)

// SaveConnection stores (or replaces) the caller's credentials for one
// platform. Tokens are encrypted at rest by the repository.
func (h *Handler) SaveConnection(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	var req models.ConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if !req.Platform.Valid() {
		utils.RespondWithError(w, http.StatusBadRequest, "Unsupported platform")
		return
	}
	if req.AccessToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "access_token is required")
		return
	}

	conn := &models.Connection{
		ID:             uuid.New().String(),
		UserID:         userID,
		Platform:       req.Platform,
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		TokenType:      "Bearer",
		ExpiresAt:      req.ExpiresAt,
		PlatformUserID: req.PlatformUserID,
		PlatformPageID: req.PlatformPageID,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := h.db.SaveConnection(conn); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error saving connection")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Connection saved"})
}

func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	conns, err := h.db.ListConnections(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching connections")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, conns)
}

func (h *Handler) DisconnectPlatform(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	platform := models.Platform(mux.Vars(r)["platform"])

	if !platform.Valid() {
		utils.RespondWithError(w, http.StatusBadRequest, "Unsupported platform")
		return
	}

	if err := h.db.DeleteConnection(userID, platform); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error disconnecting platform")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Platform disconnected"})
}
