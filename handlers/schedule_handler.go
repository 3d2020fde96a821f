package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/services"
	"SocialSchedulerAPI/utils"
)

// SchedulePost validates the request, resolves each requested platform to
// the caller's stored connection, persists the post in scheduled status, and
// arms its timer. Publish outcomes arrive later, via polling GET /scheduled.
func (h *Handler) SchedulePost(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	var req models.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Content == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Content is required")
		return
	}
	if len(req.Platforms) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "At least one platform is required")
		return
	}
	if !req.ScheduledTime.After(time.Now()) {
		utils.RespondWithError(w, http.StatusBadRequest, "scheduled_time must be in the future")
		return
	}

	targets, err := h.resolveTargets(userID, req.Platforms)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	post := &models.ScheduledPost{
		ID:          uuid.New().String(),
		UserID:      userID,
		Content:     req.Content,
		Targets:     targets,
		Status:      models.StatusScheduled,
		ScheduledAt: req.ScheduledTime,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if len(req.MediaIDs) > 0 {
		mediaList, err := h.db.GetMediaByIDs(req.MediaIDs)
		if err != nil || len(mediaList) != len(req.MediaIDs) {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid media IDs")
			return
		}
		for _, media := range mediaList {
			if media.UserID != userID {
				utils.RespondWithError(w, http.StatusForbidden, "Access denied to media")
				return
			}
		}
		post.MediaIDs = req.MediaIDs
		post.Media = mediaList
	}

	if err := h.db.CreateScheduledPost(post); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error creating scheduled post")
		return
	}

	if err := h.scheduler.Schedule(post); err != nil {
		// The row is persisted; the reconciliation sweep will still pick it
		// up, but the caller should know the timer did not arm.
		utils.Errorf("failed to arm timer for post %s: %v", post.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error scheduling post")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, post)
}

// GetScheduledPosts returns all of the caller's posts, soonest first.
func (h *Handler) GetScheduledPosts(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	posts, err := h.db.GetUserScheduledPosts(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching scheduled posts")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, posts)
}

func (h *Handler) GetScheduledPost(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	postID := mux.Vars(r)["id"]

	post, err := h.db.GetScheduledPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if post.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, post)
}

// CancelScheduledPost disarms and cancels a pending post. Cancelling a post
// that already fired (or was already cancelled) reports a conflict instead
// of corrupting state, so a double-click is harmless.
func (h *Handler) CancelScheduledPost(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	postID := mux.Vars(r)["id"]

	post, err := h.db.GetScheduledPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if post.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	if err := h.scheduler.Cancel(postID); err != nil {
		if errors.Is(err, services.ErrNotCancellable) {
			utils.RespondWithError(w, http.StatusConflict, "Post is no longer cancellable")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Error cancelling post")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Post cancelled"})
}

// ReschedulePost moves a pending post to a new future time. The same
// validation as creation applies.
func (h *Handler) ReschedulePost(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	postID := mux.Vars(r)["id"]

	var req models.RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	post, err := h.db.GetScheduledPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if post.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	if err := h.scheduler.Reschedule(postID, req.ScheduledTime); err != nil {
		switch {
		case errors.Is(err, services.ErrPastSchedule):
			utils.RespondWithError(w, http.StatusBadRequest, "scheduled_time must be in the future")
		case errors.Is(err, services.ErrNotReschedulable):
			utils.RespondWithError(w, http.StatusConflict, "Post is no longer reschedulable")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Error rescheduling post")
		}
		return
	}

	updated, err := h.db.GetScheduledPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching rescheduled post")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

// resolveTargets maps each requested platform to the caller's stored
// connection. Any platform without a connection fails the whole request.
func (h *Handler) resolveTargets(userID string, platforms []models.Platform) ([]models.Target, error) {
	targets := make([]models.Target, 0, len(platforms))
	seen := map[models.Platform]bool{}

	for _, platform := range platforms {
		if !platform.Valid() {
			return nil, fmt.Errorf("unsupported platform %q", platform)
		}
		if seen[platform] {
			continue
		}
		seen[platform] = true

		conn, err := h.db.GetConnection(userID, platform)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("no connected %s account", platform)
			}
			return nil, fmt.Errorf("unable to resolve %s connection", platform)
		}
		targets = append(targets, models.Target{
			Platform:     platform,
			ConnectionID: conn.ID,
		})
	}
	return targets, nil
}
