package handlers

import (
	"time"

	"SocialSchedulerAPI/database"
	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/services"
)

// SchedulerService is the slice of the scheduler the HTTP layer drives.
type SchedulerService interface {
	Schedule(post *models.ScheduledPost) error
	Cancel(postID string) error
	Reschedule(postID string, newTime time.Time) error
}

type Handler struct {
	db          *database.Database
	scheduler   SchedulerService
	authService *services.AuthService
	storage     *services.StorageService
}

func NewHandler(db *database.Database, scheduler SchedulerService, authService *services.AuthService, storage *services.StorageService) *Handler {
	return &Handler{
		db:          db,
		scheduler:   scheduler,
		authService: authService,
		storage:     storage,
	}
}
