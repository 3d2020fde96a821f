package models

import "time"

type Platform string

const (
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	LinkedIn  Platform = "linkedin"
)

func (p Platform) Valid() bool {
	switch p {
	case Facebook, Instagram, LinkedIn:
		return true
	}
	return false
}

type PostStatus string

const (
	StatusScheduled      PostStatus = "scheduled"
	StatusPublishing     PostStatus = "publishing"
	StatusPublished      PostStatus = "published"
	StatusPartialFailure PostStatus = "partial_failure"
	StatusFailed         PostStatus = "failed"
	StatusCancelled      PostStatus = "cancelled"
)

// Terminal reports whether no further automatic transition can occur.
func (s PostStatus) Terminal() bool {
	switch s {
	case StatusPublished, StatusPartialFailure, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Media struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Type      MediaType `json:"type"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Connection holds stored credentials for one social account or page the
// owning user has authorized.
type Connection struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Platform       Platform   `json:"platform"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenType      string     `json:"token_type"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	PlatformUserID string     `json:"platform_user_id,omitempty"`
	PlatformPageID string     `json:"platform_page_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Target is one (platform, connection) pair a post will be published to.
type Target struct {
	Platform     Platform `json:"platform"`
	ConnectionID string   `json:"connection_id"`
}

// PublishResult records the outcome of one target's publish attempt.
type PublishResult struct {
	Platform     Platform `json:"platform"`
	ConnectionID string   `json:"connection_id,omitempty"`
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	PostID       string   `json:"post_id,omitempty"`
}

type ScheduledPost struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Content     string          `json:"content"`
	MediaIDs    []string        `json:"media_ids,omitempty"`
	Media       []*Media        `json:"media,omitempty"`
	Targets     []Target        `json:"targets"`
	Status      PostStatus      `json:"status"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Results     []PublishResult `json:"results,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DeriveStatus maps a per-target outcome list to a terminal status: every
// target succeeded -> published, none succeeded -> failed, otherwise
// partial_failure. An empty list means nothing was attempted and counts as
// failed.
func DeriveStatus(results []PublishResult) PostStatus {
	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case succeeded > 0 && failed == 0:
		return StatusPublished
	case succeeded > 0:
		return StatusPartialFailure
	default:
		return StatusFailed
	}
}

type ScheduleRequest struct {
	Content       string     `json:"content"`
	MediaIDs      []string   `json:"media_ids,omitempty"`
	Platforms     []Platform `json:"platforms"`
	ScheduledTime time.Time  `json:"scheduled_time"`
}

type RescheduleRequest struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

type ConnectionRequest struct {
	Platform       Platform   `json:"platform"`
	AccessToken    string     `json:"access_token"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	PlatformUserID string     `json:"platform_user_id,omitempty"`
	PlatformPageID string     `json:"platform_page_id,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UploadResponse struct {
	Media *Media `json:"media"`
}
