package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"SocialSchedulerAPI/models"
)

const scheduledPostColumns = `id, user_id, content, media_ids, targets, status,
		scheduled_at, published_at, results, created_at, updated_at`

func (d *Database) CreateScheduledPost(post *models.ScheduledPost) error {
	targets, err := json.Marshal(post.Targets)
	if err != nil {
		return err
	}

	query := `INSERT INTO scheduled_posts (id, user_id, content, media_ids, targets, status, scheduled_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = d.DB.Exec(query, post.ID, post.UserID, post.Content, pq.Array(post.MediaIDs),
		targets, post.Status, post.ScheduledAt, post.CreatedAt, post.UpdatedAt)
	return err
}

func (d *Database) GetScheduledPost(id string) (*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE id = $1`
	return d.scanScheduledPost(d.DB.QueryRow(query, id))
}

// GetUserScheduledPosts returns every post owned by the user, soonest first.
func (d *Database) GetUserScheduledPosts(userID string) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts
			  WHERE user_id = $1 ORDER BY scheduled_at ASC`

	rows, err := d.DB.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return d.collectScheduledPosts(rows)
}

// GetPendingPosts returns every post still in scheduled status, regardless
// of how overdue it is. Used to rebuild the timer table at startup.
func (d *Database) GetPendingPosts() ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts
			  WHERE status = $1 ORDER BY scheduled_at ASC`

	rows, err := d.DB.Query(query, models.StatusScheduled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return d.collectScheduledPosts(rows)
}

// GetInterruptedPosts returns posts left in publishing status by a crash
// mid-attempt.
func (d *Database) GetInterruptedPosts() ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE status = $1`

	rows, err := d.DB.Query(query, models.StatusPublishing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return d.collectScheduledPosts(rows)
}

// ClaimForPublishing transitions one post from scheduled to publishing.
// Returns false when the post was already claimed, cancelled, or published —
// the caller must not attempt any target in that case.
func (d *Database) ClaimForPublishing(id string) (bool, error) {
	query := `UPDATE scheduled_posts SET status = $1, updated_at = $2
			  WHERE id = $3 AND status = $4`

	res, err := d.DB.Exec(query, models.StatusPublishing, time.Now(), id, models.StatusScheduled)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimDuePosts atomically claims every scheduled post due at or before the
// given instant and returns the claimed rows. Only one caller can win a
// given row, which is what keeps the sweep and the per-post timers (and any
// second instance) from double-publishing.
func (d *Database) ClaimDuePosts(due time.Time) ([]*models.ScheduledPost, error) {
	query := `UPDATE scheduled_posts SET status = $1, updated_at = $2
			  WHERE status = $3 AND scheduled_at <= $4
			  RETURNING ` + scheduledPostColumns

	rows, err := d.DB.Query(query, models.StatusPublishing, time.Now(), models.StatusScheduled, due)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return d.collectScheduledPosts(rows)
}

// MarkCancelled transitions one post from scheduled to cancelled. Returns
// false when the post is not in a cancellable state.
func (d *Database) MarkCancelled(id string) (bool, error) {
	query := `UPDATE scheduled_posts SET status = $1, updated_at = $2
			  WHERE id = $3 AND status = $4`

	res, err := d.DB.Exec(query, models.StatusCancelled, time.Now(), id, models.StatusScheduled)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateSchedule moves a still-scheduled post to a new time. Returns false
// when the post is terminal or already being published.
func (d *Database) UpdateSchedule(id string, scheduledAt time.Time) (bool, error) {
	query := `UPDATE scheduled_posts SET scheduled_at = $1, status = $2, updated_at = $3
			  WHERE id = $4 AND status = $2`

	res, err := d.DB.Exec(query, scheduledAt, models.StatusScheduled, time.Now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FinishPublishing records the outcome of a publish attempt. This write is
// the single commit point for the post's terminal status.
func (d *Database) FinishPublishing(id string, status models.PostStatus, results []models.PublishResult, publishedAt time.Time) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return err
	}

	query := `UPDATE scheduled_posts SET status = $1, results = $2, published_at = $3, updated_at = $4
			  WHERE id = $5`

	_, err = d.DB.Exec(query, status, encoded, publishedAt, time.Now(), id)
	return err
}

// SavePublishResult appends one per-target audit row.
func (d *Database) SavePublishResult(postID string, result models.PublishResult) error {
	query := `INSERT INTO publish_results (post_id, platform, connection_id, success, message, external_post_id)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := d.DB.Exec(query, postID, result.Platform, result.ConnectionID,
		result.Success, result.Message, result.PostID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanScheduledPost(row rowScanner) (*models.ScheduledPost, error) {
	post := &models.ScheduledPost{}
	var mediaIDs []string
	var targets []byte
	var results []byte

	err := row.Scan(&post.ID, &post.UserID, &post.Content, pq.Array(&mediaIDs),
		&targets, &post.Status, &post.ScheduledAt, &post.PublishedAt, &results,
		&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(targets, &post.Targets); err != nil {
		return nil, err
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &post.Results); err != nil {
			return nil, err
		}
	}

	if len(mediaIDs) > 0 {
		post.MediaIDs = mediaIDs
		post.Media, _ = d.GetMediaByIDs(mediaIDs)
	}

	return post, nil
}

func (d *Database) collectScheduledPosts(rows *sql.Rows) ([]*models.ScheduledPost, error) {
	posts := []*models.ScheduledPost{}
	for rows.Next() {
		post, err := d.scanScheduledPost(rows)
		if err != nil {
			continue
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}
