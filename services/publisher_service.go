package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SocialSchedulerAPI/config"
	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/publishers"
	"SocialSchedulerAPI/utils"
)

// PublisherStore is what the fan-out needs from the database: credential
// lookup per target and the per-target audit trail.
type PublisherStore interface {
	GetConnectionByID(id string) (*models.Connection, error)
	SavePublishResult(postID string, result models.PublishResult) error
}

// PublisherService fans a post out to all of its targets. Targets publish
// independently: one target failing never aborts the others. Concurrency is
// bounded so a post with many targets cannot storm a single platform's rate
// limits, and each attempt carries its own timeout.
type PublisherService struct {
	db          PublisherStore
	publishers  map[models.Platform]publishers.PlatformPublisher
	timeout     time.Duration
	concurrency int
}

func NewPublisherService(db PublisherStore, cfg *config.Config) *PublisherService {
	return &PublisherService{
		db: db,
		publishers: map[models.Platform]publishers.PlatformPublisher{
			models.Facebook:  publishers.NewFacebookPublisher(nil),
			models.Instagram: publishers.NewInstagramPublisher(nil),
			models.LinkedIn:  publishers.NewLinkedInPublisher(nil),
		},
		timeout:     cfg.PublishTimeout,
		concurrency: cfg.PublishConcurrency,
	}
}

// PublishAll attempts every target and returns one result per target, in
// target order. It never returns an error: failures are data, recorded in
// the result list.
func (ps *PublisherService) PublishAll(ctx context.Context, post *models.ScheduledPost) []models.PublishResult {
	results := make([]models.PublishResult, len(post.Targets))
	sem := make(chan struct{}, ps.concurrency)
	var wg sync.WaitGroup

	for i, target := range post.Targets {
		wg.Add(1)
		go func(idx int, tgt models.Target) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = ps.publishTarget(ctx, post, tgt)

			if err := ps.db.SavePublishResult(post.ID, results[idx]); err != nil {
				utils.Warnf("publisher: failed to record %s result for post %s: %v",
					tgt.Platform, post.ID, err)
			}
		}(i, target)
	}

	wg.Wait()
	return results
}

func (ps *PublisherService) publishTarget(ctx context.Context, post *models.ScheduledPost, target models.Target) models.PublishResult {
	result := models.PublishResult{
		Platform:     target.Platform,
		ConnectionID: target.ConnectionID,
	}

	publisher, ok := ps.publishers[target.Platform]
	if !ok {
		result.Message = fmt.Sprintf("Platform %s not supported", target.Platform)
		return result
	}

	conn, err := ps.db.GetConnectionByID(target.ConnectionID)
	if err != nil {
		result.Message = fmt.Sprintf("No usable connection: %v", err)
		return result
	}

	attemptCtx, cancel := context.WithTimeout(ctx, ps.timeout)
	defer cancel()

	platformPostID, err := publisher.Publish(attemptCtx, post, conn)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			result.Message = fmt.Sprintf("Publish to %s timed out after %s", target.Platform, ps.timeout)
		} else {
			result.Message = err.Error()
		}
		utils.Warnf("publisher: post %s target %s failed: %s", post.ID, target.Platform, result.Message)
		return result
	}

	result.Success = true
	result.Message = fmt.Sprintf("Published successfully on %s", target.Platform)
	result.PostID = platformPostID
	return result
}
