package publishers

import (
	"context"

	"SocialSchedulerAPI/models"
)

// PlatformPublisher performs the platform-specific publish call for one
// target. On success it returns the platform-assigned post id. The context
// carries the per-attempt timeout; implementations must pass it through to
// every request they issue.
type PlatformPublisher interface {
	Publish(ctx context.Context, post *models.ScheduledPost, conn *models.Connection) (string, error)
}
