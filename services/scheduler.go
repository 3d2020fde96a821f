package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"SocialSchedulerAPI/config"
	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/utils"
)

var (
	ErrPastSchedule     = errors.New("scheduled time must be in the future")
	ErrNoTargets        = errors.New("post has no publish targets")
	ErrNotCancellable   = errors.New("post is not in a cancellable state")
	ErrNotReschedulable = errors.New("post is not in a reschedulable state")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

// PostStore is the durable system of record for scheduled posts. The
// conditional claim operations return false (not an error) when the row was
// not in the required state, which is how exactly-once publishing is
// enforced across timers, the sweep, and multiple instances.
type PostStore interface {
	GetScheduledPost(id string) (*models.ScheduledPost, error)
	GetPendingPosts() ([]*models.ScheduledPost, error)
	GetInterruptedPosts() ([]*models.ScheduledPost, error)
	ClaimForPublishing(id string) (bool, error)
	ClaimDuePosts(due time.Time) ([]*models.ScheduledPost, error)
	MarkCancelled(id string) (bool, error)
	UpdateSchedule(id string, scheduledAt time.Time) (bool, error)
	FinishPublishing(id string, status models.PostStatus, results []models.PublishResult, publishedAt time.Time) error
}

// Publisher fans one claimed post out to all of its targets.
type Publisher interface {
	PublishAll(ctx context.Context, post *models.ScheduledPost) []models.PublishResult
}

// Scheduler owns the mapping from pending post ids to armed timers. The
// in-memory timer table is only a cache of "what has an armed timer"; the
// database row is the source of truth, and every publish path must win the
// scheduled -> publishing claim before touching any platform. A cron sweep
// re-claims due posts whose timer was lost, which doubles as the recovery
// path when several instances share the database.
type Scheduler struct {
	store     PostStore
	publisher Publisher
	cron      *cron.Cron
	sweepSpec string
	sweepLag  time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func NewScheduler(store PostStore, publisher Publisher, cfg *config.Config) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		cron:      cron.New(),
		sweepSpec: cfg.SweepSpec,
		sweepLag:  cfg.SweepLag,
		timers:    make(map[string]*time.Timer),
	}
}

// Start recovers interrupted posts, re-arms everything still pending, and
// begins the reconciliation sweep.
func (s *Scheduler) Start() error {
	s.recoverInterrupted()

	if err := s.LoadPending(); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.sweepSpec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	utils.Infof("scheduler: started (sweep %s)", s.sweepSpec)
	return nil
}

// Stop disarms every timer, halts the sweep, and waits for in-flight
// publishes to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	utils.Infof("scheduler: stopped")
}

// Schedule arms a timer for the post, or fires it immediately when its time
// has already passed. The post must already be persisted in scheduled
// status; a post asked to run "now" is published, never silently skipped.
func (s *Scheduler) Schedule(post *models.ScheduledPost) error {
	if len(post.Targets) == 0 {
		return ErrNoTargets
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}

	delay := time.Until(post.ScheduledAt)
	if delay <= 0 {
		s.wg.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.wg.Done()
			s.publishByID(post.ID)
		}()
		return nil
	}

	// Re-arming an id replaces its timer; two live timers for one post
	// would race each other on the claim for no reason.
	if existing, ok := s.timers[post.ID]; ok {
		existing.Stop()
	}
	id := post.ID
	s.timers[id] = time.AfterFunc(delay, func() { s.onTimer(id) })
	s.mu.Unlock()

	utils.Debugf("scheduler: armed post %s for %s", post.ID, post.ScheduledAt.Format(time.RFC3339))
	return nil
}

// Cancel disarms the post's timer and marks the record cancelled. Cancelling
// a post that is terminal or already being published returns
// ErrNotCancellable; repeating a cancel is a reported failure, not a crash.
func (s *Scheduler) Cancel(postID string) error {
	s.disarm(postID)

	ok, err := s.store.MarkCancelled(postID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCancellable
	}
	utils.Infof("scheduler: cancelled post %s", postID)
	return nil
}

// Reschedule moves a still-scheduled post to a new future time. After it
// returns successfully, exactly one timer is armed and the persisted
// scheduled_at matches it.
func (s *Scheduler) Reschedule(postID string, newTime time.Time) error {
	if !newTime.After(time.Now()) {
		return ErrPastSchedule
	}

	s.disarm(postID)

	ok, err := s.store.UpdateSchedule(postID, newTime)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotReschedulable
	}

	post, err := s.store.GetScheduledPost(postID)
	if err != nil {
		return err
	}
	return s.Schedule(post)
}

// LoadPending re-arms every post persisted as scheduled. Overdue posts take
// the immediate-fire path inside Schedule.
func (s *Scheduler) LoadPending() error {
	pending, err := s.store.GetPendingPosts()
	if err != nil {
		return err
	}

	for _, post := range pending {
		if err := s.Schedule(post); err != nil {
			utils.Errorf("scheduler: failed to re-arm post %s: %v", post.ID, err)
		}
	}
	utils.Infof("scheduler: loaded %d pending posts", len(pending))
	return nil
}

// recoverInterrupted settles posts a previous process left in publishing
// status. Some of their targets may already have gone out, so re-firing
// could double-publish; they are closed out as failed instead.
func (s *Scheduler) recoverInterrupted() {
	interrupted, err := s.store.GetInterruptedPosts()
	if err != nil {
		utils.Errorf("scheduler: failed to load interrupted posts: %v", err)
		return
	}

	for _, post := range interrupted {
		results := make([]models.PublishResult, len(post.Targets))
		for i, target := range post.Targets {
			results[i] = models.PublishResult{
				Platform:     target.Platform,
				ConnectionID: target.ConnectionID,
				Message:      "Publish was interrupted by a restart before the outcome was recorded",
			}
		}
		if err := s.store.FinishPublishing(post.ID, models.StatusFailed, results, time.Now()); err != nil {
			utils.Errorf("scheduler: failed to settle interrupted post %s: %v", post.ID, err)
			continue
		}
		utils.Warnf("scheduler: post %s was interrupted mid-publish, marked failed", post.ID)
	}
}

func (s *Scheduler) disarm(postID string) {
	s.mu.Lock()
	if timer, ok := s.timers[postID]; ok {
		timer.Stop()
		delete(s.timers, postID)
	}
	s.mu.Unlock()
}

// onTimer runs in the timer's own goroutine when its delay elapses.
func (s *Scheduler) onTimer(postID string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, postID)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.publishByID(postID)
}

// publishByID is the timer/immediate entry into the publish path: win the
// claim, then fan out.
func (s *Scheduler) publishByID(postID string) {
	claimed, err := s.store.ClaimForPublishing(postID)
	if err != nil {
		utils.Errorf("scheduler: claim failed for post %s: %v", postID, err)
		return
	}
	if !claimed {
		utils.Debugf("scheduler: post %s no longer scheduled, skipping", postID)
		return
	}

	post, err := s.store.GetScheduledPost(postID)
	if err != nil {
		// Claimed but unreadable. The row stays in publishing and is
		// settled by recoverInterrupted on the next start.
		utils.Errorf("scheduler: failed to load claimed post %s: %v", postID, err)
		return
	}

	s.publishClaimed(post)
}

// publishClaimed fans out a post whose row is already in publishing status
// and commits the terminal outcome. A failure of the commit write is a
// durability fault, not a publish failure, and is reported as such.
func (s *Scheduler) publishClaimed(post *models.ScheduledPost) {
	results := s.publisher.PublishAll(context.Background(), post)
	status := models.DeriveStatus(results)

	if err := s.store.FinishPublishing(post.ID, status, results, time.Now()); err != nil {
		utils.Errorf("scheduler: DURABILITY FAULT: publish outcome for post %s (%s) was not persisted: %v",
			post.ID, status, err)
		return
	}
	utils.Infof("scheduler: post %s finished with status %s", post.ID, status)
}

// sweep claims posts that are due but were never fired, e.g. because the
// process restarted without them or a timer was lost. The lag keeps it from
// racing timers that are about to fire on their own.
func (s *Scheduler) sweep() {
	due, err := s.store.ClaimDuePosts(time.Now().Add(-s.sweepLag))
	if err != nil {
		utils.Errorf("scheduler: sweep failed to claim due posts: %v", err)
		return
	}

	for _, post := range due {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if timer, ok := s.timers[post.ID]; ok {
			timer.Stop()
			delete(s.timers, post.ID)
		}
		s.wg.Add(1)
		s.mu.Unlock()

		utils.Warnf("scheduler: sweep picked up overdue post %s", post.ID)
		go func(p *models.ScheduledPost) {
			defer s.wg.Done()
			s.publishClaimed(p)
		}(post)
	}
}
