package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialSchedulerAPI/config"
	"SocialSchedulerAPI/models"
)

// memoryStore is an in-memory PostStore with the same conditional-claim
// semantics as the Postgres repository.
type memoryStore struct {
	mu    sync.Mutex
	posts map[string]*models.ScheduledPost
}

func newMemoryStore(posts ...*models.ScheduledPost) *memoryStore {
	s := &memoryStore{posts: make(map[string]*models.ScheduledPost)}
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	return s
}

func (s *memoryStore) GetScheduledPost(id string) (*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *s.posts[id]
	return &p, nil
}

func (s *memoryStore) GetPendingPosts() ([]*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.ScheduledPost{}
	for _, p := range s.posts {
		if p.Status == models.StatusScheduled {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memoryStore) GetInterruptedPosts() ([]*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.ScheduledPost{}
	for _, p := range s.posts {
		if p.Status == models.StatusPublishing {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memoryStore) ClaimForPublishing(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.Status != models.StatusScheduled {
		return false, nil
	}
	p.Status = models.StatusPublishing
	return true, nil
}

func (s *memoryStore) ClaimDuePosts(due time.Time) ([]*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.ScheduledPost{}
	for _, p := range s.posts {
		if p.Status == models.StatusScheduled && !p.ScheduledAt.After(due) {
			p.Status = models.StatusPublishing
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memoryStore) MarkCancelled(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.Status != models.StatusScheduled {
		return false, nil
	}
	p.Status = models.StatusCancelled
	return true, nil
}

func (s *memoryStore) UpdateSchedule(id string, scheduledAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.Status != models.StatusScheduled {
		return false, nil
	}
	p.ScheduledAt = scheduledAt
	return true, nil
}

func (s *memoryStore) FinishPublishing(id string, status models.PostStatus, results []models.PublishResult, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.posts[id]
	p.Status = status
	p.Results = results
	p.PublishedAt = &publishedAt
	return nil
}

func (s *memoryStore) status(id string) models.PostStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[id].Status
}

// recordingPublisher succeeds on every target and signals each fan-out.
type recordingPublisher struct {
	mu        sync.Mutex
	published map[string]int
	fired     chan string
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		published: make(map[string]int),
		fired:     make(chan string, 16),
	}
}

func (p *recordingPublisher) PublishAll(ctx context.Context, post *models.ScheduledPost) []models.PublishResult {
	p.mu.Lock()
	p.published[post.ID]++
	p.mu.Unlock()
	p.fired <- post.ID

	results := make([]models.PublishResult, len(post.Targets))
	for i, target := range post.Targets {
		results[i] = models.PublishResult{Platform: target.Platform, Success: true, PostID: "ext-1"}
	}
	return results
}

func (p *recordingPublisher) count(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[id]
}

func (p *recordingPublisher) waitForFire(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case id := <-p.fired:
		return id
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a publish")
		return ""
	}
}

func testConfig() *config.Config {
	return &config.Config{
		SweepSpec:          "@every 1h",
		SweepLag:           time.Second,
		PublishTimeout:     time.Second,
		PublishConcurrency: 3,
	}
}

func testPost(id string, scheduledAt time.Time) *models.ScheduledPost {
	return &models.ScheduledPost{
		ID:      id,
		UserID:  "user-1",
		Content: "Launch!",
		Targets: []models.Target{
			{Platform: models.Facebook, ConnectionID: "conn-fb"},
			{Platform: models.LinkedIn, ConnectionID: "conn-li"},
		},
		Status:      models.StatusScheduled,
		ScheduledAt: scheduledAt,
	}
}

func TestScheduleFuturePostPublishesAfterDelay(t *testing.T) {
	post := testPost("p1", time.Now().Add(60*time.Millisecond))
	store := newMemoryStore(post)
	pub := newRecordingPublisher()
	s := NewScheduler(store, pub, testConfig())
	defer s.Stop()

	require.NoError(t, s.Schedule(post))

	// Not fired before its time.
	assert.Equal(t, 0, pub.count("p1"))

	pub.waitForFire(t, time.Second)
	assert.Eventually(t, func() bool {
		return store.status("p1") == models.StatusPublished
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, pub.count("p1"))
}

func TestScheduleDuePostPublishesImmediately(t *testing.T) {
	post := testPost("p1", time.Now().Add(-5*time.Second))
	store := newMemoryStore(post)
	pub := newRecordingPublisher()
	s := NewScheduler(store, pub, testConfig())
	defer s.Stop()

	require.NoError(t, s.Schedule(post))

	pub.waitForFire(t, time.Second)
	assert.Eventually(t, func() bool {
		return store.status("p1") == models.StatusPublished
	}, time.Second, 10*time.Millisecond)
}

func TestScheduleRejectsEmptyTargets(t *testing.T) {
	post := testPost("p1", time.Now().Add(time.Hour))
	post.Targets = nil
	s := NewScheduler(newMemoryStore(post), newRecordingPublisher(), testConfig())
	defer s.Stop()

	assert.ErrorIs(t, s.Schedule(post), ErrNoTargets)
}

func TestCancelIsIdempotent(t *testing.T) {
	post := testPost("p1", time.Now().Add(80*time.Millisecond))
	store := newMemoryStore(post)
	pub := newRecordingPublisher()
	s := NewScheduler(store, pub, testConfig())
	defer s.Stop()

	require.NoError(t, s.Schedule(post))
	require.NoError(t, s.Cancel("p1"))
	assert.Equal(t, models.StatusCancelled, store.status("p1"))

	// Second cancel is a reported failure, not a crash.
	assert.ErrorIs(t, s.Cancel("p1"), ErrNotCancellable)

	// The original fire time passes without a publish.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, pub.count("p1"))
	assert.Equal(t, models.StatusCancelled, store.status("p1"))
}

func TestCancelAfterPublishIsRejected(t *testing.T) {
	post := testPost("p1", time.Now().Add(-time.Second))
	store := newMemoryStore(post)
	pub := newRecordingPublisher()
	s := NewScheduler(store, pub, testConfig())
	defer s.Stop()

	require.NoError(t, s.Schedule(post))
	pub.waitForFire(t, time.Second)
	require.Eventually(t, func() bool {
		return store.status("p1") == models.StatusPublished
	}, time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, s.Cancel("p1"), ErrNotCancellable)
	assert.Equal(t, models.StatusPublished, store.status("p1"))
}

func TestRescheduleMovesTheFireTime(t *testing.T) {
	post := testPost("p1", time.Now().Add(time.Hour))
	store := newMemoryStore(post)
	pub := newRecordingPublisher()
	s := NewScheduler(store, pub, testConfig())
	defer s.Stop()

	require.NoError(t, s.Schedule(post))

	newTime := time.Now().Add(70 * time.Millisecond)
	require.NoError(t, s.Reschedule("p1", newTime))

	fetched, err := store.GetScheduledPost("p1")
	require.NoError(t, err)
	assert.True(t, fetched.ScheduledAt.Equal(newTime))

	// Fires once, at the new time, not the old one.
	pub.waitForFire(t, time.Second)
	assert.Eventually(t, func() bool {
		return store.status("p1") == models.StatusPublished
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, pub.count("p1"))
}

func TestRescheduleRejectsPastTime(t *testing.T) {
	post := testPost("p1", time.Now().Add(time.Hour))
	s := NewScheduler(newMemoryStore(post), newRecordingPublisher(), testConfig())
	defer s.Stop()

	require.NoError(t, s.Schedule(post))
	assert.ErrorIs(t, s.Reschedule("p1", time.Now().Add(-time.Minute)), ErrPastSchedule)
}

func TestRescheduleRejectsTerminalPost(t *testing.T) {
	post := testPost("p1", time.Now().Add(time.Hour))
	post.Status = models.StatusCancelled
	s := NewScheduler(newMemoryStore(post), newRecordingPublisher(), testConfig())
	defer s.Stop()

	assert.ErrorIs(t, s.Reschedule("p1", time.Now().Add(time.Hour)), ErrNotReschedulable)
}

func TestStartRecoversPendingAndInterrupted(t *testing.T) {
	future := testPost("future", time.Now().Add(time.Hour))
	overdue := testPost("overdue", time.Now().Add(-time.Minute))
	interrupted := testPost("interrupted", time.Now().Add(-time.Minute))
	interrupted.Status = models.StatusPublishing
	done := testPost("done", time.Now().Add(-time.Hour))
	done.Status = models.StatusPublished

	store := newMemoryStore(future, overdue, interrupted, done)
	pub := newRecordingPublisher()
	s := NewScheduler(store, pub, testConfig())

	require.NoError(t, s.Start())
	defer s.Stop()

	// The overdue post fires immediately; the future one stays armed.
	assert.Equal(t, "overdue", pub.waitForFire(t, time.Second))
	assert.Eventually(t, func() bool {
		return store.status("overdue") == models.StatusPublished
	}, time.Second, 10*time.Millisecond)

	// The interrupted post is settled as failed, never re-fired.
	assert.Equal(t, models.StatusFailed, store.status("interrupted"))
	assert.Equal(t, 0, pub.count("interrupted"))

	// Terminal posts are untouched.
	assert.Equal(t, models.StatusPublished, store.status("done"))
	assert.Equal(t, 0, pub.count("done"))
	assert.Equal(t, 0, pub.count("future"))
}

func TestStopDisarmsTimers(t *testing.T) {
	post := testPost("p1", time.Now().Add(50*time.Millisecond))
	store := newMemoryStore(post)
	pub := newRecordingPublisher()
	s := NewScheduler(store, pub, testConfig())

	require.NoError(t, s.Schedule(post))
	s.Stop()

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, pub.count("p1"))
	assert.Equal(t, models.StatusScheduled, store.status("p1"))

	assert.ErrorIs(t, s.Schedule(post), ErrSchedulerStopped)
}

func TestSweepClaimsOverduePosts(t *testing.T) {
	// A due post with no armed timer, as if its timer was lost.
	overdue := testPost("p1", time.Now().Add(-time.Minute))
	store := newMemoryStore(overdue)
	pub := newRecordingPublisher()

	cfg := testConfig()
	cfg.SweepLag = 10 * time.Millisecond
	s := NewScheduler(store, pub, cfg)
	defer s.Stop()

	s.sweep()

	pub.waitForFire(t, time.Second)
	assert.Eventually(t, func() bool {
		return store.status("p1") == models.StatusPublished
	}, time.Second, 10*time.Millisecond)

	// A second sweep finds nothing to claim.
	s.sweep()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, pub.count("p1"))
}
