package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
)

// DefaultRefreshCooldown is the fixed window between user-triggered manual
// refreshes, independent of the per-location cadence.
const DefaultRefreshCooldown = 10 * time.Minute

// RateLimitError is returned when a manual refresh is requested before the
// cooldown window has elapsed.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("manual refresh rate limited; retry after %s", e.RetryAfter.Round(time.Second))
}

// ErrPreferencesMissing is returned when a user without a preference row
// requests a manual refresh.
var ErrPreferencesMissing = errors.New("user preferences not found; set up preferences first")

// RefreshResult reports the outcome of a manual refresh.
type RefreshResult struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	LastSyncedAt  time.Time `json:"lastSyncedAt"`
	NextAllowedAt time.Time `json:"nextAllowedAt"`
}

// RefreshService throttles user-triggered immediate refreshes.
type RefreshService struct {
	prefs     store.PreferenceRepository
	schedules store.ScheduleRepository
	manager   *ScheduleManager
	cooldown  time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewRefreshService creates a RefreshService with the given cooldown window;
// a non-positive cooldown falls back to the default.
func NewRefreshService(
	repos *store.Container,
	manager *ScheduleManager,
	cooldown time.Duration,
	log *zap.Logger,
) *RefreshService {
	if cooldown <= 0 {
		cooldown = DefaultRefreshCooldown
	}
	return &RefreshService{
		prefs:     repos.Preferences,
		schedules: repos.Schedules,
		manager:   manager,
		cooldown:  cooldown,
		log:       log,
		now:       time.Now,
	}
}

// Refresh enforces the cooldown, then enqueues an immediate sweep of the
// user's tracked locations. The result carries the freshest lastSyncAt known
// across the user's schedules and when the next manual refresh is allowed.
func (s *RefreshService) Refresh(ctx context.Context, userID int64) (*RefreshResult, error) {
	pref, err := s.prefs.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPreferencesMissing
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if elapsed := now.Sub(pref.LastManualRefreshAt); elapsed < s.cooldown {
		return nil, &RateLimitError{RetryAfter: s.cooldown - elapsed}
	}

	if err := s.manager.TriggerImmediateSync(ctx, userID); err != nil {
		return nil, err
	}

	// Consume the cooldown only once a sweep is actually in flight.
	if err := s.prefs.SetLastManualRefresh(ctx, userID, now); err != nil {
		return nil, err
	}

	var lastSynced time.Time
	if latest, err := s.schedules.LatestSyncForUser(ctx, userID); err == nil {
		lastSynced = latest
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	s.log.Info("manual refresh accepted", zap.Int64("userID", userID))
	return &RefreshResult{
		Success:       true,
		Message:       "refresh started",
		LastSyncedAt:  lastSynced,
		NextAllowedAt: now.Add(s.cooldown),
	}, nil
}
