package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eugenenyathi/weatherapp-sub000/internal/jobs"
	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
	"github.com/eugenenyathi/weatherapp-sub000/internal/weather"
)

var dbSeq int64

func testRepos(t *testing.T) *store.Container {
	t.Helper()

	dsn := fmt.Sprintf("file:sync_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := store.Connect(context.Background(), dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return store.NewRepositories(db)
}

func seedLocation(t *testing.T, repos *store.Container, name string, lat float64) *model.Location {
	t.Helper()

	loc := &model.Location{Name: name, Country: "FR", Lat: lat, Lon: 2.35}
	require.NoError(t, repos.Locations.Create(context.Background(), loc))
	return loc
}

func seedTrack(t *testing.T, repos *store.Container, userID int64, loc *model.Location) {
	t.Helper()

	require.NoError(t, repos.Tracks.Create(context.Background(), &model.TrackLocation{
		UserID: userID, LocationID: loc.ID,
	}))
}

// fakeScheduler is an in-memory jobs.Scheduler. Enqueued work is only
// recorded; settle runs it together with its continuations.
type fakeScheduler struct {
	mu            sync.Mutex
	seq           int
	history       map[string][]jobs.HistoryEntry
	recurring     map[string]string
	works         map[string]jobs.Work
	continuations map[string][]jobs.Work
	enqueues      int
	enqueueErr    error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		history:       make(map[string][]jobs.HistoryEntry),
		recurring:     make(map[string]string),
		works:         make(map[string]jobs.Work),
		continuations: make(map[string][]jobs.Work),
	}
}

func (f *fakeScheduler) Enqueue(work jobs.Work) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.enqueueErr != nil {
		return "", f.enqueueErr
	}
	f.seq++
	f.enqueues++
	handle := fmt.Sprintf("job-%d", f.seq)
	f.history[handle] = []jobs.HistoryEntry{{State: jobs.StateEnqueued, At: time.Now().UTC()}}
	f.works[handle] = work
	return handle, nil
}

func (f *fakeScheduler) EnqueueContinuation(parent string, work jobs.Work) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.history[parent]; !ok {
		return "", jobs.ErrJobNotFound
	}
	f.seq++
	handle := fmt.Sprintf("job-%d", f.seq)
	f.history[handle] = []jobs.HistoryEntry{{State: jobs.StateEnqueued, At: time.Now().UTC()}}
	f.continuations[parent] = append(f.continuations[parent], work)
	return handle, nil
}

// settle runs the enqueued work for a handle, marks it succeeded, and fires
// its continuations synchronously.
func (f *fakeScheduler) settle(handle string) {
	f.mu.Lock()
	work := f.works[handle]
	conts := f.continuations[handle]
	delete(f.continuations, handle)
	f.mu.Unlock()

	if work != nil {
		work(context.Background())
	}
	f.setState(handle, jobs.StateSucceeded)
	for _, cont := range conts {
		cont(context.Background())
	}
}

func (f *fakeScheduler) RegisterRecurring(id, expr string, work jobs.Work) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recurring[id] = expr
	f.works[id] = work
	return nil
}

func (f *fakeScheduler) RemoveRecurring(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recurring, id)
	delete(f.works, id)
	return nil
}

func (f *fakeScheduler) History(handle string) ([]jobs.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.history[handle]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	out := make([]jobs.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (f *fakeScheduler) setState(handle string, state jobs.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[handle] = append(f.history[handle], jobs.HistoryEntry{State: state, At: time.Now().UTC()})
}

func (f *fakeScheduler) cadenceOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recurring[id]
}

func (f *fakeScheduler) recurringCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recurring)
}

func (f *fakeScheduler) enqueueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enqueues
}

// fakeClient serves canned forecast data; failLat marks a location whose
// fetches fail upstream.
type fakeClient struct {
	mu           sync.Mutex
	failLat      float64
	hourlyPoints int
	dailyPoints  int
	tempC        float64
	hourlyCalls  int
	dailyCalls   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{failLat: -1000, hourlyPoints: 24, dailyPoints: 5, tempC: 20}
}

func (f *fakeClient) FetchHourly(ctx context.Context, lat, lon float64) ([]weather.HourlyPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hourlyCalls++
	if lat == f.failLat {
		return nil, fmt.Errorf("server error")
	}

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]weather.HourlyPoint, 0, f.hourlyPoints)
	for i := 0; i < f.hourlyPoints; i++ {
		points = append(points, weather.HourlyPoint{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			TempC:     f.tempC,
			Humidity:  60,
			WindSpeed: 3,
			Condition: "clear",
		})
	}
	return points, nil
}

func (f *fakeClient) FetchDaily(ctx context.Context, lat, lon float64) ([]weather.DailyPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyCalls++
	if lat == f.failLat {
		return nil, fmt.Errorf("server error")
	}

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]weather.DailyPoint, 0, f.dailyPoints)
	for i := 0; i < f.dailyPoints; i++ {
		points = append(points, weather.DailyPoint{
			Date:     base.AddDate(0, 0, i),
			MinTempC: f.tempC - 5,
			MaxTempC: f.tempC,
			Humidity: 55,
			Condition: "cloudy",
		})
	}
	return points, nil
}

func testPipeline(t *testing.T, repos *store.Container, client weather.Client) *Pipeline {
	t.Helper()
	return NewPipeline(client, repos, zap.NewNop())
}
