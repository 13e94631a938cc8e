package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/johnngondi/vito/internal/jobs"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/queue"
	"github.com/johnngondi/vito/internal/services"
	"github.com/johnngondi/vito/internal/store"
	"github.com/johnngondi/vito/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunDue(t *testing.T) {
	db := testutil.NewDB(t)
	st := store.New(db)
	ctx := context.Background()
	q := queue.New(db, queue.Config{Lanes: []queue.LaneConfig{{Name: "ssh", Concurrency: 1}, {Name: "default", Concurrency: 1}}})
	dispatcher := jobs.Dispatcher{Queue: q, Lanes: jobs.Lanes{SSH: "ssh", Default: "default"}}
	events := services.NewEventService(db, nil)
	jobs.Register(q, jobs.Deps{DB: db, Dispatcher: dispatcher, Executor: testutil.NewFakeExecutor(), Storage: testutil.NewFakeStorage()}, queue.Options{})
	backups := services.NewBackupService(db, dispatcher, events)

	srv := testutil.SeedServer(t, st)
	sp := testutil.SeedStorage(t, st)
	req := services.CreateBackupRequest{
		Type: models.BackupTypeFull, Name: "Site", ServerID: srv.ID, StorageID: sp.ID,
		Interval: "0 3 * * *", KeepBackups: 2,
	}
	daily, err := backups.CreateBackup(ctx, req)
	require.NoError(t, err)
	paused, err := backups.CreateBackup(ctx, req)
	require.NoError(t, err)
	_, err = backups.Pause(ctx, paused.ID)
	require.NoError(t, err)
	req.Interval = ""
	manual, err := backups.CreateBackup(ctx, req)
	require.NoError(t, err)

	s := NewScheduler(backups, events, time.Minute)
	now := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	s.now = func() time.Time { return now }
	s.RunDue(ctx)

	files, err := backups.ListFiles(ctx, daily.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, models.BackupFileStatusCreating, files[0].Status)

	got, err := backups.GetBackup(ctx, daily.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(now))
	assert.True(t, got.NextRunAt.After(now))

	for _, id := range []string{paused.ID, manual.ID} {
		files, err := backups.ListFiles(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, files)
	}

	s.RunDue(ctx)
	files, err = backups.ListFiles(ctx, daily.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1, "a rescheduled backup is not due again")
}

type failingBackups struct {
	services.BackupServiceProvider
	due    []models.Backup
	marked []string
}

func (f *failingBackups) ListDueBackups(context.Context, time.Time) ([]models.Backup, error) {
	return f.due, nil
}

func (f *failingBackups) Run(context.Context, string) (models.BackupFile, error) {
	return models.BackupFile{}, errors.New("database is locked")
}

func (f *failingBackups) MarkScheduled(_ context.Context, b models.Backup, _ time.Time) error {
	f.marked = append(f.marked, b.ID)
	return nil
}

type eventLog struct {
	services.EventServiceProvider
	types []string
}

func (e *eventLog) CreateEvent(_ context.Context, eventType, _, _ string, _ *string) error {
	e.types = append(e.types, eventType)
	return nil
}

func TestScheduler_FailedRunIsRescheduled(t *testing.T) {
	backups := &failingBackups{due: []models.Backup{{ID: "b1", Name: "Site", ServerID: "srv-1"}}}
	events := &eventLog{}

	NewScheduler(backups, events, 0).RunDue(context.Background())

	assert.Equal(t, []string{"b1"}, backups.marked)
	assert.Equal(t, []string{"backup.schedule.fail"}, events.types)
}
