package jobs

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/queue"
	"github.com/johnngondi/vito/internal/remote"
	"github.com/johnngondi/vito/internal/store"
	"github.com/johnngondi/vito/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	db         *sql.DB
	st         *store.Store
	q          *queue.Queue
	clock      *testutil.Clock
	exec       *testutil.FakeExecutor
	storage    *testutil.FakeStorage
	notes      *testutil.Recorder
	dispatcher Dispatcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	e := &env{
		db:      db,
		st:      store.New(db),
		clock:   testutil.NewClock(time.Now()),
		exec:    testutil.NewFakeExecutor(),
		storage: testutil.NewFakeStorage(),
		notes:   &testutil.Recorder{},
	}
	e.q = queue.New(db, queue.Config{
		Lanes: []queue.LaneConfig{
			{Name: "ssh", Concurrency: 1, PerKeyConcurrency: 1},
			{Name: "default", Concurrency: 1},
		},
		Defaults: queue.Options{MaxAttempts: 3, BackoffBase: time.Second, BackoffMax: time.Minute},
		Clock:    e.clock.Now,
	})
	e.dispatcher = Dispatcher{Queue: e.q, Lanes: Lanes{SSH: "ssh", Default: "default"}}
	Register(e.q, Deps{
		DB:              db,
		Dispatcher:      e.dispatcher,
		Executor:        e.exec,
		Storage:         e.storage,
		Notifier:        e.notes,
		RemoteBackupDir: "/var/backups/vito",
		CommandTimeout:  50 * time.Millisecond,
	}, queue.Options{})
	return e
}

// drain runs jobs until none are pending, skipping past backoffs.
func (e *env) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		ran := false
		for _, lane := range []string{"ssh", "default"} {
			ok, err := e.q.RunNext(ctx, lane)
			require.NoError(t, err)
			ran = ran || ok
		}
		if ran {
			continue
		}
		if testutil.PendingJobs(t, e.db) == 0 {
			return
		}
		e.clock.Advance(time.Hour)
	}
	t.Fatal("queue did not drain")
}

func (e *env) link(t *testing.T, status models.SshKeyStatus) models.ServerSshKey {
	t.Helper()
	srv := testutil.SeedServer(t, e.st)
	key := testutil.SeedSshKey(t, e.st)
	return testutil.SeedLink(t, e.db, srv.ID, key.ID, status)
}

const appendCmd = `mkdir -p "$HOME/.ssh"`

func TestDeploySshKey_Success(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusAdding)

	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	e.drain(t)

	got, err := e.st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SshKeyStatusActive, got.Status)
	assert.Equal(t, []string{
		remote.AppendAuthorizedKey(testutil.TestPublicKey),
		remote.HasAuthorizedKey(testutil.TestPublicKey),
	}, e.exec.Commands())

	changes := e.notes.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, "active", changes[0].Status)
	assert.Equal(t, link.ServerID, changes[0].ServerID)
}

func TestDeploySshKey_RedeliveryIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusAdding)

	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	e.drain(t)

	got, err := e.st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SshKeyStatusActive, got.Status)
	assert.Equal(t, 1, e.exec.Count(appendCmd), "key must be written once")
}

func TestDeploySshKey_AlreadyActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusActive)

	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	e.drain(t)

	got, err := e.st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SshKeyStatusActive, got.Status)
	assert.Empty(t, e.exec.Commands())
	assert.Empty(t, e.notes.Changes())
}

func TestDeploySshKey_MalformedKeyFailsWithoutRemoteCall(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	srv := testutil.SeedServer(t, e.st)
	key := models.SshKey{ID: "bad", Name: "bad", PublicKey: "ssh-rsa not-base64"}
	require.NoError(t, e.st.CreateSshKey(ctx, &key))
	link := testutil.SeedLink(t, e.db, srv.ID, key.ID, models.SshKeyStatusAdding)

	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	e.drain(t)

	got, err := e.st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SshKeyStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "malformed public key")
	assert.Empty(t, e.exec.Commands())
}

func TestDeploySshKey_CommandErrorIsPermanent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusAdding)
	e.exec.On(appendCmd, 0, remote.Result{ExitCode: 1, Stderr: "No space left on device"}, nil)

	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	e.drain(t)

	got, err := e.st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SshKeyStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "No space left on device")
	assert.Equal(t, 1, e.exec.Count(appendCmd))
}

func TestDeploySshKey_VerificationFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusAdding)
	e.exec.On("grep -qxF", 0, remote.Result{ExitCode: 1}, nil)

	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	e.drain(t)

	got, err := e.st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SshKeyStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "not present")
}

func TestDeploySshKey_TransientErrorRetried(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusAdding)
	e.exec.On(appendCmd, 1, remote.Result{}, testutil.ErrUnreachable)

	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	e.drain(t)

	got, err := e.st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SshKeyStatusActive, got.Status)
	assert.Equal(t, 2, e.exec.Count(appendCmd))
}

func TestDeploySshKey_TimeoutsExhaustAttempts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusAdding)
	e.exec.Hang(appendCmd, 0)

	require.NoError(t, e.dispatcher.DeploySshKey(ctx, e.db, link))
	e.drain(t)

	got, err := e.st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SshKeyStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "timed out")
	assert.Equal(t, 3, e.exec.Count(appendCmd), "no attempt beyond the third")

	dead, err := e.q.ListDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].Attempts)
}

func TestDeleteSshKey_RemovesLink(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusDeleting)

	require.NoError(t, e.dispatcher.DeleteSshKey(ctx, e.db, link))
	e.drain(t)

	_, err := e.st.GetServerSshKey(ctx, link.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{remote.RemoveAuthorizedKey(testutil.TestPublicKey)}, e.exec.Commands())

	changes := e.notes.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, "deleted", changes[0].Status)
}

func TestDeleteSshKey_RedeliveryAfterRemoval(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusDeleting)

	require.NoError(t, e.dispatcher.DeleteSshKey(ctx, e.db, link))
	require.NoError(t, e.dispatcher.DeleteSshKey(ctx, e.db, link))
	e.drain(t)

	assert.Len(t, e.exec.Commands(), 1)
	assert.Zero(t, testutil.PendingJobs(t, e.db))
}

func TestDeleteSshKey_FailureKeepsLink(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := e.link(t, models.SshKeyStatusDeleting)
	e.exec.On("f=", 0, remote.Result{}, testutil.ErrUnreachable)

	require.NoError(t, e.dispatcher.DeleteSshKey(ctx, e.db, link))
	e.drain(t)

	got, err := e.st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SshKeyStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "connection refused")
	assert.Equal(t, 3, e.exec.Count("f="))
}

func (e *env) backupFile(t *testing.T, b models.Backup) models.BackupFile {
	t.Helper()
	return testutil.SeedFile(t, e.db, b, "shop-db-20260101120000", models.BackupFileStatusCreating,
		time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
}

func TestRunBackup_Success(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	f := e.backupFile(t, b)
	data := []byte("-- mysql dump --")
	e.exec.SetFile("/var/backups/vito/shop-db-20260101120000.sql.gz", data)

	require.NoError(t, e.dispatcher.RunBackup(ctx, e.db, b, f))
	e.drain(t)

	got, err := e.st.GetBackupFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupFileStatusSuccess, got.Status)
	assert.Equal(t, "shop-db/shop-db-20260101120000.sql.gz", got.Path)
	assert.EqualValues(t, len(data), got.Size)
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), got.Checksum)
	assert.True(t, e.storage.Has(got.Path))

	cmds := e.exec.Commands()
	require.Len(t, cmds, 3)
	assert.Contains(t, cmds[0], "mysqldump")
	assert.Equal(t, "download /var/backups/vito/shop-db-20260101120000.sql.gz", cmds[1])
	assert.Equal(t, remote.RemoveFile("/var/backups/vito/shop-db-20260101120000.sql.gz"), cmds[2])
}

func TestRunBackup_FullArchivesHome(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	_, err := e.db.Exec("UPDATE backups SET type = 'full', database_id = NULL WHERE id = ?", b.ID)
	require.NoError(t, err)
	b, err = e.st.GetBackup(ctx, b.ID)
	require.NoError(t, err)
	f := e.backupFile(t, b)

	require.NoError(t, e.dispatcher.RunBackup(ctx, e.db, b, f))
	e.drain(t)

	got, err := e.st.GetBackupFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupFileStatusSuccess, got.Status)
	assert.Equal(t, "shop-db/shop-db-20260101120000.tar.gz", got.Path)
	assert.Contains(t, e.exec.Commands()[0], "tar -czf")
}

func TestRunBackup_StorageFailureMarksFailed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	f := e.backupFile(t, b)
	e.storage.SetErrors(errors.New("access denied"), nil)

	require.NoError(t, e.dispatcher.RunBackup(ctx, e.db, b, f))
	e.drain(t)

	got, err := e.st.GetBackupFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupFileStatusFailed, got.Status)
	assert.Empty(t, got.Path)
	assert.Contains(t, got.LastError, "access denied")

	success, err := e.st.ListBackupFiles(ctx, b.ID, models.BackupFileStatusSuccess)
	require.NoError(t, err)
	assert.Empty(t, success)
	assert.False(t, e.storage.Has("shop-db/shop-db-20260101120000.sql.gz"))
	assert.Equal(t, []string{
		"put shop-db/shop-db-20260101120000.sql.gz",
		"delete shop-db/shop-db-20260101120000.sql.gz",
	}, e.storage.Ops)
}

func TestRunBackup_DumpFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	f := e.backupFile(t, b)
	e.exec.On("bash -o pipefail", 0, remote.Result{ExitCode: 2, Stderr: "mysqldump: Got error: 1045: Access denied"}, nil)

	require.NoError(t, e.dispatcher.RunBackup(ctx, e.db, b, f))
	e.drain(t)

	got, err := e.st.GetBackupFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupFileStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "1045")
	assert.Empty(t, e.storage.Ops)
	assert.Equal(t, 1, e.exec.Count("rm -f"), "staged file is cleaned up")
}

func TestRunBackup_DownloadCommandErrorIsPermanent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	f := e.backupFile(t, b)
	e.exec.On("download", 0, remote.Result{}, &remote.CommandError{
		Command: "cat /var/backups/vito/shop-db-20260101120000.sql.gz", ExitCode: 1, Stderr: "cat: Permission denied",
	})

	require.NoError(t, e.dispatcher.RunBackup(ctx, e.db, b, f))
	e.drain(t)

	got, err := e.st.GetBackupFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupFileStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "Permission denied")
	assert.Equal(t, 1, e.exec.Count("download /var"), "download is not retried")
	assert.Equal(t, 1, e.exec.Count("mysqldump"), "dump is not re-run")
	assert.Empty(t, e.storage.Ops)
}

func TestRunBackup_DownloadTransportErrorRetried(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	f := e.backupFile(t, b)
	e.exec.On("download", 1, remote.Result{}, &remote.TransportError{Op: "download", Server: "10.0.0.1:22", Err: errors.New("connection reset")})

	require.NoError(t, e.dispatcher.RunBackup(ctx, e.db, b, f))
	e.drain(t)

	got, err := e.st.GetBackupFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupFileStatusSuccess, got.Status)
	assert.Equal(t, 2, e.exec.Count("download /var"))
}

func TestRunBackup_RedeliveryIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	f := testutil.SeedFile(t, e.db, b, "shop-db-20260101120000", models.BackupFileStatusSuccess, time.Now())

	require.NoError(t, e.dispatcher.RunBackup(ctx, e.db, b, f))
	e.drain(t)

	assert.Empty(t, e.exec.Commands())
	got, err := e.st.GetBackupFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupFileStatusSuccess, got.Status)
}

func seedSuccessFiles(t *testing.T, e *env, b models.Backup, n int) []models.BackupFile {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var files []models.BackupFile
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		f := testutil.SeedFile(t, e.db, b, "shop-db-"+at.Format("20060102150405"), models.BackupFileStatusSuccess, at)
		e.storage.Seed(f.Path, []byte("x"))
		files = append(files, f)
	}
	return files
}

func fileIDs(files []models.BackupFile) []string {
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return ids
}

func TestPruneBackups_KeepsNewest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 2)
	files := seedSuccessFiles(t, e, b, 4)
	failed := testutil.SeedFile(t, e.db, b, "shop-db-failed", models.BackupFileStatusFailed, time.Now())

	require.NoError(t, e.dispatcher.PruneBackups(ctx, e.db, b))
	e.drain(t)

	left, err := e.st.ListBackupFiles(ctx, b.ID, models.BackupFileStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, []string{files[3].ID, files[2].ID}, fileIDs(left))

	assert.False(t, e.storage.Has(files[0].Path))
	assert.False(t, e.storage.Has(files[1].Path))
	assert.True(t, e.storage.Has(files[2].Path))
	assert.True(t, e.storage.Has(files[3].Path))

	_, err = e.st.GetBackupFile(ctx, failed.ID)
	assert.NoError(t, err, "failed files are not counted or pruned")
}

func TestPruneBackups_KeepZero(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 0)
	seedSuccessFiles(t, e, b, 2)

	require.NoError(t, e.dispatcher.PruneBackups(ctx, e.db, b))
	e.drain(t)

	left, err := e.st.ListBackupFiles(ctx, b.ID, models.BackupFileStatusSuccess)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestPruneBackups_StorageFailureKeepsRecords(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 1)
	files := seedSuccessFiles(t, e, b, 3)
	e.storage.SetErrors(nil, errors.New("throttled"))

	require.NoError(t, e.dispatcher.PruneBackups(ctx, e.db, b))
	e.drain(t)

	left, err := e.st.ListBackupFiles(ctx, b.ID, models.BackupFileStatusSuccess)
	require.NoError(t, err)
	assert.Len(t, left, 3, "no record is deleted before its artifact")
	for _, f := range files {
		assert.True(t, e.storage.Has(f.Path))
	}
}

func TestRunBackup_TriggersRetention(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 2)
	old := seedSuccessFiles(t, e, b, 2)
	f := e.backupFile(t, b)

	require.NoError(t, e.dispatcher.RunBackup(ctx, e.db, b, f))
	e.drain(t)

	left, err := e.st.ListBackupFiles(ctx, b.ID, models.BackupFileStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, []string{f.ID, old[1].ID}, fileIDs(left))
	assert.False(t, e.storage.Has(old[0].Path))
}

func TestDeleteArtifact(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 1)
	e.storage.Seed("shop-db/a.sql.gz", []byte("x"))

	require.NoError(t, e.dispatcher.DeleteArtifact(ctx, e.db, b, models.BackupFile{ID: "f1", Path: "shop-db/a.sql.gz"}))
	e.drain(t)

	assert.False(t, e.storage.Has("shop-db/a.sql.gz"))
}

func TestDeleteArtifact_UndecodablePayloadIsBuried(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.q.Enqueue(ctx, e.db, "default", queue.Task{Name: DeleteArtifact, ResourceID: "f1", Payload: "not an object"})
	require.NoError(t, err)
	e.drain(t)

	dead, err := e.q.ListDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, DeleteArtifact, dead[0].Name)
	assert.Contains(t, dead[0].LastError, "decode payload")
	assert.Empty(t, e.storage.Ops)
}

func TestDeleteFile_RemovesArtifactThenRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	files := seedSuccessFiles(t, e, b, 2)

	require.NoError(t, e.dispatcher.DeleteFile(ctx, e.db, files[0]))
	e.drain(t)

	_, err := e.st.GetBackupFile(ctx, files[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, e.storage.Has(files[0].Path))
	assert.True(t, e.storage.Has(files[1].Path))
	assert.Equal(t, []string{"delete " + files[0].Path}, e.storage.Ops)

	changes := e.notes.Changes()
	require.NotEmpty(t, changes)
	assert.Equal(t, "deleted", changes[len(changes)-1].Status)
}

func TestDeleteFile_StorageFailureKeepsRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	f := seedSuccessFiles(t, e, b, 1)[0]
	e.storage.SetErrors(nil, errors.New("bucket unavailable"))

	require.NoError(t, e.dispatcher.DeleteFile(ctx, e.db, f))
	e.drain(t)

	got, err := e.st.GetBackupFile(ctx, f.ID)
	require.NoError(t, err, "record outlives an artifact that could not be deleted")
	assert.Equal(t, models.BackupFileStatusSuccess, got.Status)
	assert.True(t, e.storage.Has(f.Path))

	dead, err := e.q.ListDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, DeleteFile, dead[0].Name)
	assert.Contains(t, dead[0].LastError, "bucket unavailable")
}

func TestDeleteFile_RedeliveryAfterRemoval(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := testutil.SeedBackup(t, e.st, 5)
	f := seedSuccessFiles(t, e, b, 1)[0]

	require.NoError(t, e.dispatcher.DeleteFile(ctx, e.db, f))
	require.NoError(t, e.dispatcher.DeleteFile(ctx, e.db, f))
	e.drain(t)

	assert.Equal(t, []string{"delete " + f.Path}, e.storage.Ops)
}

func TestValidatePublicKey(t *testing.T) {
	assert.NoError(t, ValidatePublicKey(testutil.TestPublicKey))
	assert.NoError(t, ValidatePublicKey(testutil.TestPublicKey+"\n"))
	assert.Error(t, ValidatePublicKey(""))
	assert.Error(t, ValidatePublicKey("ssh-rsa AAAA"))
	assert.Error(t, ValidatePublicKey(testutil.TestPublicKey+"\n"+testutil.TestPublicKey))
}
