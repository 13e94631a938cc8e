// Package testutil holds fakes and fixtures shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/johnngondi/vito/internal/database"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/store"
	"github.com/stretchr/testify/require"
)

// NewDB returns a migrated in-memory database closed at test cleanup.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	return db
}

// TestPublicKey is a well-formed ed25519 authorized_keys line.
const TestPublicKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl operator@laptop"

func SeedServer(t *testing.T, st *store.Store) models.Server {
	t.Helper()
	srv := models.Server{ID: uuid.NewString(), Name: "web-1", IP: "10.0.0.10", SSHUser: "vito"}
	require.NoError(t, st.CreateServer(context.Background(), &srv))
	return srv
}

func SeedSshKey(t *testing.T, st *store.Store) models.SshKey {
	t.Helper()
	key := models.SshKey{ID: uuid.NewString(), Name: "laptop", PublicKey: TestPublicKey}
	require.NoError(t, st.CreateSshKey(context.Background(), &key))
	return key
}

// SeedLink inserts a link in adding and, when status differs, forces it
// to status without going through the state machine.
func SeedLink(t *testing.T, db *sql.DB, serverID, keyID string, status models.SshKeyStatus) models.ServerSshKey {
	t.Helper()
	ctx := context.Background()
	st := store.New(db)
	link := models.ServerSshKey{ID: uuid.NewString(), ServerID: serverID, SshKeyID: keyID, Status: models.SshKeyStatusAdding}
	require.NoError(t, st.CreateServerSshKey(ctx, &link))
	if status != link.Status {
		_, err := db.ExecContext(ctx, "UPDATE server_ssh_keys SET status = ? WHERE id = ?", status, link.ID)
		require.NoError(t, err)
	}
	got, err := st.GetServerSshKey(ctx, link.ID)
	require.NoError(t, err)
	return got
}

func SeedStorage(t *testing.T, st *store.Store) models.StorageProvider {
	t.Helper()
	p := models.StorageProvider{
		ID:          uuid.NewString(),
		Name:        "archive",
		Provider:    "local",
		Credentials: models.StorageCredentials{Path: t.TempDir()},
	}
	require.NoError(t, st.CreateStorageProvider(context.Background(), &p))
	return p
}

func SeedDatabase(t *testing.T, st *store.Store, serverID string) models.Database {
	t.Helper()
	d := models.Database{ID: uuid.NewString(), ServerID: serverID, Name: "shop", Engine: "mysql"}
	require.NoError(t, st.CreateDatabase(context.Background(), &d))
	return d
}

// SeedBackup creates a manual database backup with the given retention.
func SeedBackup(t *testing.T, st *store.Store, keep int) models.Backup {
	t.Helper()
	srv := SeedServer(t, st)
	sp := SeedStorage(t, st)
	d := SeedDatabase(t, st, srv.ID)
	b := models.Backup{
		ID:          uuid.NewString(),
		Type:        models.BackupTypeDatabase,
		Name:        "Shop DB",
		ServerID:    srv.ID,
		StorageID:   sp.ID,
		DatabaseID:  &d.ID,
		Interval:    models.IntervalManual,
		KeepBackups: keep,
	}
	require.NoError(t, st.CreateBackup(context.Background(), &b))
	return b
}

// SeedFile inserts a backup file created at createdAt and forces its status.
func SeedFile(t *testing.T, db *sql.DB, b models.Backup, name string, status models.BackupFileStatus, createdAt time.Time) models.BackupFile {
	t.Helper()
	ctx := context.Background()
	st := store.New(db)
	f := models.BackupFile{
		ID:        uuid.NewString(),
		BackupID:  b.ID,
		Name:      name,
		Status:    models.BackupFileStatusCreating,
		CreatedAt: createdAt.UTC(),
	}
	require.NoError(t, st.CreateBackupFile(ctx, &f))
	if status != f.Status {
		_, err := db.ExecContext(ctx, "UPDATE backup_files SET status = ?, path = ? WHERE id = ?", status, "shop-db/"+name+".sql.gz", f.ID)
		require.NoError(t, err)
	}
	got, err := st.GetBackupFile(ctx, f.ID)
	require.NoError(t, err)
	return got
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// PendingJobs counts jobs that are pending or running.
func PendingJobs(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM jobs WHERE status IN ('pending', 'running')").Scan(&n))
	return n
}
