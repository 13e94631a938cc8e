package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/johnngondi/vito/internal/jobs"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/queue"
	"github.com/johnngondi/vito/internal/services"
	"github.com/johnngondi/vito/internal/store"
	"github.com/johnngondi/vito/internal/testutil"
	"github.com/johnngondi/vito/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	handler http.Handler
	db      *sql.DB
	st      *store.Store
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	db := testutil.NewDB(t)
	q := queue.New(db, queue.Config{
		Lanes:    []queue.LaneConfig{{Name: "ssh", Concurrency: 1}, {Name: "default", Concurrency: 1}},
		Defaults: queue.Options{MaxAttempts: 3, BackoffBase: time.Millisecond},
	})
	dispatcher := jobs.Dispatcher{Queue: q, Lanes: jobs.Lanes{SSH: "ssh", Default: "default"}}
	events := services.NewEventService(db, nil)
	jobs.Register(q, jobs.Deps{DB: db, Dispatcher: dispatcher, Executor: testutil.NewFakeExecutor(), Storage: testutil.NewFakeStorage()}, queue.Options{})

	router := NewRouter(websocket.NewHub(), Services{
		Servers:   services.NewServerService(db, events),
		SshKeys:   services.NewSshKeyService(db, dispatcher, events),
		Storage:   services.NewStorageService(db),
		Databases: services.NewDatabaseService(db),
		Backups:   services.NewBackupService(db, dispatcher, events),
		Events:    events,
		Jobs:      q,
	}, []string{"*"})
	return &apiEnv{handler: router, db: db, st: store.New(db)}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestServers(t *testing.T) {
	e := newAPI(t)

	rec := e.do(t, http.MethodPost, "/api/v1/servers", map[string]any{"name": "web", "ip": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/servers", map[string]any{"name": "web", "ip": "10.0.0.7"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var srv models.Server
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &srv))

	rec = e.do(t, http.MethodGet, "/api/v1/servers/"+srv.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/servers/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerSshKeys(t *testing.T) {
	e := newAPI(t)
	srv := testutil.SeedServer(t, e.st)
	key := testutil.SeedSshKey(t, e.st)
	base := "/api/v1/servers/" + srv.ID + "/ssh-keys"

	rec := e.do(t, http.MethodPost, base+"/existing", map[string]string{"keyId": key.ID})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var link models.ServerSshKey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	assert.Equal(t, models.SshKeyStatusAdding, link.Status)

	rec = e.do(t, http.MethodPost, base+"/existing", map[string]string{"keyId": key.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodDelete, base+"/"+key.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "a key still being added cannot be removed")

	rec = e.do(t, http.MethodPost, base, map[string]string{"name": "ci", "publicKey": "not a key"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var links []models.ServerSshKey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	assert.Len(t, links, 1)
}

func TestStorageProviders_RedactSecrets(t *testing.T) {
	e := newAPI(t)

	rec := e.do(t, http.MethodPost, "/api/v1/storage-providers", map[string]any{
		"name": "s3", "provider": "s3",
		"credentials": map[string]string{"bucket": "backups", "accessKey": "AKIA", "secretKey": "hunter2"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	rec = e.do(t, http.MethodGet, "/api/v1/storage-providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.Contains(t, rec.Body.String(), "AKIA")
}

func TestBackups(t *testing.T) {
	e := newAPI(t)
	srv := testutil.SeedServer(t, e.st)
	sp := testutil.SeedStorage(t, e.st)

	rec := e.do(t, http.MethodPost, "/api/v1/servers/"+srv.ID+"/backups", map[string]any{
		"type": "full", "name": "Home", "storageId": sp.ID, "interval": "manual", "keepBackups": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var b models.Backup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))

	rec = e.do(t, http.MethodPost, "/api/v1/backups/"+b.ID+"/run", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var f models.BackupFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.True(t, strings.HasPrefix(f.Name, "home-"))

	rec = e.do(t, http.MethodDelete, "/api/v1/backup-files/"+f.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	stored := testutil.SeedFile(t, e.db, b, "home-20260101000000", models.BackupFileStatusSuccess, time.Now())
	rec = e.do(t, http.MethodDelete, "/api/v1/backup-files/"+stored.ID, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/backups/"+b.ID+"/resume", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/v1/backups/"+b.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/backups/"+b.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobs(t *testing.T) {
	e := newAPI(t)

	rec := e.do(t, http.MethodGet, "/api/v1/jobs/dead", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/v1/jobs/abc/retry", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/jobs/42/retry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/v1/jobs/dead?olderThan=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"purged":0}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	e := newAPI(t)
	rec := e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
