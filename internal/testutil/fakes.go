package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/remote"
	"github.com/johnngondi/vito/internal/storage"
)

type rule struct {
	match string
	times int
	res   remote.Result
	err   error
	hang  bool
}

// FakeExecutor records remote calls. Commands succeed with exit 0 unless a
// rule registered with On or Hang matches. A rule matches commands that
// start with its match string.
type FakeExecutor struct {
	mu       sync.Mutex
	rules    []*rule
	commands []string
	files    map[string][]byte
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{files: make(map[string][]byte)}
}

// On makes the next times calls whose command starts with match return res
// and err. times <= 0 applies the rule forever.
func (f *FakeExecutor) On(match string, times int, res remote.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{match: match, times: forever(times), res: res, err: err})
}

// Hang makes matching calls block until their context ends, then fail with
// a timeout TransportError.
func (f *FakeExecutor) Hang(match string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{match: match, times: forever(times), hang: true})
}

func forever(times int) int {
	if times <= 0 {
		return -1
	}
	return times
}

// SetFile makes Download of path return data.
func (f *FakeExecutor) SetFile(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
}

// Commands returns every recorded call in order. Downloads and uploads are
// recorded as "download <path>" and "upload <local> <remote>".
func (f *FakeExecutor) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Count returns how many recorded calls contain match.
func (f *FakeExecutor) Count(match string) int {
	n := 0
	for _, c := range f.Commands() {
		if strings.Contains(c, match) {
			n++
		}
	}
	return n
}

func (f *FakeExecutor) call(ctx context.Context, server models.Server, op, command string) (remote.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	var matched *rule
	for _, r := range f.rules {
		if r.times == 0 || !strings.HasPrefix(command, r.match) {
			continue
		}
		if r.times > 0 {
			r.times--
		}
		matched = r
		break
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return remote.Result{}, &remote.TransportError{Op: op, Server: server.Address(), Timeout: true, Err: err}
	}
	if matched == nil {
		return remote.Result{}, nil
	}
	if matched.hang {
		<-ctx.Done()
		return remote.Result{}, &remote.TransportError{Op: op, Server: server.Address(), Timeout: true, Err: ctx.Err()}
	}
	return matched.res, matched.err
}

func (f *FakeExecutor) Run(ctx context.Context, server models.Server, command string) (remote.Result, error) {
	return f.call(ctx, server, "run", command)
}

func (f *FakeExecutor) Upload(ctx context.Context, server models.Server, localPath, remotePath string) error {
	_, err := f.call(ctx, server, "upload", "upload "+localPath+" "+remotePath)
	return err
}

func (f *FakeExecutor) Download(ctx context.Context, server models.Server, remotePath string) ([]byte, error) {
	if _, err := f.call(ctx, server, "download", "download "+remotePath); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[remotePath]
	if !ok {
		return []byte("artifact:" + remotePath), nil
	}
	return data, nil
}

// FakeStorage is an in-memory storage.Provider that is also its own Factory.
type FakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	PutErr    error
	DeleteErr error
	// Ops records "put <path>" and "delete <path>" in order.
	Ops []string
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{objects: make(map[string][]byte)}
}

func (s *FakeStorage) Provider(context.Context, models.StorageProvider) (storage.Provider, error) {
	return s, nil
}

func (s *FakeStorage) Put(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ops = append(s.Ops, "put "+path)
	if s.PutErr != nil {
		return &storage.Error{Op: "put", Path: path, Err: s.PutErr}
	}
	s.objects[path] = append([]byte(nil), data...)
	return nil
}

func (s *FakeStorage) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ops = append(s.Ops, "delete "+path)
	if s.DeleteErr != nil {
		return &storage.Error{Op: "delete", Path: path, Err: s.DeleteErr}
	}
	delete(s.objects, path)
	return nil
}

// Has reports whether an object exists at path.
func (s *FakeStorage) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok
}

// Seed stores an object directly.
func (s *FakeStorage) Seed(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
}

// SetErrors replaces the injected errors.
func (s *FakeStorage) SetErrors(put, del error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutErr, s.DeleteErr = put, del
}

// Recorder collects status changes.
type Recorder struct {
	mu      sync.Mutex
	changes []models.StatusChange
}

func (r *Recorder) StatusChanged(_ context.Context, c models.StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *Recorder) Changes() []models.StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StatusChange(nil), r.changes...)
}

// ErrUnreachable is a ready-made transport failure.
var ErrUnreachable = &remote.TransportError{Op: "dial", Server: "10.0.0.10:22", Err: errors.New("connection refused")}
