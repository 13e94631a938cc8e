package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/johnngondi/vito/internal/database"
	"github.com/johnngondi/vito/internal/jobs"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/state"
	"github.com/johnngondi/vito/internal/store"
)

// SshKeyServiceProvider defines the interface for SSH key services.
type SshKeyServiceProvider interface {
	CreateSshKey(ctx context.Context, name, publicKey string) (models.SshKey, error)
	ListSshKeys(ctx context.Context) ([]models.SshKey, error)
	AddKeyToServer(ctx context.Context, serverID, keyID string) (models.ServerSshKey, error)
	AddNewKeyToServer(ctx context.Context, serverID, name, publicKey string) (models.ServerSshKey, error)
	DeleteKeyFromServer(ctx context.Context, serverID, keyID string) (models.ServerSshKey, error)
	RedeployKey(ctx context.Context, serverID, keyID string) (models.ServerSshKey, error)
	ListServerKeys(ctx context.Context, serverID string) ([]models.ServerSshKey, error)
}

// ErrKeyAlreadyDeployed is returned when a key is already linked to a server.
var ErrKeyAlreadyDeployed = errors.New("ssh key is already linked to this server")

// SshKeyService starts key deployments and removals. Every status change
// it makes is committed together with the job that resolves it.
type SshKeyService struct {
	db           *sql.DB
	jobs         jobs.Dispatcher
	eventService EventServiceProvider
}

// NewSshKeyService creates a new SshKeyService.
func NewSshKeyService(db *sql.DB, dispatcher jobs.Dispatcher, eventService EventServiceProvider) *SshKeyService {
	return &SshKeyService{db: db, jobs: dispatcher, eventService: eventService}
}

func newSshKey(name, publicKey string) (models.SshKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.SshKey{}, fmt.Errorf("%w: key name is required", ErrInvalidInput)
	}
	if err := jobs.ValidatePublicKey(publicKey); err != nil {
		return models.SshKey{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return models.SshKey{ID: uuid.New().String(), Name: name, PublicKey: strings.TrimSpace(publicKey)}, nil
}

// CreateSshKey stores a public key without deploying it anywhere.
func (s *SshKeyService) CreateSshKey(ctx context.Context, name, publicKey string) (models.SshKey, error) {
	key, err := newSshKey(name, publicKey)
	if err != nil {
		return models.SshKey{}, err
	}
	if err := store.New(s.db).CreateSshKey(ctx, &key); err != nil {
		return models.SshKey{}, err
	}
	return key, nil
}

func (s *SshKeyService) ListSshKeys(ctx context.Context) ([]models.SshKey, error) {
	return store.New(s.db).ListSshKeys(ctx)
}

// AddKeyToServer links an existing key to a server in adding and enqueues its deployment.
func (s *SshKeyService) AddKeyToServer(ctx context.Context, serverID, keyID string) (models.ServerSshKey, error) {
	var link models.ServerSshKey
	err := store.WithTx(ctx, s.db, func(tx *store.Store) error {
		var err error
		link, err = s.link(ctx, tx, serverID, keyID)
		return err
	})
	if err != nil {
		return models.ServerSshKey{}, err
	}
	s.eventService.CreateEvent(ctx, "ssh_key.deploy", "info", fmt.Sprintf("Deploying SSH key '%s'.", link.KeyName), &link.ServerID)
	return link, nil
}

// AddNewKeyToServer creates a key and links it to a server in one transaction.
func (s *SshKeyService) AddNewKeyToServer(ctx context.Context, serverID, name, publicKey string) (models.ServerSshKey, error) {
	key, err := newSshKey(name, publicKey)
	if err != nil {
		return models.ServerSshKey{}, err
	}
	var link models.ServerSshKey
	err = store.WithTx(ctx, s.db, func(tx *store.Store) error {
		if err := tx.CreateSshKey(ctx, &key); err != nil {
			return err
		}
		link, err = s.link(ctx, tx, serverID, key.ID)
		return err
	})
	if err != nil {
		return models.ServerSshKey{}, err
	}
	s.eventService.CreateEvent(ctx, "ssh_key.deploy", "info", fmt.Sprintf("Deploying SSH key '%s'.", key.Name), &link.ServerID)
	return link, nil
}

func (s *SshKeyService) link(ctx context.Context, tx *store.Store, serverID, keyID string) (models.ServerSshKey, error) {
	if _, err := tx.GetServer(ctx, serverID); err != nil {
		return models.ServerSshKey{}, err
	}
	key, err := tx.GetSshKey(ctx, keyID)
	if err != nil {
		return models.ServerSshKey{}, err
	}
	if _, err := tx.FindServerSshKey(ctx, serverID, keyID); err == nil {
		return models.ServerSshKey{}, ErrKeyAlreadyDeployed
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.ServerSshKey{}, err
	}

	_, initial, err := state.InitialState(state.OpDeploy)
	if err != nil {
		return models.ServerSshKey{}, err
	}
	link := models.ServerSshKey{
		ID:       uuid.New().String(),
		ServerID: serverID,
		SshKeyID: keyID,
		Status:   models.SshKeyStatus(initial),
		KeyName:  key.Name,
	}
	if err := tx.CreateServerSshKey(ctx, &link); err != nil {
		return models.ServerSshKey{}, err
	}
	if err := s.jobs.DeploySshKey(ctx, tx.DB(), link); err != nil {
		return models.ServerSshKey{}, err
	}
	return link, nil
}

// DeleteKeyFromServer moves an active or failed link to deleting and
// enqueues the removal. The link row stays until the key is gone.
func (s *SshKeyService) DeleteKeyFromServer(ctx context.Context, serverID, keyID string) (models.ServerSshKey, error) {
	_, to, err := state.InitialState(state.OpDelete)
	if err != nil {
		return models.ServerSshKey{}, err
	}
	link, err := s.move(ctx, serverID, keyID, models.SshKeyStatus(to), s.jobs.DeleteSshKey)
	if err != nil {
		return models.ServerSshKey{}, err
	}
	s.eventService.CreateEvent(ctx, "ssh_key.delete", "warn", fmt.Sprintf("Removing SSH key '%s'.", link.KeyName), &link.ServerID)
	return link, nil
}

// RedeployKey retries a failed deployment.
func (s *SshKeyService) RedeployKey(ctx context.Context, serverID, keyID string) (models.ServerSshKey, error) {
	_, to, err := state.InitialState(state.OpDeploy)
	if err != nil {
		return models.ServerSshKey{}, err
	}
	link, err := s.move(ctx, serverID, keyID, models.SshKeyStatus(to), s.jobs.DeploySshKey)
	if err != nil {
		return models.ServerSshKey{}, err
	}
	s.eventService.CreateEvent(ctx, "ssh_key.deploy", "info", fmt.Sprintf("Redeploying SSH key '%s'.", link.KeyName), &link.ServerID)
	return link, nil
}

type enqueueFunc func(ctx context.Context, db database.DBTX, link models.ServerSshKey) error

// move transitions a link to a pending status and enqueues the job resolving it.
func (s *SshKeyService) move(ctx context.Context, serverID, keyID string, to models.SshKeyStatus, enqueue enqueueFunc) (models.ServerSshKey, error) {
	var link models.ServerSshKey
	err := store.WithTx(ctx, s.db, func(tx *store.Store) error {
		var err error
		link, err = tx.FindServerSshKey(ctx, serverID, keyID)
		if err != nil {
			return err
		}
		if err := tx.TransitionServerSshKey(ctx, link.ID, link.Status, to, ""); err != nil {
			return err
		}
		link.Status, link.LastError = to, ""
		return enqueue(ctx, tx.DB(), link)
	})
	return link, err
}

func (s *SshKeyService) ListServerKeys(ctx context.Context, serverID string) ([]models.ServerSshKey, error) {
	if _, err := store.New(s.db).GetServer(ctx, serverID); err != nil {
		return nil, err
	}
	links, err := store.New(s.db).ListServerSshKeys(ctx, serverID)
	if links == nil {
		links = []models.ServerSshKey{}
	}
	return links, err
}
