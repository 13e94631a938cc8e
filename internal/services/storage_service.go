package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/store"
	"github.com/samber/lo"
)

var (
	storageProviders = []string{"s3", "gcs", "local"}
	databaseEngines  = []string{"mysql", "mariadb", "postgresql"}
)

// StorageServiceProvider defines the interface for storage provider services.
type StorageServiceProvider interface {
	CreateStorageProvider(ctx context.Context, p models.StorageProvider) (models.StorageProvider, error)
	GetStorageProvider(ctx context.Context, id string) (models.StorageProvider, error)
	ListStorageProviders(ctx context.Context) ([]models.StorageProvider, error)
}

// StorageService manages backup destinations.
type StorageService struct {
	db *sql.DB
}

// NewStorageService creates a new StorageService.
func NewStorageService(db *sql.DB) *StorageService {
	return &StorageService{db: db}
}

func (s *StorageService) CreateStorageProvider(ctx context.Context, p models.StorageProvider) (models.StorageProvider, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return models.StorageProvider{}, fmt.Errorf("%w: storage name is required", ErrInvalidInput)
	}
	if !lo.Contains(storageProviders, p.Provider) {
		return models.StorageProvider{}, fmt.Errorf("%w: provider must be one of %s", ErrInvalidInput, strings.Join(storageProviders, ", "))
	}
	if p.Provider != "local" && p.Credentials.Bucket == "" {
		return models.StorageProvider{}, fmt.Errorf("%w: %s storage requires a bucket", ErrInvalidInput, p.Provider)
	}
	p.ID = uuid.New().String()
	if err := store.New(s.db).CreateStorageProvider(ctx, &p); err != nil {
		return models.StorageProvider{}, err
	}
	return p, nil
}

func (s *StorageService) GetStorageProvider(ctx context.Context, id string) (models.StorageProvider, error) {
	return store.New(s.db).GetStorageProvider(ctx, id)
}

func (s *StorageService) ListStorageProviders(ctx context.Context) ([]models.StorageProvider, error) {
	return store.New(s.db).ListStorageProviders(ctx)
}

// DatabaseServiceProvider defines the interface for database services.
type DatabaseServiceProvider interface {
	CreateDatabase(ctx context.Context, d models.Database) (models.Database, error)
	ListDatabases(ctx context.Context, serverID string) ([]models.Database, error)
}

// DatabaseService manages the databases that can be backed up.
type DatabaseService struct {
	db *sql.DB
}

// NewDatabaseService creates a new DatabaseService.
func NewDatabaseService(db *sql.DB) *DatabaseService {
	return &DatabaseService{db: db}
}

func (s *DatabaseService) CreateDatabase(ctx context.Context, d models.Database) (models.Database, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return models.Database{}, fmt.Errorf("%w: database name is required", ErrInvalidInput)
	}
	if !lo.Contains(databaseEngines, d.Engine) {
		return models.Database{}, fmt.Errorf("%w: engine must be one of %s", ErrInvalidInput, strings.Join(databaseEngines, ", "))
	}
	st := store.New(s.db)
	if _, err := st.GetServer(ctx, d.ServerID); err != nil {
		return models.Database{}, err
	}
	d.ID = uuid.New().String()
	if err := st.CreateDatabase(ctx, &d); err != nil {
		return models.Database{}, err
	}
	return d, nil
}

func (s *DatabaseService) ListDatabases(ctx context.Context, serverID string) ([]models.Database, error) {
	return store.New(s.db).ListDatabases(ctx, serverID)
}
