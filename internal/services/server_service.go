package services

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/store"
)

// ServerServiceProvider defines the interface for server services.
type ServerServiceProvider interface {
	CreateServer(ctx context.Context, server models.Server) (models.Server, error)
	GetServer(ctx context.Context, id string) (models.Server, error)
	ListServers(ctx context.Context) ([]models.Server, error)
}

// ServerService manages the servers the engine reaches over SSH.
type ServerService struct {
	db           *sql.DB
	eventService EventServiceProvider
}

// NewServerService creates a new ServerService.
func NewServerService(db *sql.DB, eventService EventServiceProvider) *ServerService {
	return &ServerService{db: db, eventService: eventService}
}

// CreateServer registers a server.
func (s *ServerService) CreateServer(ctx context.Context, server models.Server) (models.Server, error) {
	server.Name = strings.TrimSpace(server.Name)
	if server.Name == "" {
		return models.Server{}, fmt.Errorf("%w: server name is required", ErrInvalidInput)
	}
	if net.ParseIP(server.IP) == nil {
		return models.Server{}, fmt.Errorf("%w: %q is not an IP address", ErrInvalidInput, server.IP)
	}
	if server.Port < 0 || server.Port > 65535 {
		return models.Server{}, fmt.Errorf("%w: invalid port %d", ErrInvalidInput, server.Port)
	}
	if server.SSHUser == "" {
		server.SSHUser = "vito"
	}
	server.ID = uuid.New().String()

	if err := store.New(s.db).CreateServer(ctx, &server); err != nil {
		return models.Server{}, err
	}
	s.eventService.CreateEvent(ctx, "server.create", "info", fmt.Sprintf("Server '%s' added.", server.Name), &server.ID)
	return server, nil
}

func (s *ServerService) GetServer(ctx context.Context, id string) (models.Server, error) {
	return store.New(s.db).GetServer(ctx, id)
}

func (s *ServerService) ListServers(ctx context.Context) ([]models.Server, error) {
	return store.New(s.db).ListServers(ctx)
}
