package store

import (
	"context"

	"github.com/johnngondi/vito/internal/models"
)

const serverColumns = "id, name, ip, port, ssh_user, created_at"

func (s *Store) CreateServer(ctx context.Context, srv *models.Server) error {
	if srv.CreatedAt.IsZero() {
		srv.CreatedAt = now()
	}
	if srv.Port == 0 {
		srv.Port = 22
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO servers ("+serverColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		srv.ID, srv.Name, srv.IP, srv.Port, srv.SSHUser, srv.CreatedAt)
	return err
}

func (s *Store) GetServer(ctx context.Context, id string) (models.Server, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+serverColumns+" FROM servers WHERE id = ?", id)
	srv, err := scanServer(row)
	return srv, notFound(err, "servers", id)
}

func (s *Store) ListServers(ctx context.Context) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+serverColumns+" FROM servers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []models.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

func scanServer(sc scanner) (models.Server, error) {
	var srv models.Server
	err := sc.Scan(&srv.ID, &srv.Name, &srv.IP, &srv.Port, &srv.SSHUser, &srv.CreatedAt)
	return srv, err
}
