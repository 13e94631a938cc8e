package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/johnngondi/vito/internal/models"
)

func (s *Store) CreateStorageProvider(ctx context.Context, p *models.StorageProvider) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	creds, err := json.Marshal(p.Credentials)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO storage_providers (id, name, provider, credentials_json, created_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.Name, p.Provider, string(creds), p.CreatedAt)
	return err
}

func (s *Store) GetStorageProvider(ctx context.Context, id string) (models.StorageProvider, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, provider, credentials_json, created_at FROM storage_providers WHERE id = ?", id)
	p, err := scanStorageProvider(row)
	return p, notFound(err, "storage_providers", id)
}

func (s *Store) ListStorageProviders(ctx context.Context) ([]models.StorageProvider, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, provider, credentials_json, created_at FROM storage_providers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []models.StorageProvider
	for rows.Next() {
		p, err := scanStorageProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func scanStorageProvider(sc scanner) (models.StorageProvider, error) {
	var p models.StorageProvider
	var creds string
	if err := sc.Scan(&p.ID, &p.Name, &p.Provider, &creds, &p.CreatedAt); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(creds), &p.Credentials); err != nil {
		return p, fmt.Errorf("decode credentials of storage provider %s: %w", p.ID, err)
	}
	return p, nil
}

func (s *Store) CreateDatabase(ctx context.Context, d *models.Database) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO databases (id, server_id, name, engine, created_at) VALUES (?, ?, ?, ?, ?)",
		d.ID, d.ServerID, d.Name, d.Engine, d.CreatedAt)
	return err
}

func (s *Store) GetDatabase(ctx context.Context, id string) (models.Database, error) {
	var d models.Database
	err := s.db.QueryRowContext(ctx,
		"SELECT id, server_id, name, engine, created_at FROM databases WHERE id = ?", id).
		Scan(&d.ID, &d.ServerID, &d.Name, &d.Engine, &d.CreatedAt)
	return d, notFound(err, "databases", id)
}

func (s *Store) ListDatabases(ctx context.Context, serverID string) ([]models.Database, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, server_id, name, engine, created_at FROM databases WHERE server_id = ? ORDER BY name", serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dbs []models.Database
	for rows.Next() {
		var d models.Database
		if err := rows.Scan(&d.ID, &d.ServerID, &d.Name, &d.Engine, &d.CreatedAt); err != nil {
			return nil, err
		}
		dbs = append(dbs, d)
	}
	return dbs, rows.Err()
}
