package store

import (
	"context"
	"time"

	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/state"
)

func (s *Store) CreateSshKey(ctx context.Context, key *models.SshKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ssh_keys (id, name, public_key, created_at) VALUES (?, ?, ?, ?)",
		key.ID, key.Name, key.PublicKey, key.CreatedAt)
	return err
}

func (s *Store) GetSshKey(ctx context.Context, id string) (models.SshKey, error) {
	var key models.SshKey
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, public_key, created_at FROM ssh_keys WHERE id = ?", id).
		Scan(&key.ID, &key.Name, &key.PublicKey, &key.CreatedAt)
	return key, notFound(err, "ssh_keys", id)
}

func (s *Store) ListSshKeys(ctx context.Context) ([]models.SshKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, public_key, created_at FROM ssh_keys ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.SshKey
	for rows.Next() {
		var key models.SshKey
		if err := rows.Scan(&key.ID, &key.Name, &key.PublicKey, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

const linkColumns = "l.id, l.server_id, l.ssh_key_id, l.status, l.last_error, l.created_at, l.updated_at, k.name"
const linkFrom = " FROM server_ssh_keys l JOIN ssh_keys k ON k.id = l.ssh_key_id"

// CreateServerSshKey inserts a link. Its status must be the initial deploy status.
func (s *Store) CreateServerSshKey(ctx context.Context, link *models.ServerSshKey) error {
	_, initial, _ := state.InitialState(state.OpDeploy)
	if string(link.Status) != initial {
		return &state.InvalidTransitionError{Kind: state.KindServerSshKey, From: "", To: string(link.Status)}
	}
	ts := now()
	link.CreatedAt, link.UpdatedAt = ts, ts
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO server_ssh_keys (id, server_id, ssh_key_id, status, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?)`,
		link.ID, link.ServerID, link.SshKeyID, link.Status, ts, ts)
	return err
}

func (s *Store) GetServerSshKey(ctx context.Context, id string) (models.ServerSshKey, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+linkColumns+linkFrom+" WHERE l.id = ?", id)
	link, err := scanLink(row)
	return link, notFound(err, "server_ssh_keys", id)
}

// FindServerSshKey returns the link between a server and a key.
func (s *Store) FindServerSshKey(ctx context.Context, serverID, keyID string) (models.ServerSshKey, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+linkColumns+linkFrom+" WHERE l.server_id = ? AND l.ssh_key_id = ?", serverID, keyID)
	link, err := scanLink(row)
	return link, notFound(err, "server_ssh_keys", serverID+"/"+keyID)
}

func (s *Store) ListServerSshKeys(ctx context.Context, serverID string) ([]models.ServerSshKey, error) {
	return s.queryLinks(ctx, "SELECT "+linkColumns+linkFrom+" WHERE l.server_id = ? ORDER BY l.created_at", serverID)
}

// ListStaleServerSshKeys returns links in a non-terminal status not updated since before.
func (s *Store) ListStaleServerSshKeys(ctx context.Context, before time.Time) ([]models.ServerSshKey, error) {
	return s.queryLinks(ctx,
		"SELECT "+linkColumns+linkFrom+" WHERE l.status IN (?, ?) AND l.updated_at < ? ORDER BY l.updated_at",
		models.SshKeyStatusAdding, models.SshKeyStatusDeleting, before.UTC())
}

// TransitionServerSshKey moves a link from one status to another if it is still in from.
func (s *Store) TransitionServerSshKey(ctx context.Context, id string, from, to models.SshKeyStatus, lastError string) error {
	if err := state.Validate(state.KindServerSshKey, from, to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE server_ssh_keys SET status = ?, last_error = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, lastError, now(), id, from)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, "server_ssh_keys", id)
}

// DeleteServerSshKey removes a link once its key is gone from the server.
// Only links in deleting may be removed.
func (s *Store) DeleteServerSshKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM server_ssh_keys WHERE id = ? AND status = ?", id, models.SshKeyStatusDeleting)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, "server_ssh_keys", id)
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]models.ServerSshKey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []models.ServerSshKey
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func scanLink(sc scanner) (models.ServerSshKey, error) {
	var l models.ServerSshKey
	err := sc.Scan(&l.ID, &l.ServerID, &l.SshKeyID, &l.Status, &l.LastError, &l.CreatedAt, &l.UpdatedAt, &l.KeyName)
	return l, err
}
