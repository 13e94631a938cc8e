package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/johnngondi/vito/internal/logger"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/queue"
	"github.com/johnngondi/vito/internal/remote"
	"github.com/johnngondi/vito/internal/state"
	"github.com/johnngondi/vito/internal/store"
	"golang.org/x/crypto/ssh"
)

// ValidatePublicKey checks that key is exactly one authorized_keys line.
func ValidatePublicKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("public key is empty")
	}
	if strings.ContainsAny(key, "\r\n") {
		return errors.New("public key must be a single line")
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
		return fmt.Errorf("malformed public key: %w", err)
	}
	return nil
}

type linkTarget struct {
	link   models.ServerSshKey
	key    models.SshKey
	server models.Server
}

// loadLink returns nil when the link no longer waits in want.
func (d Deps) loadLink(ctx context.Context, job models.Job, want models.SshKeyStatus) (*linkTarget, error) {
	p, err := queue.Decode[SshKeyPayload](job)
	if err != nil {
		return nil, err
	}
	st := store.New(d.DB)
	link, err := st.GetServerSshKey(ctx, p.LinkID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Ctx(ctx).Info().Msg("Server key link is gone, nothing to do")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if link.Status != want {
		logger.Ctx(ctx).Info().Str("status", string(link.Status)).Msg("Server key link already resolved, nothing to do")
		return nil, nil
	}
	key, err := st.GetSshKey(ctx, link.SshKeyID)
	if err != nil {
		return nil, err
	}
	server, err := st.GetServer(ctx, link.ServerID)
	if err != nil {
		return nil, err
	}
	return &linkTarget{link: link, key: key, server: server}, nil
}

// failLink moves a link waiting in from to failed, recording cause.
func (d Deps) failLink(ctx context.Context, job models.Job, from models.SshKeyStatus, cause error) error {
	p, err := queue.Decode[SshKeyPayload](job)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Cannot fail server key link")
		return nil
	}
	st := store.New(d.DB)
	link, err := st.GetServerSshKey(ctx, p.LinkID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if link.Status != from {
		return nil
	}
	err = st.TransitionServerSshKey(ctx, link.ID, from, models.SshKeyStatusFailed, errText(cause))
	if stale(err) {
		return nil
	}
	if err != nil {
		return err
	}
	d.Notifier.StatusChanged(ctx, models.StatusChange{
		Kind:       string(state.KindServerSshKey),
		ResourceID: link.ID,
		ServerID:   link.ServerID,
		Status:     string(models.SshKeyStatusFailed),
		Error:      errText(cause),
	})
	return nil
}

type deploySshKey struct {
	Deps
}

func (j *deploySshKey) Handle(ctx context.Context, job models.Job) error {
	t, err := j.loadLink(ctx, job, models.SshKeyStatusAdding)
	if err != nil || t == nil {
		return err
	}
	if err := ValidatePublicKey(t.key.PublicKey); err != nil {
		return queue.Permanent(err)
	}

	if _, err := j.exec(ctx, t.server, remote.AppendAuthorizedKey(t.key.PublicKey)); err != nil {
		return err
	}
	if _, err := j.exec(ctx, t.server, remote.HasAuthorizedKey(t.key.PublicKey)); err != nil {
		var ce *remote.CommandError
		if errors.As(err, &ce) && ce.ExitCode == 1 {
			return queue.Permanent(errors.New("key not present in authorized_keys after write"))
		}
		return err
	}

	err = store.New(j.DB).TransitionServerSshKey(ctx, t.link.ID, models.SshKeyStatusAdding, models.SshKeyStatusActive, "")
	if stale(err) {
		logger.Ctx(ctx).Info().Msg("Server key link changed while deploying")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("key", t.key.Name).Msg("SSH key deployed")
	j.Notifier.StatusChanged(ctx, models.StatusChange{
		Kind:       string(state.KindServerSshKey),
		ResourceID: t.link.ID,
		ServerID:   t.link.ServerID,
		Status:     string(models.SshKeyStatusActive),
	})
	return nil
}

func (j *deploySshKey) Failed(ctx context.Context, job models.Job, cause error) error {
	return j.failLink(ctx, job, models.SshKeyStatusAdding, cause)
}

type deleteSshKey struct {
	Deps
}

func (j *deleteSshKey) Handle(ctx context.Context, job models.Job) error {
	t, err := j.loadLink(ctx, job, models.SshKeyStatusDeleting)
	if err != nil || t == nil {
		return err
	}

	if _, err := j.exec(ctx, t.server, remote.RemoveAuthorizedKey(t.key.PublicKey)); err != nil {
		return err
	}

	err = store.New(j.DB).DeleteServerSshKey(ctx, t.link.ID)
	if stale(err) {
		return nil
	}
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("key", t.key.Name).Msg("SSH key removed from server")
	j.Notifier.StatusChanged(ctx, models.StatusChange{
		Kind:       string(state.KindServerSshKey),
		ResourceID: t.link.ID,
		ServerID:   t.link.ServerID,
		Status:     "deleted",
	})
	return nil
}

func (j *deleteSshKey) Failed(ctx context.Context, job models.Job, cause error) error {
	return j.failLink(ctx, job, models.SshKeyStatusDeleting, cause)
}
