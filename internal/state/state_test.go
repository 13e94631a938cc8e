package state

import (
	"errors"
	"testing"

	"github.com/johnngondi/vito/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_SshKeyLinks(t *testing.T) {
	tests := []struct {
		from, to models.SshKeyStatus
		want     bool
	}{
		{models.SshKeyStatusAdding, models.SshKeyStatusActive, true},
		{models.SshKeyStatusAdding, models.SshKeyStatusFailed, true},
		{models.SshKeyStatusActive, models.SshKeyStatusDeleting, true},
		{models.SshKeyStatusDeleting, models.SshKeyStatusFailed, true},
		{models.SshKeyStatusFailed, models.SshKeyStatusDeleting, true},
		{models.SshKeyStatusFailed, models.SshKeyStatusAdding, true},
		{models.SshKeyStatusAdding, models.SshKeyStatusDeleting, false},
		{models.SshKeyStatusActive, models.SshKeyStatusFailed, false},
		{models.SshKeyStatusDeleting, models.SshKeyStatusActive, false},
		{models.SshKeyStatusActive, models.SshKeyStatusAdding, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(KindServerSshKey, string(tt.from), string(tt.to)))
		})
	}
}

func TestCanTransition_BackupFiles(t *testing.T) {
	assert.True(t, CanTransition(KindBackupFile, "creating", "success"))
	assert.True(t, CanTransition(KindBackupFile, "creating", "failed"))
	assert.False(t, CanTransition(KindBackupFile, "success", "failed"))
	assert.False(t, CanTransition(KindBackupFile, "failed", "creating"))
	assert.False(t, CanTransition(KindBackupFile, "success", "creating"))
}

func TestCanTransition_UnknownKind(t *testing.T) {
	assert.False(t, CanTransition(Kind("volume"), "a", "b"))
}

func TestValidate_ReturnsInvalidTransition(t *testing.T) {
	err := Validate(KindBackupFile, models.BackupFileStatusSuccess, models.BackupFileStatusCreating)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, KindBackupFile, ite.Kind)
	assert.Equal(t, "success", ite.From)

	assert.NoError(t, Validate(KindServerSshKey, models.SshKeyStatusAdding, models.SshKeyStatusActive))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(KindServerSshKey, models.SshKeyStatusActive))
	assert.True(t, IsTerminal(KindServerSshKey, models.SshKeyStatusFailed))
	assert.False(t, IsTerminal(KindServerSshKey, models.SshKeyStatusAdding))
	assert.False(t, IsTerminal(KindServerSshKey, models.SshKeyStatusDeleting))
	assert.True(t, IsTerminal(KindBackupFile, models.BackupFileStatusSuccess))
	assert.False(t, IsTerminal(KindBackupFile, models.BackupFileStatusCreating))
}

func TestIsKnown(t *testing.T) {
	assert.True(t, IsKnown(KindServerSshKey, models.SshKeyStatusDeleting))
	assert.False(t, IsKnown(KindServerSshKey, models.SshKeyStatus("removed")))
	assert.True(t, IsKnown(KindBackupFile, models.BackupFileStatusFailed))
}

func TestInitialState(t *testing.T) {
	kind, status, err := InitialState(OpDeploy)
	require.NoError(t, err)
	assert.Equal(t, KindServerSshKey, kind)
	assert.Equal(t, "adding", status)

	_, status, err = InitialState(OpDelete)
	require.NoError(t, err)
	assert.Equal(t, "deleting", status)

	kind, status, err = InitialState(OpBackupRun)
	require.NoError(t, err)
	assert.Equal(t, KindBackupFile, kind)
	assert.Equal(t, "creating", status)

	_, _, err = InitialState(Operation("restore"))
	assert.Error(t, err)
}
