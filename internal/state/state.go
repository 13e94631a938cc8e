// Package state defines the legal statuses and transitions of every
// resource family the engine drives.
package state

import (
	"errors"
	"fmt"

	"github.com/johnngondi/vito/internal/models"
)

// Kind identifies a resource family.
type Kind string

const (
	KindServerSshKey Kind = "server_ssh_key"
	KindBackupFile   Kind = "backup_file"
	KindBackup       Kind = "backup"
)

// Operation is an operator or scheduler intent that starts asynchronous work.
type Operation string

const (
	OpDeploy    Operation = "deploy"
	OpDelete    Operation = "delete"
	OpBackupRun Operation = "backup-run"
)

// ErrInvalidTransition matches every *InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid status transition")

// InvalidTransitionError is a logic defect, never a retry condition.
type InvalidTransitionError struct {
	Kind Kind
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s cannot move from %q to %q", ErrInvalidTransition, e.Kind, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type machine struct {
	terminal    map[string]bool
	transitions map[string][]string
}

var machines = map[Kind]machine{
	KindServerSshKey: {
		terminal: map[string]bool{
			string(models.SshKeyStatusActive): true,
			string(models.SshKeyStatusFailed): true,
		},
		transitions: map[string][]string{
			string(models.SshKeyStatusAdding):   {string(models.SshKeyStatusActive), string(models.SshKeyStatusFailed)},
			string(models.SshKeyStatusActive):   {string(models.SshKeyStatusDeleting)},
			string(models.SshKeyStatusDeleting): {string(models.SshKeyStatusFailed)},
			string(models.SshKeyStatusFailed):   {string(models.SshKeyStatusAdding), string(models.SshKeyStatusDeleting)},
		},
	},
	KindBackupFile: {
		terminal: map[string]bool{
			string(models.BackupFileStatusSuccess): true,
			string(models.BackupFileStatusFailed):  true,
		},
		transitions: map[string][]string{
			string(models.BackupFileStatusCreating): {string(models.BackupFileStatusSuccess), string(models.BackupFileStatusFailed)},
		},
	},
	KindBackup: {
		terminal: map[string]bool{
			string(models.BackupStatusRunning): true,
			string(models.BackupStatusPaused):  true,
		},
		transitions: map[string][]string{
			string(models.BackupStatusRunning): {string(models.BackupStatusPaused)},
			string(models.BackupStatusPaused):  {string(models.BackupStatusRunning)},
		},
	},
}

// CanTransition reports whether a resource of the given kind may move from one status to another.
func CanTransition(kind Kind, from, to string) bool {
	m, ok := machines[kind]
	if !ok {
		return false
	}
	for _, next := range m.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate returns an *InvalidTransitionError when the transition is illegal.
func Validate[S ~string](kind Kind, from, to S) error {
	if !CanTransition(kind, string(from), string(to)) {
		return &InvalidTransitionError{Kind: kind, From: string(from), To: string(to)}
	}
	return nil
}

// IsTerminal reports whether no job is needed to resolve the status.
func IsTerminal[S ~string](kind Kind, status S) bool {
	return machines[kind].terminal[string(status)]
}

// IsKnown reports whether status belongs to the family at all.
func IsKnown[S ~string](kind Kind, status S) bool {
	m, ok := machines[kind]
	if !ok {
		return false
	}
	if m.terminal[string(status)] {
		return true
	}
	_, ok = m.transitions[string(status)]
	return ok
}

// InitialState returns the non-terminal status a record enters when op is requested.
func InitialState(op Operation) (Kind, string, error) {
	switch op {
	case OpDeploy:
		return KindServerSshKey, string(models.SshKeyStatusAdding), nil
	case OpDelete:
		return KindServerSshKey, string(models.SshKeyStatusDeleting), nil
	case OpBackupRun:
		return KindBackupFile, string(models.BackupFileStatusCreating), nil
	}
	return "", "", fmt.Errorf("unknown operation %q", op)
}
