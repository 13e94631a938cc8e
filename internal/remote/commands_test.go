package remote

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keyA = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIBmRkcnE9p8YkK9pS0kJb2pVqv6u2pQ0bA4C5r8b9c0d alice@laptop"
	keyB = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIH0xY1aQ7k3mN6pR2sT4uV8wX9yZ0aB1cD2eF3gH4iJ5 bob@desk"
)

// runLocal executes a remote command with bash against a fake home directory.
func runLocal(t *testing.T, home, cmd string) int {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	c := exec.Command("bash", "-c", cmd)
	c.Env = append(os.Environ(), "HOME="+home)
	err := c.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	require.NoError(t, err)
	return 0
}

func readKeys(t *testing.T, home string) []string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(home, ".ssh", "authorized_keys"))
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestAppendAuthorizedKey_AppendsOnce(t *testing.T) {
	home := t.TempDir()

	assert.Equal(t, 0, runLocal(t, home, AppendAuthorizedKey(keyA)))
	assert.Equal(t, 0, runLocal(t, home, AppendAuthorizedKey(keyA)))
	assert.Equal(t, 0, runLocal(t, home, AppendAuthorizedKey(keyB)))

	assert.Equal(t, []string{keyA, keyB}, readKeys(t, home))
	assert.Equal(t, 0, runLocal(t, home, HasAuthorizedKey(keyB)))
}

func TestAppendAuthorizedKey_KeepsExistingLines(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ssh"), 0o700))
	// No trailing newline on the existing line.
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ssh", "authorized_keys"), []byte(keyB), 0o600))

	assert.Equal(t, 0, runLocal(t, home, AppendAuthorizedKey(keyA)))
	assert.Equal(t, []string{keyB, keyA}, readKeys(t, home))
}

func TestRemoveAuthorizedKey(t *testing.T) {
	home := t.TempDir()
	runLocal(t, home, AppendAuthorizedKey(keyA))
	runLocal(t, home, AppendAuthorizedKey(keyB))

	assert.Equal(t, 0, runLocal(t, home, RemoveAuthorizedKey(keyA)))
	assert.Equal(t, []string{keyB}, readKeys(t, home))
	assert.NotEqual(t, 0, runLocal(t, home, HasAuthorizedKey(keyA)))

	// Already absent.
	assert.Equal(t, 0, runLocal(t, home, RemoveAuthorizedKey(keyA)))
	assert.Equal(t, []string{keyB}, readKeys(t, home))

	// Last key removed leaves an empty file.
	assert.Equal(t, 0, runLocal(t, home, RemoveAuthorizedKey(keyB)))
	b, err := os.ReadFile(filepath.Join(home, ".ssh", "authorized_keys"))
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestRemoveAuthorizedKey_KeepsOtherCopies(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ssh"), 0o700))
	content := keyA + "\n" + keyB + "\n" + keyA + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ssh", "authorized_keys"), []byte(content), 0o600))

	assert.Equal(t, 0, runLocal(t, home, RemoveAuthorizedKey(keyA)))
	assert.Equal(t, []string{keyB, keyA}, readKeys(t, home))
	assert.Equal(t, 0, runLocal(t, home, HasAuthorizedKey(keyA)))

	assert.Equal(t, 0, runLocal(t, home, RemoveAuthorizedKey(keyA)))
	assert.Equal(t, []string{keyB}, readKeys(t, home))
}

func TestRemoveAuthorizedKey_NoFile(t *testing.T) {
	home := t.TempDir()
	assert.Equal(t, 0, runLocal(t, home, RemoveAuthorizedKey(keyA)))
}
