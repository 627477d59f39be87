//go:build linux

package collectors

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestXDGAutoruns(t *testing.T) (*xdgAutoruns, string, string) {
	t.Helper()
	root := t.TempDir()
	user := filepath.Join(root, "home", "autostart")
	system := filepath.Join(root, "etc", "xdg", "autostart")
	require.NoError(t, os.MkdirAll(system, 0o755))
	a := &xdgAutoruns{
		userDir:    user,
		systemDirs: []string{system},
		offsets: func(context.Context) (map[string]float64, error) {
			return map[string]float64{"nextcloud": 7.5}, nil
		},
	}
	return a, user, system
}

func TestXDGAutorunsListAndShadowing(t *testing.T) {
	a, user, system := newTestXDGAutoruns(t)
	require.NoError(t, os.WriteFile(filepath.Join(system, "nextcloud.desktop"),
		[]byte("[Desktop Entry]\nName=Nextcloud\nExec=/usr/bin/nextcloud --background\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(system, "tracker.desktop"),
		[]byte("[Desktop Entry]\nName=Tracker\nExec=/usr/libexec/tracker-miner\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(system, "README"), []byte("not an entry"), 0o644))
	require.NoError(t, os.MkdirAll(user, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(user, "tracker.desktop"),
		[]byte("[Desktop Entry]\nName=Tracker\nExec=/usr/libexec/tracker-miner\nHidden=true\n"), 0o644))

	records, err := a.ListAutoruns(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Nextcloud", records[0].Name)
	assert.Equal(t, "autostart/nextcloud.desktop", records[0].Origin)
	assert.Equal(t, "/usr/bin/nextcloud", records[0].ExecutablePath)
	assert.InDelta(t, 7.5, records[0].LoadTimeSeconds, 1e-9)
	assert.Equal(t, "enabled", records[0].State)

	assert.Equal(t, "disabled", records[1].State, "user entry shadows the system entry")
}

func TestXDGAutorunsMutationsWriteUserOverride(t *testing.T) {
	a, user, system := newTestXDGAutoruns(t)
	systemFile := filepath.Join(system, "nextcloud.desktop")
	original := []byte("[Desktop Entry]\nName=Nextcloud\nExec=/usr/bin/nextcloud\n")
	require.NoError(t, os.WriteFile(systemFile, original, 0o644))
	ref := AutorunRef{Name: "Nextcloud", Origin: "autostart/nextcloud.desktop"}

	require.NoError(t, a.DelayAutorun(context.Background(), ref, 45))
	records, err := a.ListAutoruns(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "delayed", records[0].State)
	assert.Equal(t, 45, records[0].DelaySeconds)
	assert.Equal(t, "autostart/nextcloud.desktop", records[0].Origin, "origin is stable across overrides")

	require.NoError(t, a.DisableAutorun(context.Background(), ref))
	records, err = a.ListAutoruns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "disabled", records[0].State)

	require.NoError(t, a.EnableAutorun(context.Background(), ref))
	records, err = a.ListAutoruns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "enabled", records[0].State)

	got, err := os.ReadFile(systemFile)
	require.NoError(t, err)
	assert.Equal(t, original, got, "system entry is never modified")
	_, err = os.Stat(filepath.Join(user, "nextcloud.desktop"))
	assert.NoError(t, err)
}

func TestXDGAutorunsRejectsBadOrigin(t *testing.T) {
	a, _, _ := newTestXDGAutoruns(t)
	for _, origin := range []string{"", "autostart/../passwd.desktop", "/etc/xdg/autostart/x.desktop", "autostart/x.sh"} {
		err := a.DisableAutorun(context.Background(), AutorunRef{Name: "x", Origin: origin})
		assert.Error(t, err, origin)
	}
	err := a.DisableAutorun(context.Background(), AutorunRef{Name: "x", Origin: "autostart/missing.desktop"})
	assert.Error(t, err)
}

func TestResolveUserAutostartUnderSudo(t *testing.T) {
	env := map[string]string{"SUDO_USER": "alice"}
	getenv := func(k string) string { return env[k] }
	lookup := func(name string) (*user.User, error) {
		if name != "alice" {
			return nil, user.UnknownUserError(name)
		}
		return &user.User{Username: "alice", Uid: "1000", Gid: "1000", HomeDir: "/home/alice"}, nil
	}

	dir, owner := resolveUserAutostart(getenv, lookup, 0, "/root/.config")
	assert.Equal(t, "/home/alice/.config/autostart", dir)
	require.NotNil(t, owner)
	assert.Equal(t, fileOwner{uid: 1000, gid: 1000}, *owner)

	dir, owner = resolveUserAutostart(getenv, lookup, 1000, "/home/alice/.config")
	assert.Equal(t, "/home/alice/.config/autostart", dir, "not elevated: XDG config home is already the caller's")
	assert.Nil(t, owner)

	env["SUDO_USER"] = "root"
	dir, owner = resolveUserAutostart(getenv, lookup, 0, "/root/.config")
	assert.Equal(t, "/root/.config/autostart", dir)
	assert.Nil(t, owner)

	env["SUDO_USER"] = "ghost"
	dir, owner = resolveUserAutostart(getenv, lookup, 0, "/root/.config")
	assert.Equal(t, "/root/.config/autostart", dir)
	assert.Nil(t, owner)
}

func TestMkdirAllOwnedCreatesMissingParents(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".config", "autostart")

	require.NoError(t, mkdirAllOwned(dir, nil))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Owning the files ourselves is always permitted.
	self := &fileOwner{uid: os.Getuid(), gid: os.Getgid()}
	require.NoError(t, mkdirAllOwned(filepath.Join(root, "other", "autostart"), self))
}
