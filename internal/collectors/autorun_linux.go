//go:build linux

package collectors

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/xdg"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
)

const autostartOriginPrefix = "autostart/"

// xdgAutoruns manages XDG autostart entries. User entries in
// $XDG_CONFIG_HOME/autostart shadow system entries with the same file name,
// and every change is written to the user directory.
type xdgAutoruns struct {
	userDir    string
	owner      *fileOwner // set when files must be handed to the sudo caller
	systemDirs []string
	offsets    func(ctx context.Context) (map[string]float64, error)
}

// fileOwner is the account that should own files written on its behalf.
type fileOwner struct {
	uid, gid int
}

func newXDGAutoruns() *xdgAutoruns {
	systemDirs := make([]string, 0, len(xdg.ConfigDirs))
	for _, dir := range xdg.ConfigDirs {
		systemDirs = append(systemDirs, filepath.Join(dir, "autostart"))
	}
	userDir, owner := resolveUserAutostart(os.Getenv, user.Lookup, os.Geteuid(), xdg.ConfigHome)
	return &xdgAutoruns{
		userDir:    userDir,
		owner:      owner,
		systemDirs: systemDirs,
		offsets:    processStartOffsets,
	}
}

// resolveUserAutostart picks the autostart directory to manage. Under sudo
// HOME points at root, so the invoking user's directory is used instead and
// written files are handed back to that user.
func resolveUserAutostart(getenv func(string) string, lookup func(string) (*user.User, error), euid int, configHome string) (string, *fileOwner) {
	fallback := filepath.Join(configHome, "autostart")
	name := getenv("SUDO_USER")
	if euid != 0 || name == "" || name == "root" {
		return fallback, nil
	}
	u, err := lookup(name)
	if err != nil {
		log.Warn("cannot resolve sudo caller, managing root's autostart entries", "user", name, logging.KeyError, err)
		return fallback, nil
	}
	uid, uerr := strconv.Atoi(u.Uid)
	gid, gerr := strconv.Atoi(u.Gid)
	if uerr != nil || gerr != nil || u.HomeDir == "" {
		return fallback, nil
	}
	return filepath.Join(u.HomeDir, ".config", "autostart"), &fileOwner{uid: uid, gid: gid}
}

// effectiveFiles maps file name to the path that wins for it.
func (a *xdgAutoruns) effectiveFiles() (map[string]string, error) {
	files := make(map[string]string)
	// Lowest precedence first: later system dirs, then earlier, then user.
	dirs := make([]string, 0, len(a.systemDirs)+1)
	for i := len(a.systemDirs) - 1; i >= 0; i-- {
		dirs = append(dirs, a.systemDirs[i])
	}
	dirs = append(dirs, a.userDir)

	readable := 0
	var firstErr error
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Warn("cannot read autostart directory", "dir", dir, logging.KeyError, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		readable++
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".desktop") {
				continue
			}
			files[e.Name()] = filepath.Join(dir, e.Name())
		}
	}
	if readable == 0 && firstErr != nil {
		return nil, fmt.Errorf("read autostart directories: %w", firstErr)
	}
	return files, nil
}

func (a *xdgAutoruns) ListAutoruns(ctx context.Context) ([]AutorunRecord, error) {
	files, err := a.effectiveFiles()
	if err != nil {
		return nil, err
	}

	offsets, err := a.offsets(ctx)
	if err != nil {
		log.Debug("process start offsets unavailable", logging.KeyError, err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]AutorunRecord, 0, len(names))
	for _, fileName := range names {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		path := files[fileName]
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("cannot read autostart entry", "path", path, logging.KeyError, err)
			continue
		}
		entry, err := readDesktopAutorun(parseDesktopFile(data), strings.TrimSuffix(fileName, ".desktop"))
		if err != nil {
			log.Warn("invalid autostart entry", "path", path, logging.KeyError, err)
			continue
		}
		records = append(records, AutorunRecord{
			Name:            entry.Name,
			Command:         entry.Exec,
			ExecutablePath:  executablePath(entry.Exec),
			Origin:          autostartOriginPrefix + fileName,
			Publisher:       entry.Comment,
			LoadTimeSeconds: loadTimeFor(offsets, entry.Exec),
			State:           entry.state(),
			DelaySeconds:    entry.DelaySeconds,
		})
	}
	return records, nil
}

func (a *xdgAutoruns) DisableAutorun(ctx context.Context, ref AutorunRef) error {
	return a.update(ctx, ref, applyDesktopDisable)
}

func (a *xdgAutoruns) EnableAutorun(ctx context.Context, ref AutorunRef) error {
	return a.update(ctx, ref, applyDesktopEnable)
}

func (a *xdgAutoruns) DelayAutorun(ctx context.Context, ref AutorunRef, seconds int) error {
	return a.update(ctx, ref, func(f *desktopFile) { applyDesktopDelay(f, seconds) })
}

// update reads the effective entry, applies edit and writes the result to
// the user autostart directory through a temp file and rename.
func (a *xdgAutoruns) update(ctx context.Context, ref AutorunRef, edit func(*desktopFile)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fileName, err := autostartFileName(ref.Origin)
	if err != nil {
		return err
	}
	files, err := a.effectiveFiles()
	if err != nil {
		return err
	}
	src, ok := files[fileName]
	if !ok {
		return fmt.Errorf("autostart entry %s not found", fileName)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	f := parseDesktopFile(data)
	edit(f)

	if err := mkdirAllOwned(a.userDir, a.owner); err != nil {
		return fmt.Errorf("create %s: %w", a.userDir, err)
	}
	dst := filepath.Join(a.userDir, fileName)
	tmp, err := os.CreateTemp(a.userDir, "."+fileName+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(f.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if a.owner != nil {
		if err := os.Chown(tmpName, a.owner.uid, a.owner.gid); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("chown %s: %w", dst, err)
		}
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}

// mkdirAllOwned creates dir and any missing parents, handing the new
// directories to owner when it is set.
func mkdirAllOwned(dir string, owner *fileOwner) error {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if owner == nil {
		return nil
	}
	for _, d := range missing {
		if err := os.Chown(d, owner.uid, owner.gid); err != nil {
			return err
		}
	}
	return nil
}

func autostartFileName(origin string) (string, error) {
	name, ok := strings.CutPrefix(origin, autostartOriginPrefix)
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." || !strings.HasSuffix(name, ".desktop") {
		return "", fmt.Errorf("invalid autostart origin %q", origin)
	}
	return name, nil
}
