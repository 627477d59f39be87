//go:build windows

package collectors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
)

const (
	approvedRoot      = `SOFTWARE\Microsoft\Windows\CurrentVersion\Explorer\StartupApproved`
	delayMarkerKey    = `Software\StartupOptimizer\Delayed`
	startupFolderPath = `Microsoft\Windows\Start Menu\Programs\Startup`
)

// runKey is one registry location whose values launch at logon, with the
// key where Explorer stores the matching enable/disable choice.
type runKey struct {
	root     registry.Key
	hive     string
	path     string
	approved string
}

func (k runKey) origin() string { return k.hive + `\` + k.path }

var runKeys = []runKey{
	{registry.CURRENT_USER, "HKCU", `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`, approvedRoot + `\Run`},
	{registry.LOCAL_MACHINE, "HKLM", `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`, approvedRoot + `\Run`},
	{registry.LOCAL_MACHINE, "HKLM", `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Run`, approvedRoot + `\Run32`},
}

// startupFolder is a Startup directory and its approval key root.
type startupFolder struct {
	dir  string
	root registry.Key
}

func startupFolders() []startupFolder {
	var folders []startupFolder
	if appData := os.Getenv("APPDATA"); appData != "" {
		folders = append(folders, startupFolder{filepath.Join(appData, startupFolderPath), registry.CURRENT_USER})
	}
	if programData := os.Getenv("ProgramData"); programData != "" {
		folders = append(folders, startupFolder{filepath.Join(programData, startupFolderPath), registry.LOCAL_MACHINE})
	}
	return folders
}

// windowsAutoruns manages Run key and Startup folder items. Disable and
// enable go through StartupApproved like Task Manager does; delay moves the
// launch into a logon scheduled task.
type windowsAutoruns struct {
	tasks   *logonTasks
	offsets func(ctx context.Context) (map[string]float64, error)
}

func newWindowsAutoruns() *windowsAutoruns {
	return &windowsAutoruns{
		tasks:   &logonTasks{run: runCommand, approvals: registryApprovals{}, markers: registryMarkers{}},
		offsets: processStartOffsets,
	}
}

func (w *windowsAutoruns) ListAutoruns(ctx context.Context) ([]AutorunRecord, error) {
	offsets, err := w.offsets(ctx)
	if err != nil {
		log.Debug("process start offsets unavailable", logging.KeyError, err)
	}
	markers := readDelayMarkers()

	var records []AutorunRecord
	opened := 0
	for _, rk := range runKeys {
		items, err := listRunKey(rk)
		if err != nil {
			if !errors.Is(err, registry.ErrNotExist) {
				log.Warn("cannot read run key", "key", rk.origin(), logging.KeyError, err)
			}
			continue
		}
		opened++
		records = append(records, items...)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	for _, folder := range startupFolders() {
		items, err := listStartupFolder(folder)
		if err != nil {
			log.Warn("cannot read startup folder", "dir", folder.dir, logging.KeyError, err)
			continue
		}
		opened++
		records = append(records, items...)
	}
	if opened == 0 {
		return nil, fmt.Errorf("no autorun location could be read")
	}

	for i := range records {
		r := &records[i]
		r.LoadTimeSeconds = loadTimeFor(offsets, r.Command)
		if r.State == "disabled" {
			if secs, ok := markers[delayMarkerName(r.Origin, r.Name)]; ok {
				r.State = "delayed"
				r.DelaySeconds = secs
			}
		}
		if r.ExecutablePath != "" {
			r.Publisher, r.Version = fileVersionInfo(r.ExecutablePath)
		}
	}
	return records, nil
}

func listRunKey(rk runKey) ([]AutorunRecord, error) {
	k, err := registry.OpenKey(rk.root, rk.path, registry.QUERY_VALUE)
	if err != nil {
		return nil, err
	}
	defer k.Close()

	names, err := k.ReadValueNames(-1)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", rk.origin(), err)
	}

	var records []AutorunRecord
	for _, name := range names {
		if name == "" {
			continue
		}
		command, valType, err := k.GetStringValue(name)
		if err != nil {
			continue
		}
		if valType == registry.EXPAND_SZ {
			if expanded, err := registry.ExpandString(command); err == nil {
				command = expanded
			}
		}
		state := "enabled"
		if !isApproved(rk.root, rk.approved, name) {
			state = "disabled"
		}
		records = append(records, AutorunRecord{
			Name:           name,
			Command:        command,
			ExecutablePath: executablePath(command),
			Origin:         rk.origin(),
			State:          state,
		})
	}
	return records, nil
}

func listStartupFolder(folder startupFolder) ([]AutorunRecord, error) {
	entries, err := os.ReadDir(folder.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []AutorunRecord
	for _, entry := range entries {
		if entry.IsDir() || strings.EqualFold(entry.Name(), "desktop.ini") {
			continue
		}
		fileName := entry.Name()
		fullPath := filepath.Join(folder.dir, fileName)
		state := "enabled"
		if !isApproved(folder.root, approvedRoot+`\StartupFolder`, fileName) {
			state = "disabled"
		}
		command := fullPath
		if strings.EqualFold(filepath.Ext(fileName), ".lnk") {
			if target, err := resolveShortcut(fullPath); err == nil && target != "" {
				command = target
			} else if err != nil {
				log.Debug("cannot resolve shortcut", "path", fullPath, logging.KeyError, err)
			}
		}
		records = append(records, AutorunRecord{
			Name:           strings.TrimSuffix(fileName, filepath.Ext(fileName)),
			Command:        command,
			ExecutablePath: executablePath(command),
			Origin:         fullPath,
			State:          state,
		})
	}
	return records, nil
}

// resolveShortcut returns the target command line of a .lnk file through
// the WScript.Shell automation object.
func resolveShortcut(path string) (string, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		// S_FALSE: COM was already initialized on this thread.
		if !errors.As(err, &oleErr) || oleErr.Code() != 1 {
			return "", fmt.Errorf("failed to initialize COM: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return "", fmt.Errorf("create WScript.Shell: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return "", fmt.Errorf("query WScript.Shell: %w", err)
	}
	defer shell.Release()

	shortcutVar, err := oleutil.CallMethod(shell, "CreateShortcut", path)
	if err != nil {
		return "", fmt.Errorf("open shortcut: %w", err)
	}
	shortcut := shortcutVar.ToIDispatch()
	defer shortcut.Release()

	targetVar, err := oleutil.GetProperty(shortcut, "TargetPath")
	if err != nil {
		return "", fmt.Errorf("read shortcut target: %w", err)
	}
	target := targetVar.ToString()
	argsVar, err := oleutil.GetProperty(shortcut, "Arguments")
	if err == nil {
		if args := strings.TrimSpace(argsVar.ToString()); args != "" {
			return `"` + target + `" ` + args, nil
		}
	}
	return target, nil
}

func isApproved(root registry.Key, keyPath, valueName string) bool {
	k, err := registry.OpenKey(root, keyPath, registry.QUERY_VALUE)
	if err != nil {
		return true
	}
	defer k.Close()
	data, _, err := k.GetBinaryValue(valueName)
	if err != nil {
		return true
	}
	return approvedIsEnabled(data)
}

func setApproved(root registry.Key, keyPath, valueName string, enabled bool) error {
	k, _, err := registry.CreateKey(root, keyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open %s: %w", keyPath, err)
	}
	defer k.Close()
	if err := k.SetBinaryValue(valueName, approvedValue(enabled, time.Now())); err != nil {
		return fmt.Errorf("write %s\\%s: %w", keyPath, valueName, err)
	}
	return nil
}

// approvalTarget resolves where the enable/disable choice for ref lives.
func approvalTarget(ref AutorunRef) (registry.Key, string, string, error) {
	for _, rk := range runKeys {
		if strings.EqualFold(rk.origin(), ref.Origin) {
			return rk.root, rk.approved, ref.Name, nil
		}
	}
	for _, folder := range startupFolders() {
		if strings.EqualFold(filepath.Dir(ref.Origin), folder.dir) {
			return folder.root, approvedRoot + `\StartupFolder`, filepath.Base(ref.Origin), nil
		}
	}
	return 0, "", "", fmt.Errorf("unknown autorun origin %q", ref.Origin)
}

func (w *windowsAutoruns) DisableAutorun(ctx context.Context, ref AutorunRef) error {
	return w.tasks.disable(ctx, ref)
}

func (w *windowsAutoruns) EnableAutorun(ctx context.Context, ref AutorunRef) error {
	return w.tasks.enable(ctx, ref)
}

// DelayAutorun moves the launch into a logon task that starts the registered
// command after the delay, then disables the original registration.
func (w *windowsAutoruns) DelayAutorun(ctx context.Context, ref AutorunRef, seconds int) error {
	return w.tasks.delay(ctx, ref, seconds)
}

// registryApprovals writes StartupApproved values.
type registryApprovals struct{}

func (registryApprovals) SetApproved(ref AutorunRef, enabled bool) error {
	root, keyPath, valueName, err := approvalTarget(ref)
	if err != nil {
		return err
	}
	return setApproved(root, keyPath, valueName, enabled)
}

// registryMarkers keeps delay markers as DWORD values under HKCU.
type registryMarkers struct{}

func (registryMarkers) Lookup(name string) (int, bool) {
	secs, ok := readDelayMarkers()[name]
	return secs, ok
}

func (registryMarkers) Write(name string, seconds int) error {
	k, _, err := registry.CreateKey(registry.CURRENT_USER, delayMarkerKey, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()
	return k.SetDWordValue(name, uint32(seconds))
}

func (registryMarkers) Delete(name string) error {
	k, err := registry.OpenKey(registry.CURRENT_USER, delayMarkerKey, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return err
	}
	defer k.Close()
	if err := k.DeleteValue(name); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return err
	}
	return nil
}

func readDelayMarkers() map[string]int {
	markers := make(map[string]int)
	k, err := registry.OpenKey(registry.CURRENT_USER, delayMarkerKey, registry.QUERY_VALUE)
	if err != nil {
		return markers
	}
	defer k.Close()
	names, err := k.ReadValueNames(-1)
	if err != nil {
		return markers
	}
	for _, name := range names {
		v, _, err := k.GetIntegerValue(name)
		if err != nil {
			continue
		}
		markers[name] = int(v)
	}
	return markers
}

// fileVersionInfo reads CompanyName and FileVersion from an executable's
// version resource. Missing resources yield empty strings.
func fileVersionInfo(path string) (publisher, version string) {
	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil || size == 0 {
		return "", ""
	}
	buf := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&buf[0])); err != nil {
		return "", ""
	}

	var fixed *windows.VS_FIXEDFILEINFO
	var fixedLen uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), `\`, unsafe.Pointer(&fixed), &fixedLen); err == nil && fixed != nil {
		version = fmt.Sprintf("%d.%d.%d.%d",
			fixed.FileVersionMS>>16, fixed.FileVersionMS&0xffff,
			fixed.FileVersionLS>>16, fixed.FileVersionLS&0xffff)
	}

	var trans *[2]uint16
	var transLen uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), `\VarFileInfo\Translation`, unsafe.Pointer(&trans), &transLen); err != nil || trans == nil || transLen < 4 {
		return "", version
	}
	sub := fmt.Sprintf(`\StringFileInfo\%04x%04x\CompanyName`, trans[0], trans[1])
	var company *uint16
	var companyLen uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), sub, unsafe.Pointer(&company), &companyLen); err == nil && company != nil {
		publisher = windows.UTF16PtrToString(company)
	}
	return publisher, version
}
