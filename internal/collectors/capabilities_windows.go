//go:build windows

package collectors

func platformCapabilities() Capabilities {
	return Capabilities{
		Autoruns: newWindowsAutoruns(),
		Services: scmServices{},
		Events:   &diagnosticsBootEvents{run: runCommand, bootTime: bootTimestamp},
	}
}
