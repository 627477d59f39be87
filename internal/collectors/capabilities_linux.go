//go:build linux

package collectors

func platformCapabilities() Capabilities {
	return Capabilities{
		Autoruns: newXDGAutoruns(),
		Services: &systemdServices{run: runCommand},
		Events:   &systemdBootEvents{run: runCommand, bootTime: bootTimestamp},
	}
}
