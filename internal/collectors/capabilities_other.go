//go:build !linux && !windows

package collectors

// Other platforms have no capabilities; every source reports
// ErrUnsupportedPlatform.
func platformCapabilities() Capabilities {
	return Capabilities{}
}
