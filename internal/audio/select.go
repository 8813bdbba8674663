package audio

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultPreferredDevices are the virtual-audio devices that carry the
// system mix on Linux desktops.
var DefaultPreferredDevices = []string{"pulse", "pipewire"}

// SelectOptions controls device selection
type SelectOptions struct {
	// DeviceName, when set, must match a device name exactly.
	DeviceName string
	// Preferred holds case-insensitive name substrings.
	Preferred []string
}

// SelectDevice picks the capture device. The first match wins: the explicitly
// named device, then the first enumerated device matching any preferred
// substring, then the default input device.
func SelectDevice(b Backend, opts SelectOptions) (Device, error) {
	devices, err := b.Devices()
	if err != nil {
		// Fall through to the default device
		devices = nil
	}

	if opts.DeviceName != "" {
		for _, d := range devices {
			if d.Name == opts.DeviceName && d.HasInput() {
				return d, nil
			}
		}
	}

	for _, d := range devices {
		if !d.HasInput() {
			continue
		}
		name := strings.ToLower(d.Name)
		if slices.ContainsFunc(opts.Preferred, func(pref string) bool {
			return pref != "" && strings.Contains(name, strings.ToLower(pref))
		}) {
			return d, nil
		}
	}

	def, defErr := b.DefaultInputDevice()
	if defErr == nil && def.HasInput() {
		return def, nil
	}

	if err != nil {
		return Device{}, fmt.Errorf("%w: enumeration failed: %v", ErrNoDeviceFound, err)
	}
	return Device{}, ErrNoDeviceFound
}

// ListInputDevices returns every input-capable device, flagging the default.
func ListInputDevices(b Backend) ([]Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	def, defErr := b.DefaultInputDevice()

	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if !d.HasInput() {
			continue
		}
		d.Default = defErr == nil && d.Index == def.Index && d.Name == def.Name
		result = append(result, d)
	}

	return result, nil
}
