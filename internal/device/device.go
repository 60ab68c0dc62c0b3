// Package device opens the microphone and speaker through PortAudio and
// resolves devices by name.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

var (
	// ErrNoDevice is returned when no device matches a name.
	ErrNoDevice = errors.New("device: no matching device")

	// ErrAmbiguousDevice is returned when a name is a substring of more than
	// one device name and none matches exactly.
	ErrAmbiguousDevice = errors.New("device: multiple devices contain the name")
)

// Direction is the stream direction a device must support.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Info describes one audio device.
type Info struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	DefaultInput      bool
	DefaultOutput     bool
}

// Supports reports whether the device has at least one channel in dir.
func (i Info) Supports(dir Direction) bool {
	if dir == Output {
		return i.MaxOutputChannels > 0
	}
	return i.MaxInputChannels > 0
}

// Initialize starts PortAudio. Every successful call must be paired with
// Terminate.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate stops PortAudio.
func Terminate() error {
	return portaudio.Terminate()
}

// List returns every device PortAudio knows about. PortAudio must be
// initialized.
func List() ([]Info, error) {
	infos, _, err := list()
	return infos, err
}

func list() ([]Info, []*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, nil, fmt.Errorf("device: list: %w", err)
	}
	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	infos := make([]Info, len(devices))
	for i, d := range devices {
		infos[i] = Info{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			DefaultInput:      defIn != nil && d.Name == defIn.Name && d.HostApi == defIn.HostApi,
			DefaultOutput:     defOut != nil && d.Name == defOut.Name && d.HostApi == defOut.HostApi,
		}
		if d.HostApi != nil {
			infos[i].HostAPI = d.HostApi.Name
		}
	}
	return infos, devices, nil
}

// Find picks the device for name among those supporting dir. An empty
// name selects the default device. Otherwise an exact name match wins,
// then a single case-insensitive substring match.
func Find(infos []Info, name string, dir Direction) (Info, error) {
	var candidates []Info
	for _, info := range infos {
		if info.Supports(dir) {
			candidates = append(candidates, info)
		}
	}

	if name == "" {
		for _, info := range candidates {
			if (dir == Input && info.DefaultInput) || (dir == Output && info.DefaultOutput) {
				return info, nil
			}
		}
		return Info{}, fmt.Errorf("%w: no default %s device", ErrNoDevice, dir)
	}

	for _, info := range candidates {
		if info.Name == name {
			return info, nil
		}
	}

	var matches []Info
	needle := strings.ToLower(name)
	for _, info := range candidates {
		if strings.Contains(strings.ToLower(info.Name), needle) {
			matches = append(matches, info)
		}
	}
	switch len(matches) {
	case 0:
		return Info{}, fmt.Errorf("%w: %s %q", ErrNoDevice, dir, name)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return Info{}, fmt.Errorf("%w %q: %s", ErrAmbiguousDevice, name, strings.Join(names, ", "))
	}
}

func lookup(name string, dir Direction) (*portaudio.DeviceInfo, error) {
	infos, devices, err := list()
	if err != nil {
		return nil, err
	}
	info, err := Find(infos, name, dir)
	if err != nil {
		return nil, err
	}
	return devices[info.Index], nil
}
