package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevices = []Info{
	{Index: 0, Name: "Built-in Microphone", MaxInputChannels: 1, DefaultInput: true},
	{Index: 1, Name: "Built-in Output", MaxOutputChannels: 2, DefaultOutput: true},
	{Index: 2, Name: "USB Audio Device", MaxInputChannels: 1, MaxOutputChannels: 2},
	{Index: 3, Name: "USB Audio Device (2)", MaxInputChannels: 2},
	{Index: 4, Name: "ReSpeaker 4 Mic Array", MaxInputChannels: 4},
}

func TestFind(t *testing.T) {
	tests := []struct {
		name  string
		query string
		dir   Direction
		want  int
		err   error
	}{
		{"default input", "", Input, 0, nil},
		{"default output", "", Output, 1, nil},
		{"exact beats substring", "USB Audio Device", Input, 2, nil},
		{"case insensitive substring", "respeaker", Input, 4, nil},
		{"substring limited to direction", "usb", Output, 2, nil},
		{"ambiguous substring", "usb", Input, 0, ErrAmbiguousDevice},
		{"no match", "bluetooth", Input, 0, ErrNoDevice},
		{"wrong direction", "ReSpeaker", Output, 0, ErrNoDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Find(testDevices, tt.query, tt.dir)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Index)
		})
	}
}

func TestFind_AmbiguousListsNames(t *testing.T) {
	_, err := Find(testDevices, "audio", Input)
	require.ErrorIs(t, err, ErrAmbiguousDevice)
	assert.Contains(t, err.Error(), "USB Audio Device, USB Audio Device (2)")
}

func TestFind_NoDefault(t *testing.T) {
	_, err := Find([]Info{{Name: "Line In", MaxInputChannels: 2}}, "", Input)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestDirectionString(t *testing.T) {
	if Input.String() != "input" || Output.String() != "output" {
		t.Errorf("unexpected direction names: %s %s", Input, Output)
	}
}
