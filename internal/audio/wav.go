package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNotWAV is returned when data does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// WAVFormat describes the fmt chunk of a PCM WAV file.
type WAVFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// EncodeWAV wraps mono PCM16 samples in a 44-byte WAV header.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*BytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(BytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV walks the RIFF chunks of data and returns the PCM payload of
// the data chunk together with its format.
func DecodeWAV(data []byte) ([]byte, WAVFormat, error) {
	var format WAVFormat
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, format, ErrNotWAV
	}

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			// Streaming encoders often leave the data size unset.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, format, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
		case "data":
			return data[body:end], format, nil
		}

		pos = end + size%2
	}
	return nil, format, fmt.Errorf("audio: no data chunk: %w", io.ErrUnexpectedEOF)
}

// StripWAVHeader returns the PCM payload if data is a WAV stream, and data
// unchanged otherwise.
func StripWAVHeader(data []byte) []byte {
	pcm, _, err := DecodeWAV(data)
	if err != nil {
		return data
	}
	return pcm
}
