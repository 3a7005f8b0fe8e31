package sound

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// decodedChannels is the channel count of go-mp3 output, which is always
// interleaved stereo.
const decodedChannels = 2

// Clip is decoded interleaved 16-bit PCM.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// DecodeMP3 decodes a complete MP3 stream.
func DecodeMP3(data []byte) (Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open mp3 stream: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode mp3: %w", err)
	}

	return Clip{
		Samples:    bytesToSamples(raw),
		SampleRate: dec.SampleRate(),
		Channels:   decodedChannels,
	}, nil
}

func bytesToSamples(audioBytes []byte) []int16 {
	samples := make([]int16, len(audioBytes)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(audioBytes[i*2:]))
	}
	return samples
}
