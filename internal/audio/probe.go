package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for files that are empty or not RIFF/WAVE.
var ErrInvalidWAV = errors.New("invalid wav file")

// Info describes the PCM format of a WAV file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Probe reads the WAV header at path and returns its format. It rejects
// files the decoder cannot parse, which catches truncated or empty synthesis
// output before conversion.
func Probe(path string) (Info, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return Info{}, fmt.Errorf("failed to open wav file: %w", openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return Info{}, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	duration, durationErr := decoder.Duration()
	if durationErr != nil {
		return Info{}, fmt.Errorf("failed to read wav duration: %w", durationErr)
	}

	return Info{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
		Duration:   duration,
	}, nil
}
