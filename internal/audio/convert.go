// Package audio encodes waveforms to MP3 and handles raw WAV probing and
// concatenation.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/book-expert/logger"
)

// Encoder binaries, tried in order.
const (
	ffmpegBinary = "ffmpeg"
	lameBinary   = "lame"
)

// conversionTimeout bounds a single encoder run.
const conversionTimeout = 2 * time.Minute

// ErrNoEncoder is returned when neither supported MP3 encoder is installed.
var ErrNoEncoder = errors.New("no mp3 encoder found (install 'ffmpeg' or 'lame')")

// Converter encodes WAV waveforms into MP3 artifacts using an external
// encoder binary.
type Converter struct {
	log *logger.Logger
}

// NewConverter creates a Converter that logs through log.
func NewConverter(log *logger.Logger) *Converter {
	return &Converter{log: log}
}

// Convert encodes the WAV file at wavPath into an MP3 file at outPath. On
// failure no partial output file is left behind.
func (c *Converter) Convert(ctx context.Context, wavPath, outPath string) error {
	runCtx, cancel := context.WithTimeout(ctx, conversionTimeout)
	defer cancel()

	cmd, lookupErr := encoderCommand(runCtx, wavPath, outPath)
	if lookupErr != nil {
		return lookupErr
	}

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		c.removePartialOutput(outPath)

		return fmt.Errorf(
			"mp3 encoder execution failed: %w - output: %s",
			runErr,
			string(output),
		)
	}

	return nil
}

// encoderCommand prefers ffmpeg and falls back to lame.
func encoderCommand(ctx context.Context, wavPath, outPath string) (*exec.Cmd, error) {
	ffmpegPath, ffmpegErr := exec.LookPath(ffmpegBinary)
	if ffmpegErr == nil {
		args := []string{
			"-y",
			"-i", wavPath,
			"-codec:a", "libmp3lame",
			"-qscale:a", "2",
			outPath,
		}

		// #nosec G204 -- paths are produced by the artifact manager
		return exec.CommandContext(ctx, ffmpegPath, args...), nil
	}

	lamePath, lameErr := exec.LookPath(lameBinary)
	if lameErr == nil {
		args := []string{"--silent", "-V2", wavPath, outPath}

		// #nosec G204 -- paths are produced by the artifact manager
		return exec.CommandContext(ctx, lamePath, args...), nil
	}

	return nil, ErrNoEncoder
}

func (c *Converter) removePartialOutput(outPath string) {
	removeErr := os.Remove(outPath)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		c.log.Warn("Failed to remove partial output '%s': %v", outPath, removeErr)
	}
}
