package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// defaultBitDepth is used when a source file does not declare one.
const defaultBitDepth = 16

const outputDirPermissions = 0o750

// ErrNoInputs is returned when CombineWAV is called with nothing to combine.
var ErrNoInputs = errors.New("no wav inputs to combine")

// ErrFormatMismatch is returned when chunk files disagree on sample rate or
// channel count.
var ErrFormatMismatch = errors.New("wav format mismatch")

// CombineWAV concatenates PCM WAV chunks into a single WAV file. Inputs are
// sorted by name, so chunk files named in synthesis order concatenate
// correctly. All inputs must share the same sample rate and channel count;
// the output keeps the first chunk's bit depth.
func CombineWAV(inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}

	sort.Strings(inputs)

	firstBuffer, readErr := readPCMBuffer(inputs[0])
	if readErr != nil {
		return readErr
	}

	bitDepth := firstBuffer.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = defaultBitDepth
	}

	mkdirErr := os.MkdirAll(filepath.Dir(outPath), outputDirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create output directory: %w", mkdirErr)
	}

	out, createErr := os.Create(outPath)
	if createErr != nil {
		return fmt.Errorf("failed to create combined wav: %w", createErr)
	}

	encoder := wav.NewEncoder(
		out,
		firstBuffer.Format.SampleRate,
		bitDepth,
		firstBuffer.Format.NumChannels,
		1,
	)

	writeErr := writeChunks(encoder, firstBuffer, inputs)
	if writeErr != nil {
		_ = encoder.Close()
		_ = out.Close()

		return writeErr
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		_ = out.Close()

		return fmt.Errorf("failed to finalize combined wav: %w", closeErr)
	}

	fileCloseErr := out.Close()
	if fileCloseErr != nil {
		return fmt.Errorf("failed to close combined wav: %w", fileCloseErr)
	}

	return nil
}

func writeChunks(encoder *wav.Encoder, first *goaudio.IntBuffer, inputs []string) error {
	writeErr := encoder.Write(first)
	if writeErr != nil {
		return fmt.Errorf("failed to write %s: %w", inputs[0], writeErr)
	}

	for _, input := range inputs[1:] {
		buffer, readErr := readPCMBuffer(input)
		if readErr != nil {
			return readErr
		}

		if !sameFormat(first.Format, buffer.Format) {
			return fmt.Errorf(
				"%w: %s (expected %d Hz, %d ch; got %d Hz, %d ch)",
				ErrFormatMismatch,
				input,
				first.Format.SampleRate,
				first.Format.NumChannels,
				buffer.Format.SampleRate,
				buffer.Format.NumChannels,
			)
		}

		chunkWriteErr := encoder.Write(buffer)
		if chunkWriteErr != nil {
			return fmt.Errorf("failed to write %s: %w", input, chunkWriteErr)
		}
	}

	return nil
}

func readPCMBuffer(path string) (*goaudio.IntBuffer, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, fmt.Errorf("failed to open wav chunk: %w", openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buffer, bufferErr := decoder.FullPCMBuffer()
	if bufferErr != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, bufferErr)
	}

	return buffer, nil
}

func sameFormat(a, b *goaudio.Format) bool {
	return a != nil && b != nil &&
		a.SampleRate == b.SampleRate &&
		a.NumChannels == b.NumChannels
}
