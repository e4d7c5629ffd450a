// Package core defines the domain model and interfaces for the kokoro-mcp service.
package core

import "context"

// SynthesisOptions holds the per-request voice parameters for a synthesis call.
// Zero values fall back to the configured defaults.
type SynthesisOptions struct {
	Voice string
	Speed float64
	Lang  string
}

// SpeechSynthesizer produces a raw waveform file for the given text.
// The returned path points at a temporary WAV file owned by the caller,
// which must remove it once the artifact pipeline is done with it.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthesisOptions) (wavPath string, err error)
	Voices(ctx context.Context) ([]string, error)
}

// AudioConverter transcodes a raw waveform file into a compressed audio file.
type AudioConverter interface {
	Convert(ctx context.Context, wavPath, outPath string) error
}

// ArchiveStore uploads local files to a remote object store under a key and
// returns a stable, externally resolvable locator for the stored object.
// Storing the same key twice must be safe (overwrite semantics).
type ArchiveStore interface {
	Store(ctx context.Context, localPath, key string) (locator string, err error)
	Validate(ctx context.Context) error
}
