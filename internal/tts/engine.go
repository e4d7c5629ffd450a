// Package tts provides speech synthesis through the Kokoro HTTP service.
//
// The engine cleans request text, splits it into chunks, synthesizes the
// chunks in parallel against the service, and concatenates the results into
// a single waveform for downstream conversion and archival.
package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/voxworks/kokoro-mcp/internal/audio"
	"github.com/voxworks/kokoro-mcp/internal/config"
	"github.com/voxworks/kokoro-mcp/internal/core"
	"github.com/voxworks/kokoro-mcp/internal/fsutil"
	"github.com/voxworks/kokoro-mcp/internal/tts/text"
)

const (
	// HealthCheckTimeout defines the timeout for health check operations.
	HealthCheckTimeout = 10 * time.Second

	// File and workspace patterns.
	filePermissions     = 0o600
	chunkFileFormat     = "chunk_%04d.wav"
	chunkDirPattern     = "kokoro-chunks-*"
	combinedFilePattern = "kokoro-tts-*.wav"
)

// Log formats.
const (
	errFmtHealthCheckFailed     = "TTS service health check failed: %w"
	logFmtServiceHealthy        = "TTS service is healthy, synthesizing %d chunks"
	logFmtChunkProcessingFailed = "Failed to synthesize chunk %d: %v"
	logFmtChunkProcessed        = "Synthesized chunk %d/%d"
	logFmtSynthesisComplete     = "Synthesized %s of audio (%d chunks)"
	logFmtWorkspaceRemoveFailed = "Failed to remove chunk workspace '%s': %v"
	logFmtFileRemoveFailed      = "Failed to remove file '%s': %v"
	logFmtVoicesFallback        = "Falling back to builtin voice list: %v"
	errFmtChunkFailed           = "chunk %d failed: %w"
)

// fallbackVoices is served when the synthesis service cannot be reached.
var fallbackVoices = []string{"af_heart", "en_us_male", "en_us_female"}

// Engine orchestrates speech synthesis against the Kokoro HTTP service. It
// manages text preprocessing, parallel chunk synthesis, and waveform
// concatenation, leaving conversion and archival to the artifact manager.
type Engine struct {
	client       *HTTPClient
	preprocessor *text.Preprocessor
	cfg          config.TTSConfig
	log          *logger.Logger
}

// NewEngine creates a synthesis engine with the provided configuration. The
// engine communicates with the service at the configured URL and uses the
// configured timeout for all HTTP operations.
func NewEngine(cfg config.TTSConfig, log *logger.Logger) *Engine {
	client := NewHTTPClient(cfg.ServiceURL, cfg.Timeout())

	return NewEngineWithClient(cfg, log, client)
}

// NewEngineWithClient creates a synthesis engine with a custom client. This
// constructor is primarily for testing, allowing injection of clients bound
// to test servers while keeping the same engine behavior.
func NewEngineWithClient(
	cfg config.TTSConfig,
	log *logger.Logger,
	client *HTTPClient,
) *Engine {
	return &Engine{
		client:       client,
		preprocessor: text.NewPreprocessor(),
		cfg:          cfg,
		log:          log,
	}
}

// Synthesize converts input text to a single WAV file and returns its path.
// The file lives in the system temp directory; the caller owns it and must
// remove it after conversion.
func (e *Engine) Synthesize(
	ctx context.Context,
	input string,
	opts core.SynthesisOptions,
) (string, error) {
	cleaned := e.preprocessor.PreprocessText(input)
	if cleaned == "" {
		return "", ErrTextEmpty
	}

	opts = e.fillOptionDefaults(opts)

	chunks := e.preprocessor.SplitChunks(cleaned, e.cfg.ChunkChars)

	healthErr := e.checkServiceHealth(ctx)
	if healthErr != nil {
		return "", healthErr
	}

	e.log.Info(logFmtServiceHealthy, len(chunks))

	workDir, tempErr := os.MkdirTemp("", chunkDirPattern)
	if tempErr != nil {
		return "", fmt.Errorf("failed to create chunk workspace: %w", tempErr)
	}

	defer e.removeWorkspace(workDir)

	chunkPaths, synthErr := e.synthesizeChunksParallel(ctx, chunks, workDir, opts)
	if synthErr != nil {
		return "", synthErr
	}

	return e.combineChunks(chunkPaths)
}

// Voices lists the voices the synthesis service offers. When the service is
// unreachable or reports none, the builtin fallback list is returned so
// voice discovery keeps working while the backend is down.
func (e *Engine) Voices(ctx context.Context) ([]string, error) {
	voices, voicesErr := e.client.Voices(ctx)
	if voicesErr != nil {
		e.log.Warn(logFmtVoicesFallback, voicesErr)

		return append([]string(nil), fallbackVoices...), nil
	}

	if len(voices) == 0 {
		return append([]string(nil), fallbackVoices...), nil
	}

	return voices, nil
}

// fillOptionDefaults replaces unset request options with configured values.
func (e *Engine) fillOptionDefaults(opts core.SynthesisOptions) core.SynthesisOptions {
	if opts.Voice == "" {
		opts.Voice = e.cfg.Voice
	}

	if opts.Speed == 0 {
		opts.Speed = e.cfg.Speed
	}

	if opts.Lang == "" {
		opts.Lang = e.cfg.Language
	}

	return opts
}

func (e *Engine) checkServiceHealth(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	healthErr := e.client.HealthCheck(healthCtx)
	if healthErr != nil {
		return fmt.Errorf(errFmtHealthCheckFailed, healthErr)
	}

	return nil
}

// synthesizeChunksParallel synthesizes chunks concurrently using a worker
// pool sized by the Workers setting.
//
// Errors from individual chunks are captured and reported, but synthesis
// continues for remaining chunks so diagnostics cover the whole request.
func (e *Engine) synthesizeChunksParallel(
	ctx context.Context,
	chunks []string,
	workDir string,
	opts core.SynthesisOptions,
) ([]string, error) {
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		lastError error
	)

	chunkPaths := make([]string, len(chunks))
	workerPool := make(chan struct{}, e.cfg.Workers)

	for chunkIndex, chunk := range chunks {
		waitGroup.Add(1)

		go func(index int, chunkText string) {
			defer waitGroup.Done()

			// Acquire worker slot to control concurrency.
			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			outputPath := filepath.Join(
				workDir,
				fmt.Sprintf(chunkFileFormat, index+1),
			)

			err := e.synthesizeChunk(ctx, chunkText, outputPath, opts)
			if err != nil {
				mutex.Lock()

				lastError = fmt.Errorf(
					errFmtChunkFailed,
					index+1,
					err,
				)

				mutex.Unlock()
				e.log.Error(
					logFmtChunkProcessingFailed,
					index+1,
					err,
				)

				return
			}

			chunkPaths[index] = outputPath

			e.log.Info(logFmtChunkProcessed, index+1, len(chunks))
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()
	close(workerPool)

	if lastError != nil {
		return nil, lastError
	}

	return chunkPaths, nil
}

// synthesizeChunk requests audio for one chunk and writes it to outputPath.
func (e *Engine) synthesizeChunk(
	ctx context.Context,
	chunkText, outputPath string,
	opts core.SynthesisOptions,
) error {
	req := SpeechRequest{
		Model:          kokoroModel,
		Input:          chunkText,
		Voice:          opts.Voice,
		ResponseFormat: wavResponseFormat,
		Speed:          opts.Speed,
		LangCode:       opts.Lang,
	}

	audioData, speechErr := e.client.GenerateSpeech(ctx, req)
	if speechErr != nil {
		return fmt.Errorf("failed to generate speech: %w", speechErr)
	}

	writeErr := os.WriteFile(outputPath, audioData, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write audio file: %w", writeErr)
	}

	return nil
}

// combineChunks concatenates chunk files into one waveform in the system
// temp directory and validates the result.
func (e *Engine) combineChunks(chunkPaths []string) (string, error) {
	combined, tempErr := os.CreateTemp("", combinedFilePattern)
	if tempErr != nil {
		return "", fmt.Errorf("failed to create waveform file: %w", tempErr)
	}

	closeErr := combined.Close()
	if closeErr != nil {
		return "", fmt.Errorf("failed to close waveform file: %w", closeErr)
	}

	combineErr := audio.CombineWAV(chunkPaths, combined.Name())
	if combineErr != nil {
		e.removeFile(combined.Name())

		return "", fmt.Errorf("failed to combine chunks: %w", combineErr)
	}

	info, probeErr := audio.Probe(combined.Name())
	if probeErr != nil {
		e.removeFile(combined.Name())

		return "", fmt.Errorf("synthesis produced an invalid waveform: %w", probeErr)
	}

	e.log.Info(
		logFmtSynthesisComplete,
		fsutil.FormatDuration(info.Duration.Seconds()),
		len(chunkPaths),
	)

	return combined.Name(), nil
}

func (e *Engine) removeWorkspace(dir string) {
	removeErr := os.RemoveAll(dir)
	if removeErr != nil {
		e.log.Warn(logFmtWorkspaceRemoveFailed, dir, removeErr)
	}
}

func (e *Engine) removeFile(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil {
		e.log.Warn(logFmtFileRemoveFailed, path, removeErr)
	}
}
