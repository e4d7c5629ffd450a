package tts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/logger"
	"github.com/voxworks/kokoro-mcp/internal/audio"
	"github.com/voxworks/kokoro-mcp/internal/config"
	"github.com/voxworks/kokoro-mcp/internal/core"
	"github.com/voxworks/kokoro-mcp/internal/tts"
)

const (
	testSampleRate     = 24000
	testFramesPerChunk = 240
)

// makeWAVBytes builds a small valid 16-bit PCM WAV clip.
func makeWAVBytes(t *testing.T) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")

	out, createErr := os.Create(path)
	require.NoError(t, createErr)

	encoder := wav.NewEncoder(out, testSampleRate, 16, 1, 1)

	data := make([]int, testFramesPerChunk)
	for i := range data {
		data[i] = i % 128
	}

	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  testSampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}

	require.NoError(t, encoder.Write(buffer))
	require.NoError(t, encoder.Close())
	require.NoError(t, out.Close())

	bytes, readErr := os.ReadFile(path)
	require.NoError(t, readErr)

	return bytes
}

// newMockKokoroServer serves the three endpoints the engine touches and
// counts speech requests.
func newMockKokoroServer(t *testing.T, speechCalls *atomic.Int64) *httptest.Server {
	t.Helper()

	wavBytes := makeWAVBytes(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"kokoro"}]}`))
	})
	mux.HandleFunc("/v1/audio/voices", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"voices":["af_heart","af_nova"]}`))
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, _ *http.Request) {
		speechCalls.Add(1)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wavBytes)
	})

	return httptest.NewServer(mux)
}

func testTTSConfig(serviceURL string) config.TTSConfig {
	return config.TTSConfig{
		ServiceURL:     serviceURL,
		Voice:          "af_heart",
		Speed:          1.0,
		Language:       "en-us",
		TimeoutSeconds: 10,
		Workers:        2,
		ChunkChars:     1000,
	}
}

func newTestEngine(t *testing.T, cfg config.TTSConfig) *tts.Engine {
	t.Helper()

	testLogger, logErr := logger.New(t.TempDir(), "test.log")
	require.NoError(t, logErr)

	return tts.NewEngine(cfg, testLogger)
}

func TestEngine_Synthesize_Success(t *testing.T) {
	t.Parallel()

	var speechCalls atomic.Int64

	server := newMockKokoroServer(t, &speechCalls)
	defer server.Close()

	engine := newTestEngine(t, testTTSConfig(server.URL))

	wavPath, err := engine.Synthesize(
		context.Background(),
		"Hello world.",
		core.SynthesisOptions{Voice: "", Speed: 0, Lang: ""},
	)
	require.NoError(t, err)

	defer func() {
		_ = os.Remove(wavPath)
	}()

	info, probeErr := audio.Probe(wavPath)
	require.NoError(t, probeErr)

	assert.Equal(t, testSampleRate, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, int64(1), speechCalls.Load())
}

func TestEngine_Synthesize_SplitsLongText(t *testing.T) {
	t.Parallel()

	var speechCalls atomic.Int64

	server := newMockKokoroServer(t, &speechCalls)
	defer server.Close()

	cfg := testTTSConfig(server.URL)
	cfg.ChunkChars = 40

	engine := newTestEngine(t, cfg)

	input := "First sentence over the limit. Second sentence over the limit. " +
		"Third sentence over the limit."

	wavPath, err := engine.Synthesize(
		context.Background(),
		input,
		core.SynthesisOptions{Voice: "", Speed: 0, Lang: ""},
	)
	require.NoError(t, err)

	defer func() {
		_ = os.Remove(wavPath)
	}()

	calls := speechCalls.Load()
	require.Greater(t, calls, int64(1), "long text should synthesize in chunks")

	info, probeErr := audio.Probe(wavPath)
	require.NoError(t, probeErr)

	expectedSeconds := float64(calls*testFramesPerChunk) / float64(testSampleRate)
	assert.InDelta(t, expectedSeconds, info.Duration.Seconds(), 0.001)
}

func TestEngine_Synthesize_EmptyText(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, testTTSConfig("http://127.0.0.1:1"))

	_, err := engine.Synthesize(
		context.Background(),
		"   \n\t  ",
		core.SynthesisOptions{Voice: "", Speed: 0, Lang: ""},
	)
	require.ErrorIs(t, err, tts.ErrTextEmpty)
}

func TestEngine_Synthesize_ServiceDown(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, testTTSConfig("http://127.0.0.1:1"))

	_, err := engine.Synthesize(
		context.Background(),
		"Hello world.",
		core.SynthesisOptions{Voice: "", Speed: 0, Lang: ""},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check")
}

func TestEngine_Synthesize_ChunkFailure(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"synthesis exploded"}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	engine := newTestEngine(t, testTTSConfig(server.URL))

	_, err := engine.Synthesize(
		context.Background(),
		"Hello world.",
		core.SynthesisOptions{Voice: "", Speed: 0, Lang: ""},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1 failed")
}

func TestEngine_Voices_Success(t *testing.T) {
	t.Parallel()

	var speechCalls atomic.Int64

	server := newMockKokoroServer(t, &speechCalls)
	defer server.Close()

	engine := newTestEngine(t, testTTSConfig(server.URL))

	voices, err := engine.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"af_heart", "af_nova"}, voices)
}

func TestEngine_Voices_FallbackWhenDown(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, testTTSConfig("http://127.0.0.1:1"))

	voices, err := engine.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"af_heart", "en_us_male", "en_us_female"}, voices)
}

func parseBody(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

func TestEngine_PreprocessesMarkdownBeforeSynthesis(t *testing.T) {
	t.Parallel()

	var received atomic.Value

	wavBytes := makeWAVBytes(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		var req tts.SpeechRequest
		_ = parseBody(r, &req)
		received.Store(req.Input)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wavBytes)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	engine := newTestEngine(t, testTTSConfig(server.URL))

	wavPath, err := engine.Synthesize(
		context.Background(),
		"Read [the docs](https://example.com) now.",
		core.SynthesisOptions{Voice: "", Speed: 0, Lang: ""},
	)
	require.NoError(t, err)

	defer func() {
		_ = os.Remove(wavPath)
	}()

	input, ok := received.Load().(string)
	require.True(t, ok)
	assert.Equal(t, "Read the docs now.", input)
	assert.False(t, strings.Contains(input, "example.com"))
}
