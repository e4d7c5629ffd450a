package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Kokoro API endpoints (OpenAI-compatible).
const (
	apiSpeech = "/v1/audio/speech"
	apiModels = "/v1/models"
	apiVoices = "/v1/audio/voices"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	contentTypeAudio  = "audio/"
)

// Request defaults.
const (
	kokoroModel       = "kokoro"
	wavResponseFormat = "wav"
)

// Error messages.
const (
	errUnexpectedContentType   = "unexpected content type: expected audio/*, got %s"
	errFmtServiceErrorWithCode = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "TTS service returned non-OK status: %s, body: %s"
)

// Static errors.
var (
	// ErrTextEmpty is returned when a synthesis request carries no text.
	ErrTextEmpty = errors.New("text cannot be empty")

	// ErrEmptyAudio is returned when the service responds with no audio data.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// HTTPClient represents a client for the Kokoro TTS HTTP service.
// It encapsulates the HTTP configuration and provides methods for
// speech generation, voice discovery, and health monitoring.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// SpeechRequest defines the JSON payload for the OpenAI-compatible speech
// endpoint.
type SpeechRequest struct {
	// Model selects the synthesis model. Defaults to "kokoro".
	Model string `json:"model"`

	// Input contains the text to convert to speech. Must be non-empty.
	Input string `json:"input"`

	// Voice selects the Kokoro voice (e.g., "af_heart").
	Voice string `json:"voice"`

	// ResponseFormat selects the audio container. Defaults to "wav" so the
	// result can be concatenated and re-encoded locally.
	ResponseFormat string `json:"response_format,omitempty"`

	// Speed adjusts the speaking rate. 1.0 is normal speed.
	Speed float64 `json:"speed,omitempty"`

	// LangCode overrides language detection (e.g., "en-us").
	LangCode string `json:"lang_code,omitempty"`
}

// serviceErrorResponse represents a structured error response from the
// service.
type serviceErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// voicesResponse is the payload of the voice listing endpoint.
type voicesResponse struct {
	Voices []string `json:"voices"`
}

// NewHTTPClient creates and configures an HTTP client for the TTS service.
// The baseURL should include the protocol and port (e.g., "http://localhost:8880").
// The timeout applies to all HTTP requests made by this client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GenerateSpeech sends a synthesis request and returns the raw audio data.
// This method validates input at the boundary, fills request defaults, and
// handles both successful responses and structured error conditions.
//
// The returned audio data is WAV unless the request asked for another
// response format.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if req.Input == "" {
		return nil, ErrTextEmpty
	}

	if req.Model == "" {
		req.Model = kokoroModel
	}

	if req.ResponseFormat == "" {
		req.ResponseFormat = wavResponseFormat
	}

	requestBody, marshalErr := json.Marshal(req)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", marshalErr)
	}

	url := c.baseURL + apiSpeech

	httpReq, reqErr := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create request: %w", reqErr)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf(
			"failed to send request to TTS service at %s: %w",
			c.baseURL,
			doErr,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, contentTypeAudio) {
		return nil, fmt.Errorf(errUnexpectedContentType, contentType)
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", readErr)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// Voices returns the voice names the service currently offers.
func (c *HTTPClient) Voices(ctx context.Context) ([]string, error) {
	url := c.baseURL + apiVoices

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", reqErr)
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf(
			"failed to list voices from service at %s: %w",
			c.baseURL,
			doErr,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read voices response: %w", readErr)
	}

	var payload voicesResponse

	parseErr := parseJSON(body, &payload)
	if parseErr != nil {
		return nil, parseErr
	}

	return payload.Voices, nil
}

// HealthCheck verifies that the TTS service is running and operational by
// querying its model listing. It returns an error if the service is
// unavailable or reports an unhealthy status.
//
// Health checks are performed before synthesis workloads to fail fast and
// provide clear diagnostics when the service is down.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	url := c.baseURL + apiModels

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if reqErr != nil {
		return fmt.Errorf("failed to create health check request: %w", reqErr)
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return fmt.Errorf(
			"health check failed for service at %s: %w",
			c.baseURL,
			doErr,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse attempts to decode a structured JSON error from the
// service. If structured parsing fails, it falls back to returning the raw
// response body so diagnostic information is preserved.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	var errorResp serviceErrorResponse

	err := json.NewDecoder(resp.Body).Decode(&errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode,
			resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		errFmtServiceNonOKStatus,
		resp.Status,
		string(body),
	)
}

// parseJSON parses JSON data into the target interface.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}
