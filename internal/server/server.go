// Package server exposes speech synthesis and voice discovery as MCP tools
// over the stdio, streamable HTTP, and SSE transports.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxworks/kokoro-mcp/internal/artifact"
	"github.com/voxworks/kokoro-mcp/internal/config"
	"github.com/voxworks/kokoro-mcp/internal/core"
	"github.com/voxworks/kokoro-mcp/internal/fsutil"
	"github.com/voxworks/kokoro-mcp/internal/metrics"
)

const (
	serverName    = "kokoro-mcp"
	serverTitle   = "Kokoro Text-to-Speech"
	serverVersion = "1.0.0"

	toolTextToSpeech = "text_to_speech"
	toolListVoices   = "list_voices"

	mcpPath     = "/mcp"
	ssePath     = "/sse"
	metricsPath = "/metrics"
	healthPath  = "/health"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Metric label values for failed requests.
const (
	reasonEmptyText  = "empty_text"
	reasonSynthesis  = "synthesis"
	reasonConversion = "conversion"
	reasonPipeline   = "pipeline"
	reasonVoices     = "voices"
)

// Tool response messages.
const (
	msgAudioGenerated = "Audio generated successfully"
	msgNoText         = "No text provided"
	msgCancelled      = "Request cancelled"
)

// Log formats.
const (
	logFmtRequestFailed        = "Request failed: %v"
	logFmtRequestComplete      = "Request complete: %s (%s) in %s"
	logFmtVoicesFailed         = "Failed to list voices: %v"
	logFmtServing              = "Serving MCP over %s on %s"
	logMsgServingStdio         = "Serving MCP over stdio"
	logFmtWaveformRemoveFailed = "Failed to remove waveform '%s': %v"
)

// ArtifactProcessor turns a synthesized waveform into a finished audio
// artifact. *artifact.Manager is the production implementation.
type ArtifactProcessor interface {
	Process(
		ctx context.Context,
		waveformPath string,
		opts artifact.ProcessOptions,
	) (*core.ArtifactResult, error)
}

// SpeakParams is the input for the text_to_speech tool.
type SpeakParams struct {
	Text     string  `json:"text"               jsonschema:"the text to convert to speech"`
	Voice    string  `json:"voice,omitempty"    jsonschema:"voice to synthesize with, e.g. af_heart"`
	Speed    float64 `json:"speed,omitempty"    jsonschema:"speech speed multiplier"`
	Lang     string  `json:"lang,omitempty"     jsonschema:"language code, e.g. en-us"`
	Filename string  `json:"filename,omitempty" jsonschema:"output filename, generated when empty"`

	// Upload defaults to true when the request omits it.
	Upload *bool `json:"upload_to_s3,omitempty" jsonschema:"archive the artifact to the object store"`
}

// ListVoicesParams is the (empty) input for the list_voices tool.
type ListVoicesParams struct{}

// speakResponse is the JSON payload returned by the text_to_speech tool.
type speakResponse struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	Filename      string   `json:"filename"`
	FileSize      int64    `json:"file_size"`
	Path          string   `json:"path,omitempty"`
	S3Uploaded    bool     `json:"s3_uploaded"`
	S3URL         string   `json:"s3_url,omitempty"`
	LocalFileKept bool     `json:"local_file_kept"`
	S3Error       string   `json:"s3_error,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// voicesResponse is the JSON payload returned by the list_voices tool.
type voicesResponse struct {
	Voices []string `json:"voices"`
}

// Server wires the synthesis engine and the artifact pipeline into MCP tools
// and serves them over the configured transport.
type Server struct {
	synth   core.SpeechSynthesizer
	manager ArtifactProcessor
	cfg     config.ServerConfig
	met     metrics.Metrics
	log     *logger.Logger
}

// New creates a request server. A nil metrics sink falls back to a no-op.
func New(
	synth core.SpeechSynthesizer,
	manager ArtifactProcessor,
	cfg config.ServerConfig,
	met metrics.Metrics,
	log *logger.Logger,
) *Server {
	if met == nil {
		met = metrics.Noop{}
	}

	return &Server{
		synth:   synth,
		manager: manager,
		cfg:     cfg,
		met:     met,
		log:     log,
	}
}

// MCPServer assembles the MCP server with both tools registered. Input
// schemas are inferred from the typed handler parameters.
func (s *Server) MCPServer() *mcp.Server {
	impl := &mcp.Implementation{
		Name:    serverName,
		Title:   serverTitle,
		Version: serverVersion,
	}

	srv := mcp.NewServer(impl, nil)

	speakTool := &mcp.Tool{
		Name:        toolTextToSpeech,
		Title:       "Text to Speech",
		Description: "Convert text to speech, keep the MP3 locally, and optionally archive it to the object store",
		Annotations: &mcp.ToolAnnotations{
			Title:          "Text to Speech",
			ReadOnlyHint:   false,
			IdempotentHint: false,
		},
	}

	mcp.AddTool(srv, speakTool, s.handleTextToSpeech)

	voicesTool := &mcp.Tool{
		Name:        toolListVoices,
		Title:       "List Voices",
		Description: "List the voices offered by the speech service",
		Annotations: &mcp.ToolAnnotations{
			Title:          "List Voices",
			ReadOnlyHint:   true,
			IdempotentHint: true,
		},
	}

	mcp.AddTool(srv, voicesTool, s.handleListVoices)

	return srv
}

// Run serves MCP over the configured transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mcpServer := s.MCPServer()

	if s.cfg.Transport == config.TransportStdio {
		s.log.Info(logMsgServingStdio)

		runErr := mcpServer.Run(ctx, &mcp.StdioTransport{})
		if runErr != nil {
			return fmt.Errorf("failed to serve MCP over stdio: %w", runErr)
		}

		return nil
	}

	return s.serveHTTP(ctx, mcpServer)
}

func (s *Server) handleTextToSpeech(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	params SpeakParams,
) (*mcp.CallToolResult, any, error) {
	// Check for early cancellation.
	select {
	case <-ctx.Done():
		return textResult(msgCancelled), nil, nil
	default:
	}

	s.met.IncRequests(toolTextToSpeech)

	if strings.TrimSpace(params.Text) == "" {
		s.met.IncRequestFailures(toolTextToSpeech, reasonEmptyText)

		return errorResult(msgNoText), nil, nil
	}

	started := time.Now()

	result, speakErr := s.speak(ctx, params)
	if speakErr != nil {
		s.met.IncRequestFailures(toolTextToSpeech, failureReason(speakErr))
		s.log.Error(logFmtRequestFailed, speakErr)

		return errorResult(fmt.Sprintf("Error: %v", speakErr)), nil, nil
	}

	elapsed := time.Since(started)

	s.met.ObserveSynthesisDuration(elapsed.Seconds())
	s.log.Info(
		logFmtRequestComplete,
		result.Filename,
		fsutil.FormatFileSize(result.Size),
		fsutil.FormatDuration(elapsed.Seconds()),
	)

	return jsonResult(buildSpeakResponse(result))
}

func (s *Server) handleListVoices(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListVoicesParams,
) (*mcp.CallToolResult, any, error) {
	select {
	case <-ctx.Done():
		return textResult(msgCancelled), nil, nil
	default:
	}

	s.met.IncRequests(toolListVoices)

	voices, voicesErr := s.synth.Voices(ctx)
	if voicesErr != nil {
		s.met.IncRequestFailures(toolListVoices, reasonVoices)
		s.log.Error(logFmtVoicesFailed, voicesErr)

		return errorResult(fmt.Sprintf("Error: %v", voicesErr)), nil, nil
	}

	return jsonResult(voicesResponse{Voices: voices})
}

// speak runs synthesis and the artifact pipeline for one request. The
// temporary waveform is cleared here when the pipeline exits early and
// leaves it behind.
func (s *Server) speak(ctx context.Context, params SpeakParams) (*core.ArtifactResult, error) {
	wavPath, synthErr := s.synth.Synthesize(ctx, params.Text, core.SynthesisOptions{
		Voice: params.Voice,
		Speed: params.Speed,
		Lang:  params.Lang,
	})
	if synthErr != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSynthesisFailed, synthErr)
	}

	defer s.removeLeftoverWaveform(wavPath)

	result, processErr := s.manager.Process(ctx, wavPath, artifact.ProcessOptions{
		Filename:      params.Filename,
		DisableUpload: params.Upload != nil && !*params.Upload,
	})
	if processErr != nil {
		return nil, processErr
	}

	return result, nil
}

// removeLeftoverWaveform clears the temporary waveform when conversion did
// not consume it. A missing file is the normal success case.
func (s *Server) removeLeftoverWaveform(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		s.log.Warn(logFmtWaveformRemoveFailed, path, removeErr)
	}
}

// serveHTTP runs the streamable HTTP or SSE transport with graceful
// shutdown on context cancellation.
func (s *Server) serveHTTP(ctx context.Context, mcpServer *mcp.Server) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.httpHandler(mcpServer),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		errChan <- httpServer.ListenAndServe()
	}()

	s.log.Info(logFmtServing, s.cfg.Transport, s.cfg.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", shutdownErr)
		}

		return nil
	case serveErr := <-errChan:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", serveErr)
		}

		return nil
	}
}

// httpHandler builds the HTTP mux for the network transports. The MCP
// endpoint sits next to the Prometheus metrics and a liveness probe.
func (s *Server) httpHandler(mcpServer *mcp.Server) http.Handler {
	mux := http.NewServeMux()

	getServer := func(*http.Request) *mcp.Server { return mcpServer }

	if s.cfg.Transport == config.TransportSSE {
		mux.Handle(ssePath, mcp.NewSSEHandler(getServer, nil))
	} else {
		mux.Handle(mcpPath, mcp.NewStreamableHTTPHandler(getServer, nil))
	}

	mux.Handle(metricsPath, metrics.Handler())
	mux.HandleFunc(healthPath, handleHealth)

	return mux
}

func handleHealth(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)

	_, _ = writer.Write([]byte("ok"))
}

// buildSpeakResponse maps an artifact outcome onto the tool's wire format.
// Upload failures surface in s3_error while the request itself succeeds.
func buildSpeakResponse(result *core.ArtifactResult) speakResponse {
	response := speakResponse{
		Success:       true,
		Message:       msgAudioGenerated,
		Filename:      result.Filename,
		FileSize:      result.Size,
		Path:          result.LocalPath,
		S3Uploaded:    result.Upload == core.UploadStateUploaded,
		S3URL:         result.RemoteLocator,
		LocalFileKept: result.LocalPath != "",
		S3Error:       "",
		Warnings:      result.Warnings,
	}

	if result.Upload == core.UploadStateFailed {
		response.S3Error = strings.Join(result.Warnings, "; ")
	}

	return response
}

// failureReason maps pipeline errors onto metric label values.
func failureReason(err error) string {
	switch {
	case errors.Is(err, core.ErrSynthesisFailed):
		return reasonSynthesis
	case errors.Is(err, core.ErrConversionFailed):
		return reasonConversion
	default:
		return reasonPipeline
	}
}

func jsonResult(response any) (*mcp.CallToolResult, any, error) {
	payload, marshalErr := json.MarshalIndent(response, "", "  ")
	if marshalErr != nil {
		return nil, nil, fmt.Errorf("failed to encode response: %w", marshalErr)
	}

	return textResult(string(payload)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
