// Package main implements kokoro-say, a small MCP client for the kokoro-mcp
// server. It speaks text through the text_to_speech tool and lists the
// available voices, for smoke testing and shell use.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

const (
	clientName    = "kokoro-say"
	clientVersion = "1.0.0"

	toolTextToSpeech = "text_to_speech"
	toolListVoices   = "list_voices"

	defaultEndpoint = "http://localhost:9876/mcp"
	defaultTimeout  = 5 * time.Minute
	terminateWait   = 5 * time.Second
)

// Flag names.
const (
	flagServerCmd = "server-cmd"
	flagURL       = "url"
	flagSSE       = "sse"
	flagTimeout   = "timeout"
	flagVoice     = "voice"
	flagSpeed     = "speed"
	flagLang      = "lang"
	flagFilename  = "filename"
	flagNoUpload  = "no-upload"
)

// Flag descriptions.
const (
	flagServerCmdDesc = "Command serving MCP over stdio, e.g. 'kokoro-mcp --transport stdio'"
	flagURLDesc       = "MCP endpoint for the HTTP transports"
	flagSSEDesc       = "Treat --url as an SSE endpoint"
	flagTimeoutDesc   = "Overall request timeout"
	flagVoiceDesc     = "Voice to synthesize with"
	flagSpeedDesc     = "Speech speed multiplier"
	flagLangDesc      = "Language code, e.g. en-us"
	flagFilenameDesc  = "Output filename on the server"
	flagNoUploadDesc  = "Keep the artifact local, skip the object store"
)

var (
	// ErrNoText indicates the speak command was invoked without text.
	ErrNoText = errors.New("no text to speak")

	// ErrNoEndpoint indicates neither a server command nor a URL was given.
	ErrNoEndpoint = errors.New("either --server-cmd or --url is required")

	// ErrToolFailed indicates the server reported a tool-level error.
	ErrToolFailed = errors.New("tool call failed")

	// ErrEmptyResponse indicates the server returned no result at all.
	ErrEmptyResponse = errors.New("empty response from server")
)

// clientFlags holds the parsed command-line flag values.
type clientFlags struct {
	serverCmd string
	endpoint  string
	useSSE    bool
	timeout   time.Duration
	voice     string
	speed     float64
	lang      string
	filename  string
	noUpload  bool
}

func main() {
	flags := &clientFlags{
		serverCmd: "",
		endpoint:  "",
		useSSE:    false,
		timeout:   0,
		voice:     "",
		speed:     0,
		lang:      "",
		filename:  "",
		noUpload:  false,
	}

	rootCmd := newRootCommand(flags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(flags *clientFlags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kokoro-say [text]...",
		Short: "Speak text through a kokoro-mcp server",
		Long: `Speak text through a kokoro-mcp server.

Connects over streamable HTTP by default; pass --sse for an SSE endpoint
or --server-cmd to spawn a server subprocess and talk stdio.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return speak(cmd.Context(), flags, strings.Join(args, " "))
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.serverCmd, flagServerCmd, "", flagServerCmdDesc)
	rootCmd.PersistentFlags().StringVar(&flags.endpoint, flagURL, defaultEndpoint, flagURLDesc)
	rootCmd.PersistentFlags().BoolVar(&flags.useSSE, flagSSE, false, flagSSEDesc)
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)

	rootCmd.Flags().StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	rootCmd.Flags().Float64Var(&flags.speed, flagSpeed, 0, flagSpeedDesc)
	rootCmd.Flags().StringVar(&flags.lang, flagLang, "", flagLangDesc)
	rootCmd.Flags().StringVar(&flags.filename, flagFilename, "", flagFilenameDesc)
	rootCmd.Flags().BoolVar(&flags.noUpload, flagNoUpload, false, flagNoUploadDesc)

	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices the server offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return callTool(cmd.Context(), flags, toolListVoices, map[string]any{})
		},
	}

	rootCmd.AddCommand(voicesCmd)

	return rootCmd
}

func speak(ctx context.Context, flags *clientFlags, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrNoText
	}

	return callTool(ctx, flags, toolTextToSpeech, speakArguments(flags, text))
}

// speakArguments builds the tool arguments, sending only the options the
// caller set so the server applies its own defaults to the rest.
func speakArguments(flags *clientFlags, text string) map[string]any {
	args := map[string]any{"text": text}

	if flags.voice != "" {
		args["voice"] = flags.voice
	}

	if flags.speed > 0 {
		args["speed"] = flags.speed
	}

	if flags.lang != "" {
		args["lang"] = flags.lang
	}

	if flags.filename != "" {
		args["filename"] = flags.filename
	}

	if flags.noUpload {
		args["upload_to_s3"] = false
	}

	return args
}

// callTool connects, invokes one tool, and prints the formatted result.
func callTool(ctx context.Context, flags *clientFlags, tool string, args map[string]any) error {
	callCtx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	transport, transportErr := buildTransport(flags)
	if transportErr != nil {
		return transportErr
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}, nil)

	session, connectErr := client.Connect(callCtx, transport, nil)
	if connectErr != nil {
		return fmt.Errorf("failed to connect to MCP server: %w", connectErr)
	}

	defer func() { _ = session.Close() }()

	result, callErr := session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if callErr != nil {
		return fmt.Errorf("failed to call tool '%s': %w", tool, callErr)
	}

	output, formatErr := formatResult(result)
	if formatErr != nil {
		return formatErr
	}

	if result.IsError {
		return fmt.Errorf("%w: %s", ErrToolFailed, output)
	}

	fmt.Println(output)

	return nil
}

// buildTransport picks the wire transport from the connection flags. A
// server command wins over an endpoint URL.
func buildTransport(flags *clientFlags) (mcp.Transport, error) {
	if flags.serverCmd != "" {
		parts := strings.Fields(flags.serverCmd)

		cmd := exec.Command(parts[0], parts[1:]...)
		cmd.Stderr = os.Stderr

		transport := &mcp.CommandTransport{Command: cmd}
		transport.TerminateDuration = terminateWait

		return transport, nil
	}

	if flags.endpoint == "" {
		return nil, ErrNoEndpoint
	}

	if flags.useSSE {
		return &mcp.SSEClientTransport{Endpoint: flags.endpoint}, nil
	}

	return &mcp.StreamableClientTransport{Endpoint: flags.endpoint}, nil
}

// formatResult renders a tool result for the terminal. A single text block
// prints as-is; anything richer prints as JSON.
func formatResult(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", ErrEmptyResponse
	}

	if len(result.Content) == 1 && result.StructuredContent == nil {
		textContent, ok := result.Content[0].(*mcp.TextContent)
		if ok {
			return textContent.Text, nil
		}
	}

	payload := map[string]any{"is_error": result.IsError}

	if len(result.Content) > 0 {
		payload["content"] = result.Content
	}

	if result.StructuredContent != nil {
		payload["structured_content"] = result.StructuredContent
	}

	data, marshalErr := json.MarshalIndent(payload, "", "  ")
	if marshalErr != nil {
		return "", fmt.Errorf("failed to encode tool response: %w", marshalErr)
	}

	return string(data), nil
}
