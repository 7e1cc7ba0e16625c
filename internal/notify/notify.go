// Package notify provides user-facing notifications for the session core.
//
// This is the "notification sink" collaborator boundary: coordinators hand
// messages here and the host decides how to surface them. The default
// implementation logs through zerolog and optionally rings the terminal bell
// for attention-requiring messages.
//
// Import rules:
//   - CAN import: std lib, zerolog
//   - MUST NOT import: other internal packages except internal/constants
package notify

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// MessageType classifies a user-facing message.
type MessageType string

// Message types, in increasing severity.
const (
	TypeInfo    MessageType = "info"
	TypeWarning MessageType = "warning"
	TypeError   MessageType = "error"
)

// Message is one user-facing notification.
type Message struct {
	// Type is the severity of the message.
	Type MessageType

	// Text is the message shown to the user.
	Text string
}

// Sink receives user-facing messages.
type Sink interface {
	// ShowMessage surfaces the message to the user. Implementations must not
	// block on user interaction.
	ShowMessage(ctx context.Context, msg Message)
}

// Config holds configuration for the terminal sink.
type Config struct {
	// BellEnabled controls whether warnings and errors ring the terminal bell.
	BellEnabled bool

	// Quiet suppresses the bell entirely.
	Quiet bool
}

// DefaultConfig returns sensible defaults: bell on, not quiet.
func DefaultConfig() Config {
	return Config{BellEnabled: true}
}

// TerminalSink implements Sink by logging the message and ringing the
// terminal bell for warning and error messages.
type TerminalSink struct {
	config Config
	logger zerolog.Logger
	writer io.Writer
}

// Ensure TerminalSink implements Sink.
var _ Sink = (*TerminalSink)(nil)

// NewTerminalSink creates a sink with the given configuration.
func NewTerminalSink(cfg Config, logger zerolog.Logger) *TerminalSink {
	return &TerminalSink{
		config: cfg,
		logger: logger.With().Str("component", "notify").Logger(),
		writer: os.Stdout,
	}
}

// NewTerminalSinkWithWriter creates a sink with a custom bell writer.
// This is useful for testing.
func NewTerminalSinkWithWriter(cfg Config, logger zerolog.Logger, w io.Writer) *TerminalSink {
	s := NewTerminalSink(cfg, logger)
	s.writer = w
	return s
}

// ShowMessage logs the message at its severity level and rings the bell for
// warnings and errors when enabled.
func (s *TerminalSink) ShowMessage(_ context.Context, msg Message) {
	if s == nil {
		return
	}

	switch msg.Type {
	case TypeWarning:
		s.logger.Warn().Msg(msg.Text)
	case TypeError:
		s.logger.Error().Msg(msg.Text)
	case TypeInfo:
		s.logger.Info().Msg(msg.Text)
	default:
		s.logger.Info().Str("message_type", string(msg.Type)).Msg(msg.Text)
	}

	if msg.Type != TypeInfo {
		s.bell()
	}
}

// bell writes the terminal bell character if enabled and not quiet.
func (s *TerminalSink) bell() {
	if !s.config.BellEnabled || s.config.Quiet {
		return
	}
	_, _ = s.writer.Write([]byte("\a"))
}
