// Package tts turns tts.say events into audible speech through a pluggable
// synthesizer backend.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"aria/pkg/config"
)

// Synthesizer renders one utterance. Speak blocks until playback finishes
// or the context is cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Null discards speech requests. Used when no engine is configured.
type Null struct{}

func (Null) Speak(context.Context, string) error { return nil }
func (Null) Stop()                               {}

// Command shells out to an external speech engine such as espeak, passing
// the utterance as the final argument.
type Command struct {
	command string
	args    []string
	log     *slog.Logger
}

// NewCommand builds a command-backed synthesizer from config.
func NewCommand(cfg config.TTSConfig, log *slog.Logger) (*Command, error) {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		return nil, errors.New("tts.command is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Command{
		command: command,
		args:    cfg.Args,
		log:     log.With("component", "tts.command"),
	}, nil
}

// Speak runs the configured command once per utterance.
func (c *Command) Speak(ctx context.Context, text string) error {
	args := make([]string, 0, len(c.args)+1)
	args = append(args, c.args...)
	args = append(args, text)

	cmd := exec.CommandContext(ctx, c.command, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("run %s: %w: %s", c.command, err, strings.TrimSpace(string(output)))
	}

	return nil
}

func (c *Command) Stop() {}
