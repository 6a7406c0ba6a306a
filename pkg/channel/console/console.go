// Package console runs the terminal conversation loop: stdin lines become
// utterances, matching responses are printed back.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"aria/pkg/bus"
)

const channelName = "console"

const prompt = "🎙️  "

// Adapter reads utterances line by line and prints the responses addressed
// to this channel.
type Adapter struct {
	bus *bus.Bus
	log *slog.Logger

	in  io.Reader
	out io.Writer
}

// NewAdapter wires the console onto the bus.
func NewAdapter(b *bus.Bus, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		bus: b,
		log: log.With("component", "channel.console"),
		in:  os.Stdin,
		out: os.Stdout,
	}
}

// Name returns the channel identifier used in event sources and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts the read loop. Empty lines are skipped, "exit" and "quit" end
// the session. Run returns when the context is cancelled or input ends.
func (a *Adapter) Run(ctx context.Context) error {
	events, cancel := a.bus.Watch(ctx, 32)
	defer cancel()
	go a.printResponses(events)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprint(a.out, prompt)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}

			text := strings.TrimSpace(line)
			if text == "" {
				fmt.Fprint(a.out, prompt)
				continue
			}
			if isExitCommand(text) {
				return nil
			}

			if err := a.bus.Publish(bus.NewEvent(bus.EventSpeechResult, map[string]any{
				"text": text,
			}).WithSource(channelName)); err != nil {
				a.log.Error("Failed to publish utterance", "error", err)
			}
		}
	}
}

// printResponses renders skill.response events addressed to the console.
func (a *Adapter) printResponses(events <-chan bus.Event) {
	for event := range events {
		if event.Type != bus.EventSkillResponse || event.Source != channelName {
			continue
		}

		text, _ := event.Data["text"].(string)
		if text == "" {
			continue
		}

		fmt.Fprintf(a.out, "%s\n%s", text, prompt)
	}
}

func isExitCommand(text string) bool {
	switch strings.ToLower(text) {
	case "exit", "quit", "/exit", "/quit":
		return true
	default:
		return false
	}
}
