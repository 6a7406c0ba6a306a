package tts

import (
	"context"
	"log/slog"
	"strings"

	"aria/pkg/bus"
)

// Speaker bridges the bus onto a synthesizer: every tts.say event is spoken
// in order, bracketed by tts.start and tts.end events so the rest of the
// system can react to speech output.
type Speaker struct {
	bus   *bus.Bus
	synth Synthesizer
	log   *slog.Logger
}

// NewSpeaker wires a synthesizer onto the bus.
func NewSpeaker(b *bus.Bus, synth Synthesizer, log *slog.Logger) *Speaker {
	if synth == nil {
		synth = Null{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Speaker{
		bus:   b,
		synth: synth,
		log:   log.With("component", "tts.speaker"),
	}
}

// Run consumes speech requests until the context is cancelled. Requests are
// spoken one at a time; a failing synthesizer is logged and skipped so one
// bad utterance never stalls the queue.
func (s *Speaker) Run(ctx context.Context) error {
	events, cancel := s.bus.Watch(ctx, 64)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			s.synth.Stop()
			return nil
		case event, ok := <-events:
			if !ok {
				s.synth.Stop()
				return nil
			}
			if event.Type != bus.EventTTSSay {
				continue
			}
			s.speak(ctx, event)
		}
	}
}

func (s *Speaker) speak(ctx context.Context, event bus.Event) {
	text, _ := event.Data["text"].(string)
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.publish(bus.NewEvent(bus.EventTTSStart, map[string]any{"text": text}))
	if err := s.synth.Speak(ctx, text); err != nil {
		s.log.Error("Failed to speak", "error", err)
	}
	s.publish(bus.NewEvent(bus.EventTTSEnd, nil))
}

func (s *Speaker) publish(event bus.Event) {
	if err := s.bus.Publish(event.WithSource("tts")); err != nil {
		s.log.Error("Failed to publish tts event", "event_type", event.Type, "error", err)
	}
}
