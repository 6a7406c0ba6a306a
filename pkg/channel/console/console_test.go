package console

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"aria/pkg/bus"
)

// syncBuffer keeps concurrent writer and reader goroutines race-free.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func newTestAdapter(in io.Reader) (*Adapter, *bus.Bus, *syncBuffer) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New(log)

	out := &syncBuffer{}
	a := NewAdapter(b, log)
	a.in = in
	a.out = out

	return a, b, out
}

func TestPublishesUtterances(t *testing.T) {
	a, b, _ := newTestAdapter(strings.NewReader("hello there\n\n  \nsecond line\n"))
	defer b.Close()

	var got []string
	b.Subscribe(bus.EventSpeechResult, func(event bus.Event) {
		text, _ := event.Data["text"].(string)
		if event.Source != channelName {
			t.Errorf("event source = %q, want %q", event.Source, channelName)
		}
		got = append(got, text)
	})

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"hello there", "second line"}
	if len(got) != len(want) {
		t.Fatalf("published %d utterances, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("utterance %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExitCommandEndsSession(t *testing.T) {
	a, b, _ := newTestAdapter(strings.NewReader("exit\nnever read\n"))
	defer b.Close()

	var published int
	b.Subscribe(bus.EventSpeechResult, func(bus.Event) { published++ })

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if published != 0 {
		t.Fatalf("published %d utterances after exit, want 0", published)
	}
}

func TestPrintsConsoleResponses(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	a, b, out := newTestAdapter(pr)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()

	// The watcher needs a moment to register before publishing.
	time.Sleep(20 * time.Millisecond)

	publish := func(source, text string) {
		t.Helper()
		if err := b.Publish(bus.NewEvent(bus.EventSkillResponse, map[string]any{
			"text": text,
		}).WithSource(source)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	publish(channelName, "Hello from the assistant")
	publish("telegram:42", "not for the console")

	deadline := time.After(2 * time.Second)
	for !strings.Contains(out.String(), "Hello from the assistant") {
		select {
		case <-deadline:
			t.Fatalf("response never printed, output: %q", out.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if strings.Contains(out.String(), "not for the console") {
		t.Fatalf("received response addressed to another channel: %q", out.String())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
