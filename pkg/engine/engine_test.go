package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aria/pkg/bus"
	"aria/pkg/config"
	"aria/pkg/skill"
)

// echoSkill answers any utterance containing its trigger word.
type echoSkill struct {
	*skill.Base
}

func newEchoSkill(name, trigger, response string, log *slog.Logger) *echoSkill {
	s := &echoSkill{}
	s.Base = skill.NewBase(name, "test skill", "1.0.0", config.SkillConfig{}, []skill.Handler{
		{
			Name:     "echo",
			Match:    skill.MatchLiteral(trigger),
			Priority: skill.PriorityHigh,
			Func: func(context.Context, skill.Intent) (string, error) {
				return response, nil
			},
		},
	}, log)
	return s
}

// blockingSkill parks its handler until released, signalling entry once.
type blockingSkill struct {
	*skill.Base
	started     chan struct{}
	startedOnce sync.Once
	release     chan struct{}
}

func newBlockingSkill(trigger string, log *slog.Logger) *blockingSkill {
	s := &blockingSkill{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s.Base = skill.NewBase("blocker", "test skill", "1.0.0", config.SkillConfig{}, []skill.Handler{
		{
			Name:     "block",
			Match:    skill.MatchLiteral(trigger),
			Priority: skill.PriorityHigh,
			Func: func(ctx context.Context, _ skill.Intent) (string, error) {
				s.startedOnce.Do(func() { close(s.started) })
				select {
				case <-s.release:
					return "finally done", nil
				case <-ctx.Done():
					return "", ctx.Err()
				}
			},
		},
	}, log)
	return s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, cfg config.AssistantConfig, skills ...skill.Skill) (*Engine, *bus.Bus) {
	t.Helper()

	log := testLogger()
	b := bus.New(log)
	registry := skill.NewRegistry(b, log)
	for _, s := range skills {
		require.True(t, registry.Load(s.Name(), func(config.SkillConfig, *slog.Logger) (skill.Skill, error) {
			return s, nil
		}, config.SkillConfig{}))
	}

	e := New(b, registry, cfg, log)
	t.Cleanup(b.Close)
	t.Cleanup(e.Stop)

	return e, b
}

func waitFor(t *testing.T, events <-chan bus.Event, eventType bus.Type) bus.Event {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", eventType)
			}
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func TestStartPublishesStartup(t *testing.T) {
	e, b := newTestEngine(t, config.AssistantConfig{})

	events, cancel := b.Watch(context.Background(), 16)
	defer cancel()

	e.Start()
	startup := waitFor(t, events, bus.EventStartup)
	require.Equal(t, Version, startup.Data["version"])
	require.True(t, e.Running())
}

func TestStartTwiceIsNoOp(t *testing.T) {
	e, b := newTestEngine(t, config.AssistantConfig{})

	var startups int
	b.Subscribe(bus.EventStartup, func(bus.Event) { startups++ })

	e.Start()
	e.Start()
	require.Equal(t, 1, startups)
}

func TestStopIsIdempotent(t *testing.T) {
	e, b := newTestEngine(t, config.AssistantConfig{})

	var shutdowns int
	b.Subscribe(bus.EventShutdown, func(bus.Event) { shutdowns++ })

	e.Start()
	e.Stop()
	e.Stop()
	require.Equal(t, 1, shutdowns)
	require.False(t, e.Running())
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	e, b := newTestEngine(t, config.AssistantConfig{})

	var shutdowns int
	b.Subscribe(bus.EventShutdown, func(bus.Event) { shutdowns++ })

	e.Stop()
	require.Zero(t, shutdowns)
}

func TestSpeechResultFlow(t *testing.T) {
	greeter := newEchoSkill("greeter", "hello", "Hello! How can I help you today?", testLogger())
	e, b := newTestEngine(t, config.AssistantConfig{}, greeter)

	events, cancel := b.Watch(context.Background(), 32)
	defer cancel()

	e.Start()
	waitFor(t, events, bus.EventStartup)

	require.NoError(t, b.Publish(bus.NewEvent(bus.EventSpeechResult, map[string]any{
		"text": "say hello please",
	}).WithSource("console")))

	recognized := waitFor(t, events, bus.EventSpeechRecognized)
	require.Equal(t, "say hello please", recognized.Data["text"])
	require.Equal(t, "console", recognized.Source)

	response := waitFor(t, events, bus.EventSkillResponse)
	require.Equal(t, "Hello! How can I help you today?", response.Data["text"])
	require.Equal(t, "greeter", response.Data["skill"])
	require.Equal(t, "console", response.Source)

	say := waitFor(t, events, bus.EventTTSSay)
	require.Equal(t, "Hello! How can I help you today?", say.Data["text"])
}

func TestBlankSubmissionDropped(t *testing.T) {
	greeter := newEchoSkill("greeter", "hello", "hi", testLogger())
	e, b := newTestEngine(t, config.AssistantConfig{}, greeter)

	var recognized int
	b.Subscribe(bus.EventSpeechRecognized, func(bus.Event) { recognized++ })

	e.Start()
	require.False(t, e.Submit("", "test"))
	require.False(t, e.Submit("   ", "test"))

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, recognized)
}

func TestSubmitRefusedWhenStopped(t *testing.T) {
	e, _ := newTestEngine(t, config.AssistantConfig{})

	require.False(t, e.Submit("hello", "test"))
}

func TestSlowHandlerDoesNotBlockScheduling(t *testing.T) {
	blocker := newBlockingSkill("slow", testLogger())
	greeter := newEchoSkill("greeter", "hello", "quick reply", testLogger())
	e, b := newTestEngine(t, config.AssistantConfig{}, blocker, greeter)

	events, cancel := b.Watch(context.Background(), 32)
	defer cancel()

	e.Start()
	waitFor(t, events, bus.EventStartup)

	require.True(t, e.Submit("slow request", "test"))
	require.True(t, e.Submit("hello there", "test"))

	// The second submission completes while the first is still parked.
	first := waitFor(t, events, bus.EventSkillResponse)
	require.Equal(t, "quick reply", first.Data["text"])

	close(blocker.release)
	second := waitFor(t, events, bus.EventSkillResponse)
	require.Equal(t, "finally done", second.Data["text"])
}

func TestStopWaitsForInFlightDispatch(t *testing.T) {
	blocker := newBlockingSkill("slow", testLogger())
	e, b := newTestEngine(t, config.AssistantConfig{}, blocker)

	events, cancel := b.Watch(context.Background(), 32)
	defer cancel()

	e.Start()
	waitFor(t, events, bus.EventStartup)

	require.True(t, e.Submit("slow request", "test"))
	<-blocker.started

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a dispatch was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(blocker.release)
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after the dispatch settled")
	}

	// The parked request still answered, and only then did shutdown go out.
	response := waitFor(t, events, bus.EventSkillResponse)
	require.Equal(t, "finally done", response.Data["text"])
	waitFor(t, events, bus.EventShutdown)
	require.False(t, e.Running())
}

// volatileSkill behaves normally until armed, then panics on name lookups.
type volatileSkill struct {
	failing atomic.Bool
}

func (s *volatileSkill) Name() string {
	if s.failing.Load() {
		panic("name lookup exploded")
	}
	return "volatile"
}

func (s *volatileSkill) Description() string { return "test skill" }
func (s *volatileSkill) Version() string     { return "1.0.0" }

func (s *volatileSkill) Match(text string) (skill.Intent, bool) {
	return skill.Intent{Name: "volatile.boom", Confidence: 0.9, RawText: text}, true
}

func (s *volatileSkill) Handle(context.Context, skill.Intent) string { return "about to fail" }

func (s *volatileSkill) Stop() {}

func TestDispatchPanicIsFatal(t *testing.T) {
	broken := &volatileSkill{}
	e, b := newTestEngine(t, config.AssistantConfig{}, broken)

	events, cancel := b.Watch(context.Background(), 32)
	defer cancel()

	e.Start()
	waitFor(t, events, bus.EventStartup)

	broken.failing.Store(true)
	require.True(t, e.Submit("anything", "test"))

	select {
	case err := <-e.Err():
		require.ErrorContains(t, err, "name lookup exploded")
	case <-time.After(3 * time.Second):
		t.Fatal("fatal error never surfaced on Err()")
	}

	waitFor(t, events, bus.EventShutdown)
	require.False(t, e.Running())
}

func TestHandlerTimeout(t *testing.T) {
	blocker := newBlockingSkill("slow", testLogger())
	e, b := newTestEngine(t, config.AssistantConfig{HandlerTimeoutSeconds: 1}, blocker)

	events, cancel := b.Watch(context.Background(), 32)
	defer cancel()

	e.Start()
	waitFor(t, events, bus.EventStartup)

	require.True(t, e.Submit("slow request", "test"))

	timeoutEvent := waitFor(t, events, bus.EventSkillError)
	require.Contains(t, timeoutEvent.Data["error"], "timed out")

	response := waitFor(t, events, bus.EventSkillResponse)
	require.True(t, strings.Contains(response.Data["text"].(string), "took too long"))
}
