// Package engine owns the assistant's processing loop: it serializes raw
// recognized text into dispatch tasks, wires lifecycle events, and exposes
// start/stop control to the host process.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"aria/pkg/bus"
	"aria/pkg/config"
	"aria/pkg/skill"
)

// Version is reported in the system.startup event.
const Version = "1.0.0"

const defaultQueueSize = 64

const responseTimeout = "I'm sorry, that request took too long to complete."

type request struct {
	text   string
	source string
}

// Engine drives the Stopped -> Running -> Stopped state machine. Utterances
// enter through Submit (or a speech.result event) into a thread-safe queue;
// a single runner goroutine drains the queue, while each request's handling
// runs on its own goroutine so a slow skill never blocks scheduling of the
// next request. Completion order is therefore not submission order.
type Engine struct {
	bus            *bus.Bus
	registry       *skill.Registry
	log            *slog.Logger
	handlerTimeout time.Duration

	queue chan request
	fatal chan error

	dispatches sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a stopped engine.
func New(b *bus.Bus, registry *skill.Registry, cfg config.AssistantConfig, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Engine{
		bus:            b,
		registry:       registry,
		log:            log.With("component", "engine"),
		handlerTimeout: cfg.HandlerTimeout(),
		queue:          make(chan request, queueSize),
		fatal:          make(chan error, 1),
	}
}

// Start transitions the engine to Running: it subscribes to speech results,
// publishes system.startup, and launches the runner. Starting a running
// engine is a warning-level no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.log.Warn("Assistant is already running")
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	e.bus.Subscribe(bus.EventSpeechResult, e.onSpeechResult)

	e.log.Info("Starting assistant engine", "version", Version)
	e.publish(bus.NewEvent(bus.EventStartup, map[string]any{"version": Version}))

	go e.run(stopCh, doneCh)
}

// Stop transitions the engine to Stopped: the runner halts after the current
// task drains, in-flight dispatches settle (each is bounded by the handler
// deadline), the registry stops every skill, and system.shutdown is
// published. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	e.log.Info("Stopping assistant engine")

	e.bus.Unsubscribe(e.onSpeechResult, bus.EventSpeechResult)
	close(stopCh)
	<-doneCh

	// Let in-flight dispatches settle before tearing down the skills.
	e.dispatches.Wait()
	e.registry.Stop()
	e.publish(bus.NewEvent(bus.EventShutdown, nil))
	e.log.Info("Assistant engine stopped")
}

// Running reports whether the engine accepts submissions.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.running
}

// Err delivers a fatal runner failure to the host process.
func (e *Engine) Err() <-chan error {
	return e.fatal
}

// Submit enqueues one utterance for processing. It is safe to call from any
// goroutine. Blank text is dropped before reaching the dispatcher, and a
// full queue drops the request with a warning rather than blocking the
// caller.
func (e *Engine) Submit(text string, source string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if !e.Running() {
		e.log.Warn("Dropping submission, engine is not running", "source", source)
		return false
	}

	select {
	case e.queue <- request{text: text, source: source}:
		return true
	default:
		e.log.Warn("Dropping submission, queue is full", "source", source)
		return false
	}
}

// onSpeechResult bridges recognized-speech events into the queue.
func (e *Engine) onSpeechResult(event bus.Event) {
	text, _ := event.Data["text"].(string)
	e.Submit(text, event.Source)
}

// run drains the queue one request at a time. A panic escaping the loop is a
// fatal engine error: logged, reported to the host, and the engine stopped.
func (e *Engine) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Fatal error in engine runner", "panic", r)
			e.reportFatal(fmt.Errorf("engine runner: %v", r))
			go e.Stop()
		}
	}()

	for {
		select {
		case <-stopCh:
			return
		case req := <-e.queue:
			e.process(req)
		}
	}
}

// process echoes the utterance as speech.recognized and hands the request to
// its own dispatch goroutine.
func (e *Engine) process(req request) {
	e.log.Info("Processing utterance", "text", req.text, "source", req.source)

	// Counted before speech.recognized goes out, so any observer of that
	// event knows Stop will wait for this request.
	e.dispatches.Add(1)

	e.publish(bus.NewEvent(bus.EventSpeechRecognized, map[string]any{
		"text": req.text,
	}).WithSource(req.source))

	go e.dispatch(req)
}

type dispatchResult struct {
	response string
	winner   skill.Skill
	ok       bool
}

// dispatch runs the registry round under the handler deadline and publishes
// the outcome: skill.response with the winning skill, then the tts.say
// speak request carrying the same text.
func (e *Engine) dispatch(req request) {
	defer e.dispatches.Done()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Fatal error in dispatch", "panic", r)
			e.reportFatal(fmt.Errorf("engine dispatch: %v", r))
			go e.Stop()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.handlerTimeout)
	defer cancel()

	resultCh := make(chan dispatchResult, 1)
	go func() {
		response, winner, ok := e.registry.Dispatch(ctx, req.text)
		resultCh <- dispatchResult{response: response, winner: winner, ok: ok}
	}()

	var result dispatchResult
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		// A hung handler must not silence the user or stall the engine.
		e.log.Error("Handler timed out", "text", req.text, "timeout", e.handlerTimeout)
		e.publish(bus.NewEvent(bus.EventSkillError, map[string]any{
			"error": fmt.Sprintf("handler timed out after %s", e.handlerTimeout),
		}).WithSource(req.source))
		result = dispatchResult{response: responseTimeout, ok: true}
	}

	if !result.ok || result.response == "" {
		return
	}

	responseData := map[string]any{"text": result.response}
	if result.winner != nil {
		responseData["skill"] = result.winner.Name()
	}
	e.publish(bus.NewEvent(bus.EventSkillResponse, responseData).WithSource(req.source))
	e.publish(bus.NewEvent(bus.EventTTSSay, map[string]any{
		"text": result.response,
	}).WithSource(req.source))
}

func (e *Engine) reportFatal(err error) {
	select {
	case e.fatal <- err:
	default:
	}
}

func (e *Engine) publish(event bus.Event) {
	if event.Source == "" {
		event = event.WithSource("engine")
	}
	if err := e.bus.Publish(event); err != nil {
		e.log.Error("Failed to publish engine event", "event_type", event.Type, "error", err)
	}
}
