package skill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"aria/pkg/bus"
	"aria/pkg/config"
)

// Factory instantiates one skill from its configuration snapshot.
type Factory func(cfg config.SkillConfig, log *slog.Logger) (Skill, error)

// Registry owns the loaded skills and dispatches utterances to the best
// match. Safe for concurrent use: a dispatch round iterates the set of
// skills loaded at its start, so Load and Stop never perturb a round that
// is already in flight.
type Registry struct {
	bus *bus.Bus
	log *slog.Logger

	mu     sync.RWMutex
	order  []string
	byName map[string]Skill
}

// NewRegistry constructs an empty registry publishing lifecycle events on b.
func NewRegistry(b *bus.Bus, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		bus:    b,
		log:    log.With("component", "skill.registry"),
		byName: make(map[string]Skill),
	}
}

// Load instantiates one skill and registers it under its resolved name.
// Disabled skills are skipped with a log line. Instantiation failures are
// isolated: they surface as a skill.error event and never propagate. A name
// collision overwrites the previous entry with a warning, keeping the
// original registration position.
func (r *Registry) Load(name string, factory Factory, cfg config.SkillConfig) (ok bool) {
	if !cfg.IsEnabled() {
		r.log.Info("Skill is disabled in config", "skill", name)
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Skill factory panicked", "skill", name, "panic", rec)
			r.publishLoadError(name, fmt.Sprintf("%v", rec))
			ok = false
		}
	}()

	instance, err := factory(cfg, r.log)
	if err != nil {
		r.log.Error("Failed to initialize skill", "skill", name, "error", err)
		r.publishLoadError(name, err.Error())
		return false
	}

	resolved := instance.Name()

	r.mu.Lock()
	if _, exists := r.byName[resolved]; exists {
		r.log.Warn("Skill name already registered, overwriting", "skill", resolved)
	} else {
		r.order = append(r.order, resolved)
	}
	r.byName[resolved] = instance
	r.mu.Unlock()

	r.log.Info("Loaded skill", "skill", resolved, "version", instance.Version())
	r.publish(bus.NewEvent(bus.EventSkillLoaded, map[string]any{
		"name":        resolved,
		"version":     instance.Version(),
		"description": instance.Description(),
	}))

	return true
}

// Get returns a loaded skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.byName[name]
	return instance, ok
}

// Skills returns the loaded skills in registration order.
func (r *Registry) Skills() []Skill {
	return r.snapshot()
}

// snapshot copies the loaded skills in registration order.
func (r *Registry) snapshot() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Skill, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}

	return out
}

// Dispatch asks every loaded skill to match text and invokes the winner's
// handler. The winner is the skill with the strictly highest confidence;
// first-registered wins ties. Blank input returns immediately without asking
// any skill. A skill whose Match panics is excluded from the round; a panic
// escaping Handle degrades to an apology embedding the failure, still
// attributed to the attempted skill.
func (r *Registry) Dispatch(ctx context.Context, text string) (string, Skill, bool) {
	if strings.TrimSpace(text) == "" {
		return "", nil, false
	}

	var (
		winner Skill
		best   Intent
	)

	for _, candidate := range r.snapshot() {
		intent, ok := r.safeMatch(candidate, text)
		if ok && intent.Confidence > best.Confidence {
			winner = candidate
			best = intent
		}
	}

	if winner == nil {
		return "", nil, false
	}

	r.log.Info("Matched intent",
		"intent", best.Name,
		"confidence", fmt.Sprintf("%.2f", best.Confidence),
	)

	return r.safeHandle(ctx, winner, best), winner, true
}

// safeMatch runs one skill's Match, excluding the skill from the round when
// it panics.
func (r *Registry) safeMatch(instance Skill, text string) (intent Intent, ok bool) {
	if instance == nil {
		return Intent{}, false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Skill match panicked", "skill", instance.Name(), "panic", rec)
			intent, ok = Intent{}, false
		}
	}()

	return instance.Match(text)
}

// safeHandle runs the winner's Handle, catching a panic that escaped the
// skill's own recovery.
func (r *Registry) safeHandle(ctx context.Context, instance Skill, intent Intent) (response string) {
	if instance == nil {
		return ""
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Skill handle panicked", "skill", instance.Name(), "panic", rec)
			response = fmt.Sprintf("I encountered an error processing that request: %v", rec)
		}
	}()

	return instance.Handle(ctx, intent)
}

// Stop stops every loaded skill, logging and continuing past individual
// failures, then clears the registry. Safe to call repeatedly; the second
// call is a no-op over an empty registry.
func (r *Registry) Stop() {
	r.mu.Lock()
	stopping := make([]Skill, 0, len(r.order))
	for _, name := range r.order {
		stopping = append(stopping, r.byName[name])
	}
	r.order = nil
	r.byName = make(map[string]Skill)
	r.mu.Unlock()

	for _, instance := range stopping {
		r.safeStop(instance)
	}
}

func (r *Registry) safeStop(instance Skill) {
	if instance == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Skill stop panicked", "skill", instance.Name(), "panic", rec)
		}
	}()

	instance.Stop()
}

func (r *Registry) publishLoadError(name string, detail string) {
	r.publish(bus.NewEvent(bus.EventSkillError, map[string]any{
		"module": name,
		"error":  detail,
	}))
}

func (r *Registry) publish(event bus.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(event.WithSource("skill.registry")); err != nil {
		r.log.Error("Failed to publish registry event", "event_type", event.Type, "error", err)
	}
}
