// Package skill defines the matchable unit (Intent) and the pluggable unit
// (Skill) of the assistant, plus the registry that dispatches utterances to
// the best-matching skill.
package skill

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"aria/pkg/config"
)

// Priority biases a handler's match confidence. Higher tiers claim
// utterances more aggressively.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Intent is a scored claim by a skill that it understands an utterance.
// Produced fresh per match attempt and never mutated afterwards.
type Intent struct {
	Name       string // "<skill_name>.<handler_name>"
	Confidence float64
	Entities   map[string]string
	RawText    string
}

// HandlerName returns the trailing segment of the intent name.
func (i Intent) HandlerName() string {
	if idx := strings.LastIndexByte(i.Name, '.'); idx >= 0 {
		return i.Name[idx+1:]
	}

	return i.Name
}

// Match is the result a predicate matcher reports for an utterance.
type Match struct {
	Entities   map[string]string
	Confidence float64 // defaults to 0.5 when left zero
}

// PredicateFunc is a custom matcher over raw utterance text.
type PredicateFunc func(text string) (Match, bool)

// Matcher is a tagged variant over the three supported matching rules:
// case-insensitive literal substring, regular expression with named capture
// groups, or a custom predicate.
type Matcher struct {
	literal   string
	pattern   *regexp.Regexp
	predicate PredicateFunc
}

// MatchLiteral matches when the utterance contains the given text,
// case-insensitively.
func MatchLiteral(text string) Matcher {
	return Matcher{literal: strings.ToLower(text)}
}

// MatchRegex matches when the pattern finds the utterance; named capture
// groups become intent entities.
func MatchRegex(pattern *regexp.Regexp) Matcher {
	return Matcher{pattern: pattern}
}

// MatchFunc matches via a custom predicate carrying its own confidence.
func MatchFunc(fn PredicateFunc) Matcher {
	return Matcher{predicate: fn}
}

type matchResult struct {
	entities   map[string]string
	confidence float64 // set only for predicate matches
	custom     bool
}

// evaluate runs the matcher against text.
func (m Matcher) evaluate(text string) (matchResult, bool) {
	switch {
	case m.predicate != nil:
		result, ok := m.predicate(text)
		if !ok {
			return matchResult{}, false
		}
		confidence := result.Confidence
		if confidence == 0 {
			confidence = 0.5
		}
		return matchResult{entities: result.Entities, confidence: confidence, custom: true}, true

	case m.pattern != nil:
		found := m.pattern.FindStringSubmatch(text)
		if found == nil {
			return matchResult{}, false
		}
		entities := make(map[string]string)
		for i, name := range m.pattern.SubexpNames() {
			if name != "" && i < len(found) {
				entities[name] = found[i]
			}
		}
		return matchResult{entities: entities}, true

	case m.literal != "":
		if !strings.Contains(strings.ToLower(text), m.literal) {
			return matchResult{}, false
		}
		return matchResult{}, true

	default:
		return matchResult{}, false
	}
}

// HandlerFunc executes a matched intent and returns the response text. It
// may block on slow work; the engine runs it on its own goroutine under a
// deadline context.
type HandlerFunc func(ctx context.Context, intent Intent) (string, error)

// Handler is one statically declared (matcher, handler, priority) entry in a
// skill's dispatch table.
type Handler struct {
	Name     string
	Match    Matcher
	Priority Priority
	Func     HandlerFunc
}

// Skill is the pluggable unit implementing one domain of conversational
// capability.
type Skill interface {
	Name() string
	Description() string
	Version() string

	// Match reports the skill's best intent for the utterance. It must be
	// synchronous and fast.
	Match(text string) (Intent, bool)

	// Handle executes the intent's handler and returns the response text.
	// Failures inside the handler degrade to an apology string; Handle
	// never reports them upwards.
	Handle(ctx context.Context, intent Intent) string

	// Stop releases the skill's resources. Idempotent.
	Stop()
}

// User-facing apology strings for degraded skill behavior.
const (
	responseDisabled     = "This skill is currently disabled."
	responseNoHandler    = "Sorry, I can't handle that request right now."
	responseHandlerError = "I encountered an error processing that request."
)

// matchFloor is the minimum confidence a skill must reach to be eligible.
const matchFloor = 0.5

// Base carries the shared Match/Handle semantics. Concrete skills embed it
// and declare their handler table at construction.
type Base struct {
	name        string
	description string
	version     string
	enabled     bool
	handlers    []Handler
	byName      map[string]Handler
	log         *slog.Logger
}

// NewBase builds the shared skill core from a statically declared handler
// table and the skill's configuration snapshot.
func NewBase(name, description, version string, cfg config.SkillConfig, handlers []Handler, log *slog.Logger) *Base {
	if log == nil {
		log = slog.Default()
	}

	byName := make(map[string]Handler, len(handlers))
	for _, handler := range handlers {
		byName[handler.Name] = handler
	}

	return &Base{
		name:        name,
		description: description,
		version:     version,
		enabled:     cfg.IsEnabled(),
		handlers:    handlers,
		byName:      byName,
		log:         log.With("component", "skill."+name),
	}
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }
func (b *Base) Version() string     { return b.version }

// Enabled reports whether the skill participates in matching.
func (b *Base) Enabled() bool { return b.enabled }

// Match evaluates every handler's matcher against text and keeps the single
// highest-confidence candidate (strict comparison, so earlier handlers win
// ties). Literal and regex matches score 0.3 + 0.2*priority, plus 0.1 when
// named entities were captured, clamped at 1.0. Predicate matches carry
// their own confidence. No intent is reported unless the best candidate
// clears the 0.5 floor.
func (b *Base) Match(text string) (Intent, bool) {
	if !b.enabled {
		return Intent{}, false
	}

	var best Intent
	for _, handler := range b.handlers {
		result, ok := handler.Match.evaluate(text)
		if !ok {
			continue
		}

		confidence := result.confidence
		if !result.custom {
			confidence = baseConfidence(handler.Priority, len(result.entities) > 0)
		}

		if confidence > best.Confidence {
			best = Intent{
				Name:       b.name + "." + handler.Name,
				Confidence: confidence,
				Entities:   result.entities,
				RawText:    text,
			}
		}
	}

	if best.Confidence <= matchFloor {
		return Intent{}, false
	}

	return best, true
}

// Handle resolves the handler by the trailing segment of the intent name and
// executes it. Any error or panic inside the handler is logged and degraded
// to an apology; a single skill's bug must never crash the dispatcher.
func (b *Base) Handle(ctx context.Context, intent Intent) (response string) {
	if !b.enabled {
		return responseDisabled
	}

	handler, ok := b.byName[intent.HandlerName()]
	if !ok || handler.Func == nil {
		b.log.Warn("No handler for intent", "intent", intent.Name)
		return responseNoHandler
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Handler panicked", "intent", intent.Name, "panic", r)
			response = responseHandlerError
		}
	}()

	text, err := handler.Func(ctx, intent)
	if err != nil {
		b.log.Error("Handler failed", "intent", intent.Name, "error", err)
		return responseHandlerError
	}

	return text
}

// Stop is the default no-op cleanup hook; skills with resources override it.
func (b *Base) Stop() {}

// baseConfidence scores a literal or regex match from its priority tier and
// whether the match produced named entities.
func baseConfidence(priority Priority, hasEntities bool) float64 {
	confidence := 0.3 + float64(priority)*0.2
	if hasEntities {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return confidence
}
