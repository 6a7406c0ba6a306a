// Package system reports on the assistant itself: uptime, status, and the
// most recent bus activity.
package system

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aria/pkg/bus"
	"aria/pkg/config"
	"aria/pkg/skill"
)

const recentEventCount = 5

var statusKeywords = []string{"how are you", "system status", "are you ok", "are you okay"}

// System is the builtin self-reporting skill.
type System struct {
	*skill.Base

	bus       *bus.Bus
	startedAt time.Time
	now       func() time.Time
}

// Factory binds the event bus into a skill factory; the skill's uptime
// clock starts when the factory runs.
func Factory(b *bus.Bus) skill.Factory {
	return func(cfg config.SkillConfig, log *slog.Logger) (skill.Skill, error) {
		return New(b, cfg, log)
	}
}

// New builds the skill around the given bus.
func New(b *bus.Bus, cfg config.SkillConfig, log *slog.Logger) (skill.Skill, error) {
	s := &System{
		bus:       b,
		startedAt: time.Now(),
		now:       time.Now,
	}

	handlers := []skill.Handler{
		{
			Name:     "status",
			Match:    skill.MatchFunc(matchStatus),
			Priority: skill.PriorityHigh,
			Func:     s.handleStatus,
		},
		{
			Name:     "uptime",
			Match:    skill.MatchLiteral("uptime"),
			Priority: skill.PriorityHigh,
			Func:     s.handleUptime,
		},
		{
			Name:     "recent_events",
			Match:    skill.MatchLiteral("recent events"),
			Priority: skill.PriorityHigh,
			Func:     s.handleRecentEvents,
		},
	}

	s.Base = skill.NewBase(
		"system",
		"Reports assistant status, uptime, and recent activity.",
		"1.0.0",
		cfg,
		handlers,
		log,
	)

	return s, nil
}

// matchStatus claims status questions with a fixed 0.8 confidence.
func matchStatus(text string) (skill.Match, bool) {
	lowered := strings.ToLower(text)
	for _, keyword := range statusKeywords {
		if strings.Contains(lowered, keyword) {
			return skill.Match{Confidence: 0.8}, true
		}
	}

	return skill.Match{}, false
}

func (s *System) handleStatus(context.Context, skill.Intent) (string, error) {
	return fmt.Sprintf("All systems are running normally. I've been up for %s.", s.uptime()), nil
}

func (s *System) handleUptime(context.Context, skill.Intent) (string, error) {
	return fmt.Sprintf("I've been running for %s.", s.uptime()), nil
}

func (s *System) handleRecentEvents(context.Context, skill.Intent) (string, error) {
	records := s.bus.History(recentEventCount)
	if len(records) == 0 {
		return "Nothing has happened yet.", nil
	}

	types := make([]string, 0, len(records))
	for _, record := range records {
		types = append(types, string(record.Event.Type))
	}

	return fmt.Sprintf("The last %d events were: %s.", len(records), strings.Join(types, ", ")), nil
}

func (s *System) uptime() string {
	return s.now().Sub(s.startedAt).Round(time.Second).String()
}
