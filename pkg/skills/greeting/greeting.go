// Package greeting answers greetings and questions about the assistant
// itself.
package greeting

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"aria/pkg/config"
	"aria/pkg/skill"
)

var namePattern = regexp.MustCompile(`(?i)what('?s| is) your name`)

const defaultAssistantName = "Aria"

// Greeting is the builtin conversational icebreaker skill.
type Greeting struct {
	*skill.Base

	assistantName string
}

// New builds the skill. The assistant introduces itself with the configured
// `name` option.
func New(cfg config.SkillConfig, log *slog.Logger) (skill.Skill, error) {
	s := &Greeting{
		assistantName: cfg.StringOption("name", defaultAssistantName),
	}

	handlers := []skill.Handler{
		{
			Name:     "hello",
			Match:    skill.MatchLiteral("say hello"),
			Priority: skill.PriorityHigh,
			Func:     s.handleHello,
		},
		{
			Name:     "greet",
			Match:    skill.MatchLiteral("good morning"),
			Priority: skill.PriorityHigh,
			Func:     s.handleGoodMorning,
		},
		{
			Name:     "name_query",
			Match:    skill.MatchRegex(namePattern),
			Priority: skill.PriorityHigh,
			Func:     s.handleNameQuery,
		},
	}

	s.Base = skill.NewBase(
		"greeting",
		"Responds to greetings and introduces the assistant.",
		"1.0.0",
		cfg,
		handlers,
		log,
	)

	return s, nil
}

func (s *Greeting) handleHello(context.Context, skill.Intent) (string, error) {
	return "Hello! How can I help you today?", nil
}

func (s *Greeting) handleGoodMorning(context.Context, skill.Intent) (string, error) {
	return "Good morning! What can I do for you?", nil
}

func (s *Greeting) handleNameQuery(context.Context, skill.Intent) (string, error) {
	return fmt.Sprintf("I'm %s, your personal assistant!", s.assistantName), nil
}
