package greeting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"aria/pkg/config"
)

func TestSayHello(t *testing.T) {
	s, err := New(config.SkillConfig{}, nil)
	require.NoError(t, err)

	intent, ok := s.Match("please say hello")
	require.True(t, ok)
	require.InDelta(t, 0.7, intent.Confidence, 1e-9)
	require.Equal(t, "Hello! How can I help you today?", s.Handle(context.Background(), intent))
}

func TestNameQuery(t *testing.T) {
	s, err := New(config.SkillConfig{}, nil)
	require.NoError(t, err)

	intent, ok := s.Match("what's your name?")
	require.True(t, ok)
	require.Equal(t, "I'm Aria, your personal assistant!", s.Handle(context.Background(), intent))

	intent, ok = s.Match("what is your name")
	require.True(t, ok)
	require.Equal(t, "name_query", intent.HandlerName())
}

func TestConfiguredName(t *testing.T) {
	s, err := New(config.SkillConfig{
		Options: map[string]any{"name": "Jarvis"},
	}, nil)
	require.NoError(t, err)

	intent, ok := s.Match("what is your name")
	require.True(t, ok)
	require.Equal(t, "I'm Jarvis, your personal assistant!", s.Handle(context.Background(), intent))
}

func TestNoMatchForUnrelatedText(t *testing.T) {
	s, err := New(config.SkillConfig{}, nil)
	require.NoError(t, err)

	_, ok := s.Match("turn on the lights")
	require.False(t, ok)
}

func TestDisabledSkillNeverMatches(t *testing.T) {
	disabled := false
	s, err := New(config.SkillConfig{Enabled: &disabled}, nil)
	require.NoError(t, err)

	_, ok := s.Match("say hello")
	require.False(t, ok)
}
