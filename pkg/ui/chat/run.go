package chat

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"aria/pkg/bus"
)

// SubmitFunc hands one utterance to the assistant; it reports false when
// the request was refused.
type SubmitFunc func(text string) bool

// Run opens the chat window over the bus and blocks until the user quits.
func Run(ctx context.Context, b *bus.Bus, submit SubmitFunc, assistantName string) error {
	events, cancel := b.Watch(ctx, 64)
	defer cancel()

	model := newModel(events, submit, assistantName)
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner(assistantName))
	return nil
}

func renderGoodbyeBanner(assistantName string) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("25")).
		Padding(1, 2)

	return style.Render("🎙️ " + assistantName + " signing off")
}
