/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"aria/pkg/config"
	"aria/pkg/logger"
)

// sayCmd represents the say command
var sayCmd = &cobra.Command{
	Use:   "say [text]",
	Short: "Dispatch one utterance and print the response",
	Long:  "Loads configuration and the built-in skills, runs one utterance through intent matching, and prints the winning skill's response.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			fmt.Println("nothing to say")
			return
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)

		b, registry, _ := buildAssistant(cfg, slog.Default())
		defer b.Close()
		defer registry.Stop()

		response, winner, ok := registry.Dispatch(context.Background(), text)
		if !ok {
			fmt.Println("no skill could handle that")
			return
		}

		fmt.Println(response)
		if winner != nil {
			slog.Default().Debug("Utterance handled", "skill", winner.Name())
		}
	},
}

func init() {
	rootCmd.AddCommand(sayCmd)
}
