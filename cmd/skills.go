package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"aria/pkg/config"
	"aria/pkg/logger"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the loaded skills",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

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

		loaded := registry.Skills()
		if len(loaded) == 0 {
			fmt.Println("no skills loaded")
			return
		}

		for _, instance := range loaded {
			fmt.Printf("%s %s\t%s\n", instance.Name(), instance.Version(), instance.Description())
		}
	},
}

func init() {
	rootCmd.AddCommand(skillsCmd)
}
