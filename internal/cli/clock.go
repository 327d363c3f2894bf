package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quizastrous-server/internal/infra/memory"
	"quizastrous-server/internal/round"
)

// NewClockCmd prints the derived round clock for an instant.
func NewClockCmd(configPath *string) *cobra.Command {
	var at string
	var bankSize int
	cmd := &cobra.Command{
		Use:   "clock",
		Short: "Print the round clock for now or --at",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if at != "" {
				now, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			size := bankSize
			if size <= 0 {
				size = len(cfg.Questions)
			}
			if size <= 0 {
				size = len(memory.DefaultBank())
			}
			rc, err := cfg.Game.RoundConfig(time.Now(), size)
			if err != nil {
				return err
			}
			engine, err := round.NewEngine(rc)
			if err != nil {
				return err
			}
			printClock(cmd, rc, engine.At(now))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 instant to evaluate (default now)")
	cmd.Flags().IntVar(&bankSize, "bank-size", 0, "question bank size (default from config)")
	return cmd
}

func printClock(cmd *cobra.Command, rc round.Config, info round.Info) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "epoch:           %s\n", rc.Epoch.Format(time.RFC3339))
	fmt.Fprintf(out, "at:              %s\n", info.At.Format(time.RFC3339Nano))
	fmt.Fprintf(out, "round:           %d\n", info.Round)
	fmt.Fprintf(out, "phase:           %s\n", info.Phase)
	fmt.Fprintf(out, "intermission:    %t\n", info.Intermission)
	fmt.Fprintf(out, "phase time left: %s\n", info.PhaseTimeLeft)
	fmt.Fprintf(out, "round time left: %s\n", info.RoundTimeLeft)
	if info.HasQuestion() {
		fmt.Fprintf(out, "question:        %d (slot %d, seq %d)\n", info.QuestionIndex, info.Slot, info.Seq)
	}
}
