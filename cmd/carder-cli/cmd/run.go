package cmd

import (
	"context"
	"log/slog"

	"carder-backend/lib/configutil"
	"carder-backend/lib/notify"
	"carder-backend/lib/scrapers/healthreport"
	"carder-backend/lib/serviceutil"
	"carder-backend/services/carder"

	"github.com/spf13/cobra"
)

var configPath string

type runConfig struct {
	Tasks  []carder.TaskConfig        `json:"tasks"`
	Portal healthreport.ClientOptions `json:"portal"`
}

// runs every configured task once, right now, without the cron or the
// jitter delay; the daemon (carderd) is the scheduled counterpart
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured submission task once and exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configutil.ReadConfig[runConfig](configPath)
		if err != nil {
			return err
		}

		ctx := serviceutil.SignalContext()
		for _, task := range config.Tasks {
			runOnce(ctx, task, config.Portal)
		}
		return nil
	},
}

func runOnce(ctx context.Context, task carder.TaskConfig, portal healthreport.ClientOptions) {
	if task.Username == "" || task.Password == "" {
		slog.Warn("skipping task without username or password")
		return
	}

	var senders []notify.Sender
	for _, senderConfig := range task.MsgSenders {
		sender, err := notify.NewSender(senderConfig)
		if err != nil {
			slog.Warn("skipping broken message sender", "username", task.Username, "err", err)
			continue
		}
		senders = append(senders, sender)
	}
	defer notify.CloseAll(senders)

	runner, err := carder.New(ctx, carder.Options{
		Username: task.Username,
		Password: task.Password,
		Senders:  senders,
		Portal:   portal,
	})
	if err != nil {
		slog.Error("failed to create submission session", "username", task.Username, "err", err)
		return
	}

	if runner.Run(ctx) {
		slog.Info("task finished", "username", task.Username, "status", runner.Status())
	} else {
		slog.Warn("task failed", "username", task.Username, "status", runner.Status())
	}
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "./config.json5", "config file path")
	rootCmd.AddCommand(runCmd)
}
