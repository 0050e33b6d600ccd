package main

import (
	"context"
	"log/slog"

	"carder-backend/lib/configutil"
	"carder-backend/lib/scrapers/healthreport"
	"carder-backend/lib/serviceutil"
	"carder-backend/lib/telemetry"
	"carder-backend/services/carder"
)

type Config struct {
	Tasks []carder.TaskConfig `json:"tasks"`
	// optional portal overrides, mostly useful behind a proxy
	Portal healthreport.ClientOptions `json:"portal"`
}

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "carderd")
	if err != nil {
		serviceutil.Fatal("failed to initialize telemetry", err)
	}
	defer tel.Shutdown(context.Background())

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to load configuration", err)
	}
	if len(config.Tasks) == 0 {
		slog.Error("no tasks found in the config file")
		return
	}

	scheduler := carder.NewScheduler(config.Portal)
	registered := scheduler.RegisterAll(ctx, config.Tasks)
	if registered == 0 {
		slog.Error("no valid tasks to schedule")
		return
	}
	scheduler.Start()

	<-ctx.Done()
	slog.Info("shutting down")
	scheduler.Stop()
}
