package carder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"carder-backend/lib/notify"
	"carder-backend/lib/scrapers/healthreport"
	"carder-backend/lib/timezone"

	"github.com/mazen160/go-random"
	"github.com/robfig/cron/v3"
)

// Scheduler fires one submission run per task per day. Every firing
// runs in its own goroutine (the cron library's behavior), so one
// account's slow portal never delays another's trigger.
type Scheduler struct {
	cron    *cron.Cron
	portal  healthreport.ClientOptions
	senders [][]notify.Sender
}

func NewScheduler(portal healthreport.ClientOptions) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(timezone.Location)),
		portal: portal,
	}
}

// Register validates a task and adds its daily trigger. Senders are
// constructed once here and reused across firings; the session itself
// is never reused.
func (s *Scheduler) Register(ctx context.Context, task TaskConfig) error {
	err := task.validate()
	if err != nil {
		return err
	}

	var senders []notify.Sender
	for _, config := range task.MsgSenders {
		sender, err := notify.NewSender(config)
		if err != nil {
			notify.CloseAll(senders)
			return fmt.Errorf("task %s: %w", task.Username, err)
		}
		senders = append(senders, sender)
	}
	s.senders = append(s.senders, senders)

	run := func() {
		s.runTask(ctx, task, senders)
	}
	_, err = s.cron.AddFunc(
		fmt.Sprintf("%d %d * * *", *task.Schedule.Minute, *task.Schedule.Hour),
		run,
	)
	if err != nil {
		return err
	}

	slog.Info(
		"registered task",
		"username", task.Username,
		"at", fmt.Sprintf("%02d:%02d", *task.Schedule.Hour, *task.Schedule.Minute),
		"rand_delay", task.randDelay(),
	)

	if task.RunImmediate {
		slog.Info("running task immediately", "username", task.Username)
		go run()
	}
	return nil
}

// RegisterAll registers every valid task, skipping invalid ones with
// a warning so one bad entry never takes out its siblings. Returns the
// number of registered tasks.
func (s *Scheduler) RegisterAll(ctx context.Context, tasks []TaskConfig) int {
	registered := 0
	for _, task := range tasks {
		err := s.Register(ctx, task)
		if err != nil {
			slog.Warn("skipping invalid task", "username", task.Username, "err", err)
			continue
		}
		registered++
	}
	return registered
}

func (s *Scheduler) runTask(ctx context.Context, task TaskConfig, senders []notify.Sender) {
	if !s.sleepJitter(ctx, task) {
		return
	}

	carder, err := New(ctx, Options{
		Username: task.Username,
		Password: task.Password,
		Senders:  senders,
		Portal:   s.portal,
	})
	if err != nil {
		slog.Error("failed to create submission session", "username", task.Username, "err", err)
		return
	}
	carder.Run(ctx)
}

// sleeps a uniformly random [0, rand_delay] seconds so multiple tasks
// scheduled at the same minute don't hit the portal in the same
// second. Reports false when the daemon shut down mid-sleep.
func (s *Scheduler) sleepJitter(ctx context.Context, task TaskConfig) bool {
	maxDelay := task.randDelay()
	if maxDelay <= 0 {
		return true
	}

	delay, err := random.IntRange(0, maxDelay+1)
	if err != nil {
		slog.Warn("failed to draw a jitter delay, running without one", "err", err)
		return true
	}

	slog.Info("delaying task", "username", task.Username, "seconds", delay)
	select {
	case <-time.After(time.Duration(delay) * time.Second):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the trigger dispatcher, waits for in-flight firings and
// closes every sender.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	for _, senders := range s.senders {
		notify.CloseAll(senders)
	}
}
