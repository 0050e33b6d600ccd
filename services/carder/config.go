package carder

import (
	"fmt"

	"carder-backend/lib/notify"
)

type ScheduleConfig struct {
	Hour   *int `json:"hour"`
	Minute *int `json:"minute"`
	// maximum jitter in seconds; defaults to 1200 when omitted
	RandDelay *int `json:"rand_delay"`
}

type TaskConfig struct {
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	Schedule     *ScheduleConfig `json:"schedule"`
	RunImmediate bool            `json:"run_immediate"`
	MsgSenders   []notify.Config `json:"msg_senders"`
}

const defaultRandDelay = 1200

func (t TaskConfig) randDelay() int {
	if t.Schedule == nil || t.Schedule.RandDelay == nil {
		return defaultRandDelay
	}
	return *t.Schedule.RandDelay
}

func (t TaskConfig) validate() error {
	if t.Username == "" || t.Password == "" {
		return fmt.Errorf("a task must include both 'username' and 'password'")
	}
	if t.Schedule == nil {
		return fmt.Errorf("a task must include a 'schedule'")
	}
	if t.Schedule.Hour == nil || t.Schedule.Minute == nil {
		return fmt.Errorf("a task schedule must include both 'hour' and 'minute'")
	}
	if *t.Schedule.Hour < 0 || *t.Schedule.Hour > 23 {
		return fmt.Errorf("schedule hour %d is out of range", *t.Schedule.Hour)
	}
	if *t.Schedule.Minute < 0 || *t.Schedule.Minute > 59 {
		return fmt.Errorf("schedule minute %d is out of range", *t.Schedule.Minute)
	}
	if t.randDelay() < 0 {
		return fmt.Errorf("rand_delay must not be negative")
	}
	return nil
}
