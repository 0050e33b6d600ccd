package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Message is one outcome report, rendered the same way for every
// channel.
type Message struct {
	Title   string
	Content string
}

// Sender is one notification delivery channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Config selects and parameterizes one channel.
type Config struct {
	Type     string   `json:"type"`
	InitArgs InitArgs `json:"init_args"`
}

type InitArgs struct {
	// pushplus
	Token    string `json:"token"`
	Template string `json:"template"`
	// undocumented, lets tests point at a stub server
	Endpoint string `json:"endpoint"`

	// email
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

func NewSender(config Config) (Sender, error) {
	switch config.Type {
	case "", "wechat", "pushplus":
		return NewPushPlusSender(config.InitArgs)
	case "email":
		return NewEmailSender(config.InitArgs)
	}
	return nil, fmt.Errorf("unknown message sender type %q", config.Type)
}

// Dispatch fans a message out to every sender in order. A failing
// sender is logged and skipped; it never stops the remaining senders
// and never surfaces to the caller, so a dead channel can't take a
// submission run down with it.
func Dispatch(ctx context.Context, senders []Sender, msg Message) {
	for _, sender := range senders {
		err := sender.Send(ctx, msg)
		if err != nil {
			slog.WarnContext(
				ctx, "failed to send notification",
				"sender", fmt.Sprintf("%T", sender),
				"err", err,
			)
			continue
		}
		slog.InfoContext(
			ctx, "sent notification",
			"sender", fmt.Sprintf("%T", sender),
		)
	}
}

// CloseAll releases every sender's resources, logging rather than
// propagating failures.
func CloseAll(senders []Sender) {
	for _, sender := range senders {
		err := sender.Close()
		if err != nil {
			slog.Warn(
				"failed to close notification sender",
				"sender", fmt.Sprintf("%T", sender),
				"err", err,
			)
		}
	}
}
