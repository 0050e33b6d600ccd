package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// EmailSender delivers over SMTPS, opening one connection per send.
type EmailSender struct {
	server   string
	port     int
	address  string
	password string
	to       []string
}

func NewEmailSender(args InitArgs) (*EmailSender, error) {
	if args.Server == "" || args.EmailAddress == "" {
		return nil, fmt.Errorf("email sender requires a server and an email address")
	}
	port := args.Port
	if port == 0 {
		port = 465
	}
	to := args.To
	if len(to) == 0 {
		// self-notification is the common single-account setup
		to = []string{args.EmailAddress}
	}

	return &EmailSender{
		server:   args.Server,
		port:     port,
		address:  args.EmailAddress,
		password: args.Password,
		to:       to,
	}, nil
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Carder <%s>", s.address)
	mail.To = s.to
	mail.Subject = msg.Title
	mail.HTML = []byte(msg.Content)

	return mail.SendWithTLS(
		fmt.Sprintf("%s:%d", s.server, s.port),
		smtp.PlainAuth("", s.address, s.password, s.server),
		&tls.Config{ServerName: s.server},
	)
}

func (s *EmailSender) Close() error {
	return nil
}
