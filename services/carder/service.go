package carder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"carder-backend/lib/notify"
	"carder-backend/lib/scrapers/healthreport"
	"carder-backend/lib/telemetry"
	"carder-backend/lib/timezone"

	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("carder.services.carder")

// Status tracks how far a submission run got. Transitions are forward
// only within one run; the final value ends up in the notification.
type Status int

const (
	StatusInitialized Status = iota
	StatusLogined
	StatusFailedLogin
	StatusGotInfo
	StatusNoCache
	StatusDecodeError
	StatusComplete
	StatusAlreadyComplete
	StatusFailedSubmit
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "INITIALIZED"
	case StatusLogined:
		return "LOGINED"
	case StatusFailedLogin:
		return "FAILED_LOGIN"
	case StatusGotInfo:
		return "GOT_INFO"
	case StatusNoCache:
		return "NO_CACHE"
	case StatusDecodeError:
		return "DECODE_ERROR"
	case StatusComplete:
		return "COMPLETE"
	case StatusAlreadyComplete:
		return "ALREADY_COMPLETE"
	case StatusFailedSubmit:
		return "FAILED_SUBMIT"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type Options struct {
	Username string
	Password string
	Senders  []notify.Sender
	// zero value targets the production portal
	Portal healthreport.ClientOptions
}

// Carder drives one submission run for one account. It owns its own
// session and record, so concurrent runs for different accounts never
// share state.
type Carder struct {
	username string
	client   *healthreport.Client
	senders  []notify.Sender
	password string
	record   healthreport.Record
	status   Status
}

func New(ctx context.Context, opts Options) (*Carder, error) {
	client, err := healthreport.NewClient(ctx, opts.Portal)
	if err != nil {
		return nil, err
	}
	return &Carder{
		username: opts.Username,
		password: opts.Password,
		client:   client,
		senders:  opts.Senders,
		status:   StatusInitialized,
	}, nil
}

func (c *Carder) Status() Status {
	return c.status
}

func (c *Carder) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "carder:Login")
	defer span.End()

	err := c.client.Login(ctx, c.username, c.password)
	if err != nil {
		c.status = StatusFailedLogin
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return err
	}

	c.status = StatusLogined
	slog.InfoContext(ctx, "logged in", "username", c.username)
	return nil
}

// GetInfo fetches the report page and derives today's record from the
// prior one. Transport errors leave the status at LOGINED; extraction
// errors land in the NO_CACHE or DECODE_ERROR buckets.
func (c *Carder) GetInfo(ctx context.Context) (healthreport.Record, error) {
	ctx, span := tracer.Start(ctx, "carder:GetInfo")
	defer span.End()

	html, err := c.client.FetchReportPage(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch report page")
		return nil, err
	}

	record, err := healthreport.Extract(html, timezone.Now())
	if err != nil {
		if errors.Is(err, healthreport.FragmentInvalid) {
			c.status = StatusDecodeError
		} else if errors.Is(err, healthreport.NoPriorRecord) ||
			errors.Is(err, healthreport.FragmentMissing) {
			c.status = StatusNoCache
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to extract submission record")
		return nil, err
	}

	c.record = record
	c.status = StatusGotInfo
	slog.InfoContext(ctx, "derived submission record", "username", c.username)
	return record, nil
}

// Submit posts the derived record. Errors here are swallowed into
// FAILED_SUBMIT: the login already succeeded, so the run should still
// finish and notify rather than abort.
func (c *Carder) Submit(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "carder:Submit")
	defer span.End()

	result, err := c.client.Save(ctx, c.record)
	if err != nil {
		c.status = StatusFailedSubmit
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the record")
		slog.WarnContext(
			ctx, "failed to submit the record",
			"username", c.username,
			"err", err,
		)
		return false
	}

	if result.AlreadySubmitted() {
		c.status = StatusAlreadyComplete
		slog.InfoContext(ctx, "record was already submitted today", "username", c.username)
	} else {
		c.status = StatusComplete
		slog.InfoContext(ctx, "submitted today's record", "username", c.username)
	}
	return true
}

// Run drives a whole submission run end to end and always dispatches
// an outcome notification, whatever status the run died with.
func (c *Carder) Run(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "carder:Run")
	defer span.End()

	succeeded := false
	err := c.Login(ctx)
	if err != nil {
		slog.WarnContext(ctx, "run aborted at login", "username", c.username, "err", err)
	} else if _, err = c.GetInfo(ctx); err != nil {
		slog.WarnContext(ctx, "run aborted at extraction", "username", c.username, "err", err)
	} else {
		succeeded = c.Submit(ctx)
	}

	c.Notify(ctx, succeeded)
	return succeeded
}

// Notify composes the outcome message and fans it out. Channel
// failures never propagate.
func (c *Carder) Notify(ctx context.Context, succeeded bool) {
	name := c.record.Name()
	if name == "" {
		name = c.username
	}
	timestamp := timezone.Now().Format("2006-01-02 15:04:05")

	var msg notify.Message
	if succeeded {
		msg = notify.Message{
			Title: fmt.Sprintf("[%s 同学] 打卡成功！", name),
			Content: fmt.Sprintf(
				"🦄 已为您打卡成功！</br>最终打卡状态: %s</br>打卡时间 %s",
				c.status, timestamp,
			),
		}
	} else {
		msg = notify.Message{
			Title: fmt.Sprintf("[%s 同学] 打卡失败！", name),
			Content: fmt.Sprintf(
				"❌ 打卡失败！请手动打卡~</br>最终打卡状态: %s</br>打卡时间 %s",
				c.status, timestamp,
			),
		}
	}

	notify.Dispatch(ctx, c.senders, msg)
}
