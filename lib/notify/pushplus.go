package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carder-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

const defaultPushPlusUrl = "http://pushplus.hxtrip.com/send"

// PushPlusSender delivers over the pushplus push service, one HTTP
// POST per message.
type PushPlusSender struct {
	http     *resty.Client
	endpoint string
	token    string
	template string
}

func NewPushPlusSender(args InitArgs) (*PushPlusSender, error) {
	if args.Token == "" {
		return nil, fmt.Errorf("pushplus token is not set")
	}
	template := args.Template
	if template == "" {
		template = "html"
	}
	endpoint := args.Endpoint
	if endpoint == "" {
		endpoint = defaultPushPlusUrl
	}

	client := resty.New()
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/75.0.3770.100 Safari/537.36")
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "notify/pushplus")

	return &PushPlusSender{
		http:     client,
		endpoint: endpoint,
		token:    args.Token,
		template: template,
	}, nil
}

func (s *PushPlusSender) Send(ctx context.Context, msg Message) error {
	title := []rune(msg.Title)
	if len(title) > 100 {
		title = title[:100]
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(map[string]string{
			"token":    s.token,
			"title":    string(title),
			"content":  msg.Content,
			"template": s.template,
		}).
		Post(s.endpoint)
	if err != nil {
		return err
	}

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return fmt.Errorf("unexpected pushplus response: %s", err)
	}
	if body.Code != 200 {
		return fmt.Errorf("pushplus rejected the message: code %d: %s", body.Code, body.Msg)
	}
	return nil
}

func (s *PushPlusSender) Close() error {
	s.http.GetClient().CloseIdleConnections()
	return nil
}
