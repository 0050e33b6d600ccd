package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent   []Message
	fail   bool
	closed bool
}

func (f *fakeSender) Send(ctx context.Context, msg Message) error {
	f.sent = append(f.sent, msg)
	if f.fail {
		return fmt.Errorf("boom")
	}
	return nil
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func TestDispatchIsolatesFailures(t *testing.T) {
	first := &fakeSender{}
	second := &fakeSender{fail: true}
	third := &fakeSender{}

	msg := Message{Title: "title", Content: "content"}
	Dispatch(context.Background(), []Sender{first, second, third}, msg)

	// the failing sender never stops its siblings
	require.Equal(t, []Message{msg}, first.sent)
	require.Equal(t, []Message{msg}, second.sent)
	require.Equal(t, []Message{msg}, third.sent)
}

func TestCloseAll(t *testing.T) {
	first := &fakeSender{}
	second := &fakeSender{}
	CloseAll([]Sender{first, second})
	require.True(t, first.closed)
	require.True(t, second.closed)
}

func TestNewSender(t *testing.T) {
	_, err := NewSender(Config{Type: "wechat", InitArgs: InitArgs{Token: "tok"}})
	require.NoError(t, err)

	_, err = NewSender(Config{Type: "wechat"})
	require.Error(t, err)

	_, err = NewSender(Config{Type: "email", InitArgs: InitArgs{
		Server:       "smtp.example.com",
		EmailAddress: "a@example.com",
	}})
	require.NoError(t, err)

	_, err = NewSender(Config{Type: "email"})
	require.Error(t, err)

	_, err = NewSender(Config{Type: "carrier-pigeon"})
	require.Error(t, err)
}

func TestPushPlusSend(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := json.NewDecoder(r.Body).Decode(&got)
		require.NoError(t, err)
		fmt.Fprint(w, `{"code": 200, "msg": "ok"}`)
	}))
	defer server.Close()

	sender, err := NewPushPlusSender(InitArgs{Token: "tok", Endpoint: server.URL})
	require.NoError(t, err)
	defer sender.Close()

	longTitle := strings.Repeat("打", 150)
	err = sender.Send(context.Background(), Message{Title: longTitle, Content: "body"})
	require.NoError(t, err)

	require.Equal(t, "tok", got["token"])
	require.Equal(t, "html", got["template"])
	require.Equal(t, "body", got["content"])
	require.Equal(t, strings.Repeat("打", 100), got["title"])
}

func TestPushPlusRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 401, "msg": "bad token"}`)
	}))
	defer server.Close()

	sender, err := NewPushPlusSender(InitArgs{Token: "bad", Endpoint: server.URL})
	require.NoError(t, err)
	defer sender.Close()

	err = sender.Send(context.Background(), Message{Title: "t", Content: "c"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}
