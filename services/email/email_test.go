package emailsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"testing"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedeck/deck/core"
)

func testConfig() *core.Config {
	return &core.Config{AppName: "Deck", DefaultFromEmail: "Deck <noreply@deck.test>", SendgridApiKey: "sg-key"}
}

func TestConsoleService_Send(t *testing.T) {
	out := new(bytes.Buffer)
	svc := NewConsoleService(testConfig())
	svc.out = out

	err := svc.Send(context.Background(), &core.EmailMessage{Subject: "hi", BodyStr: "hello"})
	assert.Equal(t, ErrNoRecipients, err)
	assert.Zero(t, out.Len())

	err = svc.Send(context.Background(), &core.EmailMessage{
		To:      []mail.Address{{Name: "Alice", Address: "alice@school.test"}},
		Subject: "hi",
		BodyStr: "hello",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "From: \"Deck\" <noreply@deck.test>\r\n")
	assert.Contains(t, out.String(), "Subject: [Deck] hi\r\n")
	assert.Contains(t, out.String(), "To: \"Alice\" <alice@school.test>\r\n")
	assert.Contains(t, out.String(), "hello\r\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, svc.Send(ctx, &core.EmailMessage{}))
}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(testConfig())
	svc.FailFor["bob@school.test"] = errors.New("mailbox full")

	send := func(addr string) error {
		return svc.Send(context.Background(), &core.EmailMessage{To: []mail.Address{{Address: addr}}, BodyStr: "x"})
	}
	require.NoError(t, send("alice@school.test"))
	assert.EqualError(t, send("bob@school.test"), "mailbox full")
	require.Len(t, svc.SentMessages(), 1)
	assert.Equal(t, "alice@school.test", svc.SentMessages()[0].To[0].Address)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestSendgridService_Send(t *testing.T) {
	var got rest.Request
	status := http.StatusAccepted
	svc := NewSendgridService(testConfig(), core.NewNopLogger())
	svc.api = func(_ context.Context, req rest.Request) (*rest.Response, error) {
		got = req
		return &rest.Response{StatusCode: status}, nil
	}

	msg := func() *core.EmailMessage {
		return &core.EmailMessage{
			To:          []mail.Address{{Name: "Alice", Address: "alice@school.test"}},
			Subject:     "Deck Notifications",
			TextContent: "text",
			HTMLContent: "<p>html</p>",
		}
	}

	require.NoError(t, svc.Send(context.Background(), msg()))
	assert.Equal(t, http.MethodPost, string(got.Method))
	assert.Equal(t, "Bearer sg-key", got.Headers["Authorization"])

	var body struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
		Content []struct {
			Type string `json:"type"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(got.Body, &body))
	assert.Equal(t, "noreply@deck.test", body.From.Email)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[Deck] Deck Notifications", body.Personalizations[0].Subject)
	assert.Equal(t, "alice@school.test", body.Personalizations[0].To[0].Email)
	assert.Len(t, body.Content, 2)

	t.Run("rejected", func(t *testing.T) {
		status = http.StatusBadRequest
		defer func() { status = http.StatusAccepted }()
		assert.Equal(t, ErrRejected, errors.Cause(svc.Send(context.Background(), msg())))
	})

	t.Run("transport error", func(t *testing.T) {
		svc.api = func(context.Context, rest.Request) (*rest.Response, error) {
			return nil, errors.New("connection reset")
		}
		assert.Error(t, svc.Send(context.Background(), msg()))
	})
}
