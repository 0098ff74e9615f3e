package notification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/mailseat/internal/notification"
	"github.com/smallbiznis/mailseat/internal/notification/mock_notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingProvider struct {
	to       []string
	template string
	data     map[string]any
	err      error
}

func (p *recordingProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return p.err
}

func (p *recordingProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	p.to, p.template, p.data = to, templateName, data
	return p.err
}

func TestEmailDispatcherBuildsInviteLink(t *testing.T) {
	provider := &recordingProvider{}
	d := notification.NewEmailDispatcher(provider, "https://app.example.com/")

	err := d.Dispatch(context.Background(), notification.Message{
		Kind:             notification.KindInviteIssued,
		To:               "ada@example.com",
		OrganizationName: "Acme",
		Role:             "MEMBER",
		Actor:            "owner@example.com",
		InviteToken:      "tok",
		ExpiresAt:        time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.com"}, provider.to)
	assert.Equal(t, "invite_member", provider.template)
	assert.Equal(t, "https://app.example.com/invites/tok", provider.data["invite_url"])
	assert.Equal(t, "Acme", provider.data["org_name"])
	assert.NotEmpty(t, provider.data["expires_at"])

	err = d.Dispatch(context.Background(), notification.Message{Kind: notification.KindMemberAdded})
	assert.ErrorIs(t, err, notification.ErrNoRecipient)
}

func TestAsyncDispatcherSwallowsFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mock_notification.NewMockDispatcher(ctrl)

	delivered := make(chan struct{})
	next.EXPECT().
		Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msg notification.Message) error {
			defer close(delivered)
			assert.Equal(t, notification.KindMemberRemoved, msg.Kind)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return errors.New("smtp down")
		})

	async := notification.NewAsyncDispatcher(next, zaptest.NewLogger(t), nil, func() time.Duration { return time.Second })

	// The caller's cancellation must not abort delivery.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := async.Dispatch(ctx, notification.Message{Kind: notification.KindMemberRemoved, To: "a@example.com"})
	require.NoError(t, err)

	require.NoError(t, async.Wait(context.Background()))
	select {
	case <-delivered:
	default:
		t.Fatal("message was not delivered")
	}
}

func TestNoopDispatcher(t *testing.T) {
	assert.NoError(t, notification.NoopDispatcher{}.Dispatch(context.Background(), notification.Message{}))
}
