package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/streetmed/rounds/pkg/core/model"
)

type sentNotification struct {
	to   string
	kind model.NotificationKind
}

type mockSink struct {
	mu    sync.Mutex
	sent  []sentNotification
	err   error
	block chan struct{}
}

func (m *mockSink) Send(ctx context.Context, to string, kind model.NotificationKind, data model.NotificationData) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentNotification{to: to, kind: kind})
	return nil
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockSender struct {
	to, subject, body string
	err               error
}

func (m *mockSender) SendEmail(to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

var testData = model.NotificationData{
	RoundTitle: "Tuesday evening round",
	StartTime:  time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC),
	Location:   "East Liberty",
	Status:     model.SignupConfirmed,
	Role:       model.RoleVolunteer,
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	sink := &mockSink{}
	d := NewDispatcher(sink, zap.NewNop(), 2, 10)

	for i := 0; i < 5; i++ {
		d.Notify("a@example.com", model.NotifySignupConfirmation, testData)
	}

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 5, sink.count())
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &mockSink{block: make(chan struct{})}
	d := NewDispatcher(sink, zap.New(core), 1, 1)

	// one in the worker, one in the queue, the rest dropped
	d.Notify("a@example.com", model.NotifyLotterySelected, testData)
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Notify("b@example.com", model.NotifyLotterySelected, testData)
	d.Notify("c@example.com", model.NotifyLotterySelected, testData)

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 2, sink.count())
	assert.Equal(t, 1, logs.FilterMessage("Notification queue full, dropping notification").Len())
}

func TestDispatcher_SinkErrorIsLoggedOnly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &mockSink{err: errors.New("smtp down")}
	d := NewDispatcher(sink, zap.New(core), 1, 5)

	d.Notify("a@example.com", model.NotifyRoundCanceled, testData)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 1, logs.FilterMessage("Failed to deliver notification").Len())
}

func TestDispatcher_SkipsEmptyAddressAndAfterClose(t *testing.T) {
	sink := &mockSink{}
	d := NewDispatcher(sink, zap.NewNop(), 1, 5)

	d.Notify("", model.NotifyRoundReminder, testData)
	require.NoError(t, d.Close(context.Background()))
	d.Notify("a@example.com", model.NotifyRoundReminder, testData)

	assert.Equal(t, 0, sink.count())
	require.NoError(t, d.Close(context.Background()))
}

func TestEmailSink_RendersAndSends(t *testing.T) {
	sender := &mockSender{}
	sink := NewEmailSink(sender, zap.NewNop())

	err := sink.Send(context.Background(), "a@example.com", model.NotifySignupConfirmation, testData)
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", sender.to)
	assert.Equal(t, "Signup confirmed: Tuesday evening round", sender.subject)
	assert.Contains(t, sender.body, "Tuesday 10 March 2026 at 18:00")
	assert.Contains(t, sender.body, "East Liberty")
}

func TestEmailSink_WrapsSendError(t *testing.T) {
	sink := NewEmailSink(&mockSender{err: errors.New("quota")}, zap.NewNop())

	err := sink.Send(context.Background(), "a@example.com", model.NotifyRoundReminder, testData)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send round_reminder email")
}

func TestRender(t *testing.T) {
	waitlisted := testData
	waitlisted.Status = model.SignupWaitlisted
	subject, body, err := Render(model.NotifySignupConfirmation, waitlisted)
	require.NoError(t, err)
	assert.Equal(t, "You're on the waitlist for Tuesday evening round", subject)
	assert.Contains(t, body, "added to the waitlist")

	lead := testData
	lead.Role = model.RoleTeamLead
	_, body, err = Render(model.NotifyRoundReminder, lead)
	require.NoError(t, err)
	assert.Contains(t, body, "signed up as team lead")

	_, _, err = Render("carrier_pigeon", testData)
	assert.Error(t, err)
}
