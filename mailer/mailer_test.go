package mailer

import (
	"bytes"
	"context"
	"net"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/portunus-id/portunus/account"
)

func newMailerTest(t *testing.T) (*Mailer, *LogTransport) {
	t.Helper()
	tr := NewLogTransport(zaptest.NewLogger(t))
	m, err := New(Config{From: "Portunus <no-reply@example.com>", SupportEmail: "help@example.com"}, tr)
	require.NoError(t, err)
	return m, tr
}

func TestEveryTemplateRenders(t *testing.T) {
	m, tr := newMailerTest(t)
	ctx := context.Background()

	require.NoError(t, m.SendPasswordReset(ctx, "a@example.com", "https://app.example.com/reset/x", 5*time.Minute))
	require.NoError(t, m.SendAccountCreated(ctx, "a@example.com", "https://app.example.com/set-password/x"))
	require.NoError(t, m.SendLockout(ctx, "a@example.com", "https://app.example.com/reset"))
	require.NoError(t, m.SendChangeEmail(ctx, "new@example.com", "https://app.example.com/change/x", 30*time.Minute))
	require.NoError(t, m.SendMfaCode(ctx, "a@example.com", "123456", 5*time.Minute))
	require.NoError(t, m.SendAccountNotice(ctx, "a@example.com", "Deleted", "Your account was deleted."))

	sent := tr.Sent()
	require.Len(t, sent, 6)
	require.Equal(t, "Password Reset Request", sent[0].Subject)
	require.Contains(t, sent[0].Text, "5 minutes")
	require.Contains(t, sent[0].Text, "help@example.com")
	require.Equal(t, []string{"new@example.com"}, sent[3].To)
	require.Contains(t, sent[3].Text, "30 minutes")
	require.Equal(t, "Your Security Code", sent[4].Subject)
	require.Contains(t, sent[4].HTML, "123456")
	require.Equal(t, "Account Notice: Deleted", sent[5].Subject)
}

func TestHTMLIsEscaped(t *testing.T) {
	m, tr := newMailerTest(t)
	require.NoError(t, m.SendAccountNotice(context.Background(), "a@example.com", "x", "<script>alert(1)</script>"))

	msg, ok := tr.Last()
	require.True(t, ok)
	require.NotContains(t, msg.HTML, "<script>")
	require.Contains(t, msg.Text, "<script>")
}

func TestMfaSender(t *testing.T) {
	m, tr := newMailerTest(t)
	s := m.MfaSender(5 * time.Minute)
	require.NoError(t, s.Send(context.Background(), account.User{Email: "a@example.com"}, "654321"))

	msg, ok := tr.Last()
	require.True(t, ok)
	require.Equal(t, []string{"a@example.com"}, msg.To)
	require.Contains(t, msg.Text, "654321")
}

func TestUnknownTemplate(t *testing.T) {
	m, _ := newMailerTest(t)
	err := m.Send(context.Background(), []string{"a@example.com"}, "x", "nope", Data{})
	require.Error(t, err)
}

func TestNewMsgIsMultipartAlternative(t *testing.T) {
	m, err := newMsg(Message{
		From:    "a@example.com",
		To:      []string{"b@example.com", "c@example.com"},
		Subject: "Hi",
		Text:    "plain",
		HTML:    "<p>html</p>",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	s := buf.String()
	require.Contains(t, s, "b@example.com")
	require.Contains(t, s, "c@example.com")
	require.Contains(t, s, "multipart/alternative")
	require.True(t, strings.Index(s, "text/plain") < strings.Index(s, "text/html"))

	_, err = newMsg(Message{From: "not an address", To: []string{"b@example.com"}})
	require.Error(t, err)
}

// silentRelay accepts connections and never writes a greeting.
func silentRelay(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

var relayMsg = Message{From: "a@example.com", To: []string{"b@example.com"}, Subject: "x", Text: "x"}

func TestSMTPDeliverTimesOutWithoutLeaking(t *testing.T) {
	host, port := silentRelay(t)
	tr := NewSMTPTransport(SMTPConfig{Host: host, Port: port, Timeout: 50 * time.Millisecond})

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		start := time.Now()
		err := tr.Deliver(context.Background(), relayMsg)
		require.ErrorIs(t, err, ErrSendFailed)
		require.Less(t, time.Since(start), 2*time.Second)
	}
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSMTPDeliverHonorsCancellation(t *testing.T) {
	host, port := silentRelay(t)
	tr := NewSMTPTransport(SMTPConfig{Host: host, Port: port, Timeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := tr.Deliver(ctx, relayMsg)
	require.ErrorIs(t, err, ErrSendFailed)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestHumanize(t *testing.T) {
	require.Equal(t, "1 hour", humanize(time.Hour))
	require.Equal(t, "30 minutes", humanize(30*time.Minute))
	require.Equal(t, "45 seconds", humanize(45*time.Second))
	require.Equal(t, "", humanize(0))
}
