package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// ErrSendFailed wraps every delivery failure of a Transport.
var ErrSendFailed = errors.New("mail send failed")

// Message is a rendered email.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// SMTPConfig addresses an SMTP relay. Auth is PLAIN when Username is set.
// Timeout bounds the whole exchange, not just the dial.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPTransport sends through an SMTP relay with opportunistic STARTTLS.
type SMTPTransport struct {
	cfg  SMTPConfig
	opts []mail.Option
}

// NewSMTPTransport fills the default port (587) and timeout (10s).
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return &SMTPTransport{cfg: cfg, opts: opts}
}

// Deliver sends msg on a fresh connection. The whole exchange shares one
// Timeout deadline, and cancelling ctx aborts it.
func (s *SMTPTransport) Deliver(ctx context.Context, msg Message) error {
	m, err := newMsg(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	dial := &boundedDialer{parent: ctx, timeout: s.cfg.Timeout}
	defer dial.release()

	opts := append(append([]mail.Option(nil), s.opts...), mail.WithDialContextFunc(dial.DialContext))
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ErrSendFailed, ctxErr)
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// boundedDialer sets an IO deadline on every connection it dials and moves
// the deadline to now when the parent context ends.
type boundedDialer struct {
	parent  context.Context
	timeout time.Duration

	mu    sync.Mutex
	stops []func() bool
}

func (d *boundedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	stop := context.AfterFunc(d.parent, func() {
		_ = conn.SetDeadline(time.Now())
	})
	d.mu.Lock()
	d.stops = append(d.stops, stop)
	d.mu.Unlock()
	return conn, nil
}

func (d *boundedDialer) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, stop := range d.stops {
		stop()
	}
	d.stops = nil
}

// newMsg builds a multipart/alternative message with the text part first.
func newMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, err
	}
	if err := m.To(msg.To...); err != nil {
		return nil, err
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

// LogTransport records messages and logs them instead of sending.
type LogTransport struct {
	log *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogTransport returns a transport that only logs. A nil log discards.
func NewLogTransport(log *zap.Logger) *LogTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogTransport{log: log}
}

// Deliver records msg and logs its recipients, subject and text body.
func (l *LogTransport) Deliver(_ context.Context, msg Message) error {
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()

	l.log.Info("mail",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}

// Sent returns a copy of every delivered message.
func (l *LogTransport) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.sent...)
}

// Last returns the most recent message.
func (l *LogTransport) Last() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sent) == 0 {
		return Message{}, false
	}
	return l.sent[len(l.sent)-1], true
}
