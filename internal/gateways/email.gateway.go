package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
)

var ErrNoEmail = errors.New("log has no email address")

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// ImplicitTLS dials TLS directly, as on port 465.
	ImplicitTLS bool
	Timeout     time.Duration
}

// EmailSender delivers HTML campaign emails over SMTP, one connection per
// message.
type EmailSender struct {
	config SMTPConfig
}

func NewEmailSender(config SMTPConfig) (*EmailSender, error) {
	if config.Host == "" || config.Port == 0 {
		return nil, errors.New("smtp host and port are required")
	}
	if config.From == "" {
		config.From = config.Username
	}
	if config.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &EmailSender{config: config}, nil
}

// Send implements services.Sender for email dispatch logs.
func (e *EmailSender) Send(ctx context.Context, l *model.DispatchLog) error {
	if l.Channel != model.ChannelEmail {
		return fmt.Errorf("%w: %s", ErrWrongChannel, l.Channel)
	}
	to := l.Email
	if to == "" {
		to = l.Recipient
	}
	if to == "" {
		return ErrNoEmail
	}

	start := time.Now()
	if err := e.deliver(ctx, to, buildMessage(e.config.From, to, l.Subject, l.PersonalizedMessage, l.ID)); err != nil {
		return err
	}
	logger.Debug("[email-gateway] sent", "log_id", l.ID, "took", time.Since(start))
	return nil
}

func (e *EmailSender) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	var conn net.Conn
	var err error
	if e.config.ImplicitTLS {
		d := &tls.Dialer{Config: &tls.Config{ServerName: e.config.Host}}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if e.config.Username != "" {
		auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(e.config.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to, subject, htmlBody string, logID int64) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "X-Dispatch-Log: %d\r\n", logID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return b.Bytes()
}
