package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

const graphSendMailURL = "https://graph.microsoft.com/v1.0/me/sendMail"

// Service dispatches outbound email on behalf of the named OAuth profiles.
// The primary transport is a Graph /me/sendMail call using the profile's
// cached token, matching ms_email.py exactly. When devSMTPAddr is set
// (local development only, no Graph credentials configured) Send instead
// composes the message with go-mail and relays it over local SMTP — this
// is the one path in the module that exercises go-mail as an actual
// transport rather than a message builder.
type Service struct {
	tokens      *TokenCache
	httpClient  *http.Client
	devSMTPAddr string
	devSMTPFrom string
	log         zerolog.Logger
}

// NewService constructs a notify Service. devSMTPAddr may be empty to
// disable the local-development fallback entirely.
func NewService(tokens *TokenCache, devSMTPAddr, devSMTPFrom string, log zerolog.Logger) *Service {
	return &Service{
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		devSMTPAddr: devSMTPAddr,
		devSMTPFrom: devSMTPFrom,
		log:         log.With().Str("component", "notify").Logger(),
	}
}

// Recipients groups the three Graph recipient fields.
type Recipients struct {
	To  []string
	CC  []string
	BCC []string
}

// Send dispatches an HTML email through profile's token. Callers MUST
// treat a returned error as non-fatal to whatever triggered the send —
// the leave/cover/duty workflows proceed regardless of notification
// delivery.
func (s *Service) Send(ctx context.Context, to Recipients, subject, html, profile string) error {
	if s.devSMTPAddr != "" {
		return s.sendDevSMTP(to, subject, html)
	}
	return s.sendGraph(ctx, to, subject, html, profile)
}

func (s *Service) sendGraph(ctx context.Context, to Recipients, subject, html, profile string) error {
	token, err := s.tokens.GetTokenSilent(ctx, profile)
	if err != nil {
		return fmt.Errorf("notify: acquire token for profile %s: %w", profile, err)
	}

	payload := map[string]any{
		"message": map[string]any{
			"subject": subject,
			"body": map[string]any{
				"contentType": "HTML",
				"content":     html,
			},
			"toRecipients":  recipientList(to.To),
			"ccRecipients":  recipientList(to.CC),
			"bccRecipients": recipientList(to.BCC),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphSendMailURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notify: graph sendMail returned status %d", resp.StatusCode)
	}
	return nil
}

func recipientList(addresses []string) []map[string]any {
	out := make([]map[string]any, 0, len(addresses))
	for _, addr := range addresses {
		out = append(out, map[string]any{
			"emailAddress": map[string]string{"address": addr},
		})
	}
	return out
}

func (s *Service) sendDevSMTP(to Recipients, subject, html string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.devSMTPFrom); err != nil {
		return fmt.Errorf("notify: dev smtp from: %w", err)
	}
	if len(to.To) > 0 {
		if err := msg.To(to.To...); err != nil {
			return fmt.Errorf("notify: dev smtp to: %w", err)
		}
	}
	if len(to.CC) > 0 {
		if err := msg.Cc(to.CC...); err != nil {
			return fmt.Errorf("notify: dev smtp cc: %w", err)
		}
	}
	if len(to.BCC) > 0 {
		if err := msg.Bcc(to.BCC...); err != nil {
			return fmt.Errorf("notify: dev smtp bcc: %w", err)
		}
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)

	host, portStr, err := net.SplitHostPort(s.devSMTPAddr)
	if err != nil {
		return fmt.Errorf("notify: dev smtp address %q: %w", s.devSMTPAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("notify: dev smtp port %q: %w", portStr, err)
	}

	client, err := mail.NewClient(host, mail.WithPort(port), mail.WithTLSPolicy(mail.NoTLS))
	if err != nil {
		return fmt.Errorf("notify: dev smtp client: %w", err)
	}
	defer client.Close()

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("notify: dev smtp send: %w", err)
	}
	return nil
}
