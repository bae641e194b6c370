// internal/mail/restmail.go

// Package mail retrieves verification PINs from a disposable-inbox
// service with a RestMail-compatible API: GET /mail/<user> returns the
// mailbox as a JSON array, DELETE /mail/<user> empties it. No auth,
// no setup; any address at the service's domain exists implicitly.
package mail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ocqa/journey-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Domain is the mail domain addresses are minted under.
const Domain = "restmail.net"

var nonHandle = regexp.MustCompile(`[^a-z0-9.+-]`)

// Address builds a unique inbox handle from name parts and a tag,
// normalized to what the service accepts.
func Address(first, last, tag string) string {
	handle := strings.ToLower(fmt.Sprintf("%s.%s.%s", first, last, tag))
	handle = nonHandle.ReplaceAllString(handle, "")
	return handle + "@" + Domain
}

// pinPattern matches the verification code in a message. The code is
// the only digit run of that length in the PIN mails.
var pinPattern = regexp.MustCompile(`\b(\d{6})\b`)

// Message is one mailbox entry. Only the fields the journeys read are
// mapped; the service returns many more.
type Message struct {
	Subject    string    `json:"subject"`
	Text       string    `json:"text"`
	HTML       string    `json:"html"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// PIN extracts the verification code, preferring the subject line and
// falling back to the body. Empty when the message carries none.
func (m Message) PIN() string {
	if match := pinPattern.FindString(m.Subject); match != "" {
		return match
	}
	if match := pinPattern.FindString(m.Text); match != "" {
		return match
	}
	return pinPattern.FindString(m.HTML)
}

// Inbox is a client bound to a single address. Safe for use by one
// journey at a time; journeys never share inboxes.
type Inbox struct {
	endpoint string
	address  string
	handle   string

	client      *http.Client
	logger      *zap.Logger
	limiter     *rate.Limiter
	waitTimeout time.Duration
}

// NewInbox binds a client to the address. The poll interval becomes a
// rate limit on mailbox fetches; the wait timeout bounds WaitForMail.
func NewInbox(cfg config.MailConfig, address string, logger *zap.Logger) *Inbox {
	handle := address
	if at := strings.IndexByte(address, '@'); at >= 0 {
		handle = address[:at]
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 60 * time.Second
	}
	return &Inbox{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		address:     address,
		handle:      handle,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger.Named("mail").With(zap.String("address", address)),
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		waitTimeout: waitTimeout,
	}
}

// Address returns the full inbox address.
func (in *Inbox) Address() string { return in.address }

func (in *Inbox) url() string {
	return in.endpoint + "/" + in.handle
}

// Messages fetches the mailbox once. The service returns messages in
// arrival order, oldest first.
func (in *Inbox) Messages(ctx context.Context) ([]Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.url(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mailbox: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mailbox fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox response: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode mailbox: %w", err)
	}
	return messages, nil
}

// WaitForMail polls until the mailbox is non-empty or the wait timeout
// expires. Fetches are rate-limited to the configured poll interval.
func (in *Inbox) WaitForMail(ctx context.Context) ([]Message, error) {
	waitCtx, cancel := context.WithTimeout(ctx, in.waitTimeout)
	defer cancel()

	for {
		if err := in.limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("no mail arrived within %s", in.waitTimeout)
		}
		messages, err := in.Messages(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, fmt.Errorf("no mail arrived within %s", in.waitTimeout)
			}
			// Transient service hiccups just mean another poll.
			in.logger.Debug("Mailbox poll failed, retrying", zap.Error(err))
			continue
		}
		if len(messages) > 0 {
			in.logger.Debug("Mail arrived", zap.Int("count", len(messages)))
			return messages, nil
		}
	}
}

// LatestPIN waits for mail and extracts the code from the newest
// message. Re-requesting a PIN supersedes older mails, so only the
// last entry is authoritative.
func (in *Inbox) LatestPIN(ctx context.Context) (string, error) {
	messages, err := in.WaitForMail(ctx)
	if err != nil {
		return "", err
	}
	newest := messages[len(messages)-1]
	pin := newest.PIN()
	if pin == "" {
		return "", fmt.Errorf("newest message %q carries no PIN", newest.Subject)
	}
	return pin, nil
}

// Drain deletes every message in the inbox. Called when a journey
// releases its address; addresses are never reused.
func (in *Inbox) Drain(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, in.url(), nil)
	if err != nil {
		return err
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to drain mailbox: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mailbox drain returned status %d", resp.StatusCode)
	}
	in.logger.Debug("Drained mailbox")
	return nil
}
