// Package transport talks to the WhatsApp messaging provider: outbound
// text messages and authenticated media downloads.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bouwupdate/intake-api/pkg/circuitbreaker"
)

const (
	defaultBaseURL  = "https://api.twilio.com"
	defaultTimeout  = 15 * time.Second
	maxMediaBytes   = 16 << 20
	whatsappPrefix  = "whatsapp:"
	userAgentHeader = "bouwupdate-intake/1.0"
)

var (
	// ErrMediaTooLarge is returned when an attachment exceeds the download limit.
	ErrMediaTooLarge    = errors.New("media exceeds download limit")
	ErrMediaUnavailable = errors.New("media download not configured")
)

// Transport is the send/receive surface of the messaging provider.
type Transport interface {
	Send(ctx context.Context, phone, text string) error
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	Timeout    time.Duration
}

// Client implements Transport on top of the Twilio WhatsApp REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "whatsapp-transport",
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizePhone strips the provider prefix and whitespace from a number.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, whatsappPrefix)
	return strings.ReplaceAll(phone, " ", "")
}

func (c *Client) Send(ctx context.Context, phone, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	form := url.Values{}
	form.Set("To", whatsappPrefix+NormalizePhone(phone))
	form.Set("From", whatsappPrefix+NormalizePhone(c.cfg.From))
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID))

	return c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("build send request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", userAgentHeader)
		req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return fmt.Errorf("send message: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil
	})
}

func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	if mediaURL == "" {
		return nil, errors.New("download media: empty url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}
	req.Header.Set("User-Agent", userAgentHeader)
	if c.cfg.AccountSID != "" {
		req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download media: http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download media: read body: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, ErrMediaTooLarge
	}
	return data, nil
}

var _ Transport = (*Client)(nil)
