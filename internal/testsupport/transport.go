// Package testsupport holds fakes and fixtures shared by service and handler
// tests.
package testsupport

import (
	"context"
	"errors"
	"sync"

	"github.com/bouwupdate/intake-api/pkg/transport"
)

// SentMessage is one recorded outbound message.
type SentMessage struct {
	Phone string
	Text  string
}

// Transport records outbound messages and serves media from memory.
type Transport struct {
	mu    sync.Mutex
	sent  []SentMessage
	media map[string][]byte

	// SendErr, when set, decides the error returned for a send.
	SendErr func(phone, text string) error
}

func NewTransport() *Transport {
	return &Transport{media: make(map[string][]byte)}
}

// AddMedia makes url downloadable.
func (t *Transport) AddMedia(url string, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.media[url] = data
}

func (t *Transport) Send(_ context.Context, phone, text string) error {
	if t.SendErr != nil {
		if err := t.SendErr(phone, text); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, SentMessage{Phone: phone, Text: text})
	return nil
}

func (t *Transport) DownloadMedia(_ context.Context, url string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.media[url]
	if !ok {
		return nil, errors.New("media not found")
	}
	return data, nil
}

// Sent returns every recorded message, optionally filtered by phone.
func (t *Transport) Sent(phone string) []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []SentMessage
	for _, m := range t.sent {
		if phone == "" || m.Phone == phone {
			out = append(out, m)
		}
	}
	return out
}

var _ transport.Transport = (*Transport)(nil)

// Mail is one recorded email.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer records sent mail.
type Mailer struct {
	mu   sync.Mutex
	sent []Mail
}

func (m *Mailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Mail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *Mailer) Sent() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}
