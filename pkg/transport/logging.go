package transport

import (
	"context"

	"github.com/bouwupdate/intake-api/pkg/logger"
)

// LogTransport writes outbound messages to the log instead of the provider.
// It backs local runs without provider credentials. Media downloads still go
// through the wrapped client when one is given.
type LogTransport struct {
	media  Transport
	logger *logger.Logger
}

func NewLogTransport(media Transport, log *logger.Logger) *LogTransport {
	return &LogTransport{media: media, logger: log}
}

func (t *LogTransport) Send(ctx context.Context, phone, text string) error {
	t.logger.WithContext(ctx).Info("Outbound message (dry run)", "to", NormalizePhone(phone), "text", text)
	return nil
}

func (t *LogTransport) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	if t.media == nil {
		return nil, ErrMediaUnavailable
	}
	return t.media.DownloadMedia(ctx, mediaURL)
}

var _ Transport = (*LogTransport)(nil)
