package webhook

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/intake"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/transport"
)

// emptyTwiML acknowledges a delivery without an inline reply. Replies go out
// through the transport once the message is processed.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Receiver accepts one webhook delivery.
type Receiver interface {
	Receive(ctx context.Context, in intake.Inbound) (*model.InboundMessage, bool, error)
}

type Config struct {
	// AuthToken enables signature checks when VerifySignature is set.
	AuthToken       string
	VerifySignature bool
	// PublicURL is the webhook URL as the provider sees it. Behind a proxy
	// the request URL differs, so signatures must be computed on this one.
	PublicURL string
}

type Handler struct {
	receiver Receiver
	cfg      Config
	logger   *logger.Logger
}

func NewHandler(receiver Receiver, cfg Config, log *logger.Logger) *Handler {
	return &Handler{receiver: receiver, cfg: cfg, logger: log}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhook/whatsapp", h.Receive)
}

// Receive stores the delivery and acknowledges it immediately. Storage
// failures return 500 so the provider retries.
func (h *Handler) Receive(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "invalid form")
		return
	}
	form := c.Request.PostForm

	if h.cfg.VerifySignature {
		if !transport.ValidSignature(h.cfg.AuthToken, h.requestURL(c), form, c.GetHeader(transport.SignatureHeader)) {
			h.logger.WithContext(c.Request.Context()).Warn("Webhook signature rejected", "client_ip", c.ClientIP())
			c.String(http.StatusForbidden, "invalid signature")
			return
		}
	}

	in := intake.Inbound{
		ProviderID: form.Get("MessageSid"),
		From:       form.Get("From"),
		Body:       form.Get("Body"),
	}
	if n, _ := strconv.Atoi(form.Get("NumMedia")); n > 0 {
		in.MediaURL = form.Get("MediaUrl0")
		in.MediaType = form.Get("MediaContentType0")
	}
	if transport.NormalizePhone(in.From) == "" {
		c.String(http.StatusBadRequest, "missing sender")
		return
	}

	msg, duplicate, err := h.receiver.Receive(c.Request.Context(), in)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error(err, "Failed to accept inbound message", "provider_id", in.ProviderID)
		c.String(http.StatusInternalServerError, "temporarily unavailable")
		return
	}
	if msg != nil {
		c.Header("X-Message-ID", msg.ID)
	}
	if duplicate {
		c.Header("X-Duplicate", "true")
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(emptyTwiML))
}

func (h *Handler) requestURL(c *gin.Context) string {
	if h.cfg.PublicURL != "" {
		return h.cfg.PublicURL
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}
