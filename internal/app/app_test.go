package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouwupdate/intake-api/config"
	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/intake"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/metrics"
	"github.com/bouwupdate/intake-api/pkg/transport"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Storage.Driver = DriverMemory
	cfg.Storage.S3.Enabled = false
	cfg.Redis.Enabled = false
	cfg.SMTP.Enabled = false
	cfg.Gemini.APIKey = ""
	cfg.WhatsApp.AccountSID = ""
	return cfg
}

func TestOpenMemory(t *testing.T) {
	in, err := Open(context.Background(), memoryConfig(t), logger.Nop())
	require.NoError(t, err)
	defer in.Close()

	assert.NotNil(t, in.Store)
	assert.Nil(t, in.DB)
	assert.NotNil(t, in.Archive)
	assert.IsType(t, &transport.LogTransport{}, in.Transport)
	assert.Nil(t, in.Classifier)
	assert.Empty(t, in.Pingers())
}

func TestServicesProcessInline(t *testing.T) {
	cfg := memoryConfig(t)
	in, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer in.Close()

	svc := NewServices(cfg, in, metrics.New(prometheus.NewRegistry(), "test"), logger.Nop(), false)
	require.Nil(t, svc.Pool)

	msg, dup, err := svc.Dispatcher.Receive(context.Background(), intake.Inbound{
		ProviderID: "SM1",
		From:       "whatsapp:+31600000000",
		Body:       "status",
	})
	require.NoError(t, err)
	assert.False(t, dup)

	stored, err := in.Store.Messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusFailed, stored.Status)
}
