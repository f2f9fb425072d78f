package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaKey(t *testing.T) {
	at := time.Date(2026, 5, 4, 23, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "projects/p1/2026/05/04/m1.jpg", MediaKey("p1", "m1", "image/jpeg", at))
	assert.Equal(t, "projects/p1/2026/05/04/m2.ogg", MediaKey("p1", "m2", "audio/ogg; codecs=opus", at))
	assert.Equal(t, "projects/p1/2026/05/04/m3.bin", MediaKey("p1", "m3", "application/x-unknown", at))
}

func TestMemoryRoundTrip(t *testing.T) {
	store := NewMemory("")
	url, err := store.Put(context.Background(), "a/b.jpg", []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "mem://a/b.jpg", url)

	data, err := store.Get(context.Background(), "a/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)

	_, err = store.Get(context.Background(), "missing")
	assert.Error(t, err)
}
