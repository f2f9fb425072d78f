// Package storage archives downloaded media in object storage.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// ObjectStore keeps media bytes and returns a location that can be stored
// on documents and voice notes.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// MediaKey builds the object key for a message attachment.
func MediaKey(projectID, messageID, contentType string, at time.Time) string {
	return path.Join("projects", projectID, at.UTC().Format("2006/01/02"), messageID+extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "video/mp4":
		return ".mp4"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/aac":
		return ".m4a"
	case "audio/amr":
		return ".amr"
	default:
		return ".bin"
	}
}

// Memory is an in-process ObjectStore used for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	prefix  string
}

func NewMemory(prefix string) *Memory {
	if prefix == "" {
		prefix = "mem://"
	}
	return &Memory{objects: make(map[string][]byte), prefix: prefix}
}

func (m *Memory) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[key] = buf
	return m.prefix + key, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}
