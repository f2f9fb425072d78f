package testsupport

import (
	"context"
	"sync"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/classifier"
	"github.com/bouwupdate/intake-api/internal/service/transcriber"
)

// Classifier returns a fixed result and counts calls.
type Classifier struct {
	mu     sync.Mutex
	Result model.ClassificationResult
	inputs []classifier.Input
}

func (c *Classifier) Classify(_ context.Context, in classifier.Input) model.ClassificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, in)
	res := c.Result
	res.Normalize()
	return res
}

func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inputs)
}

// Transcriber returns Transcript or Err.
type Transcriber struct {
	Transcript *transcriber.Transcript
	Err        error
}

func (t *Transcriber) Transcribe(context.Context, []byte, string) (*transcriber.Transcript, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Transcript, nil
}
