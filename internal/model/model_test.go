package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhaseOrder(t *testing.T) {
	next, ok := PhaseRuwbouw.Next()
	assert.True(t, ok)
	assert.Equal(t, PhaseDakconstructie, next)

	_, ok = PhaseOplevering.Next()
	assert.False(t, ok, "terminal phase has no successor")

	_, ok = Phase("KELDER").Next()
	assert.False(t, ok)

	assert.True(t, PhaseGevel.After(PhaseFundering))
	assert.False(t, PhaseFundering.After(PhaseFundering))
	assert.Equal(t, 0, PhaseGrondwerk.Index())
	assert.Equal(t, -1, Phase("").Index())
	assert.Equal(t, "Onbekend", Phase("X").Label())
}

func TestParsePhase(t *testing.T) {
	tests := []struct {
		in   string
		want Phase
		ok   bool
	}{
		{"ruwbouw", PhaseRuwbouw, true},
		{"  GEVEL ", PhaseGevel, true},
		{"Gevel & kozijnen", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePhase(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProjectEffectivePhase(t *testing.T) {
	assert.Equal(t, PhaseGrondwerk, (&Project{}).EffectivePhase())
	assert.Equal(t, PhaseAfbouw, (&Project{CurrentPhase: PhaseAfbouw}).EffectivePhase())
}

func TestMediaKindFromMIME(t *testing.T) {
	assert.Equal(t, MediaKindNone, MediaKindFromMIME(""))
	assert.Equal(t, MediaKindImage, MediaKindFromMIME("image/jpeg"))
	assert.Equal(t, MediaKindImage, MediaKindFromMIME(" IMAGE/PNG"))
	assert.Equal(t, MediaKindVideo, MediaKindFromMIME("video/mp4"))
	assert.Equal(t, MediaKindAudio, MediaKindFromMIME("audio/ogg; codecs=opus"))
	assert.Equal(t, MediaKindDocument, MediaKindFromMIME("application/pdf"))
}

func TestClassificationNormalize(t *testing.T) {
	progress := 140
	c := ClassificationResult{Confidence: 1.7, Quality: QualityAssessment{Score: 0}, ProgressPercentage: &progress}
	c.Normalize()

	assert.Equal(t, 1.0, c.Confidence)
	assert.Equal(t, 1, c.Quality.Score)
	assert.Equal(t, 100, *c.ProgressPercentage)
	assert.Equal(t, 140, progress, "caller's value is not mutated")
	assert.Equal(t, WorkStatusUnknown, c.WorkStatus)
	assert.NotNil(t, c.DetectedElements)
	assert.NotNil(t, c.Materials)
	assert.NotNil(t, c.Quality.Issues)

	c = ClassificationResult{Confidence: -0.2, Quality: QualityAssessment{Score: 12}}
	c.Normalize()
	assert.Equal(t, 0.0, c.Confidence)
	assert.Equal(t, 10, c.Quality.Score)
	assert.Nil(t, c.ProgressPercentage)
}

func TestParseWorkStatus(t *testing.T) {
	assert.Equal(t, WorkStatusCompleted, ParseWorkStatus("Gereed"))
	assert.Equal(t, WorkStatusInProgress, ParseWorkStatus("in progress"))
	assert.Equal(t, WorkStatusUnknown, ParseWorkStatus("misschien"))
}

func TestChannelHasPendingCode(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hash := "x"
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Minute)

	assert.False(t, (&Channel{}).HasPendingCode(now))
	assert.True(t, (&Channel{CodeHash: &hash, CodeExpiresAt: &later}).HasPendingCode(now))
	assert.False(t, (&Channel{CodeHash: &hash, CodeExpiresAt: &earlier}).HasPendingCode(now))
}

func TestMessageStatusTerminal(t *testing.T) {
	assert.True(t, MessageStatusProcessed.Terminal())
	assert.True(t, MessageStatusFailed.Terminal())
	assert.False(t, MessageStatusProcessing.Terminal())
}

func TestTeamMemberReachable(t *testing.T) {
	assert.False(t, (&TeamMember{}).Reachable())
	assert.True(t, (&TeamMember{Email: "a@b.nl"}).Reachable())
}
