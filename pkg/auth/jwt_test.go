package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorRoundTrip(t *testing.T) {
	v, err := NewValidator("s3cret", "bouwupdate")
	require.NoError(t, err)

	token, err := v.Sign(Claims{UserID: "u-1", CompanyID: "c-1"}, time.Hour)
	require.NoError(t, err)

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "c-1", claims.CompanyID)
}

func TestValidatorRejects(t *testing.T) {
	v, err := NewValidator("s3cret", "bouwupdate")
	require.NoError(t, err)
	other, err := NewValidator("different", "bouwupdate")
	require.NoError(t, err)

	foreign, err := other.Sign(Claims{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Sign(Claims{UserID: "u-1"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewValidator("", "")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
