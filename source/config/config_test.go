package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, c.WindowSize)
	assert.Equal(t, 50*time.Millisecond, c.Timeout)
	assert.Equal(t, 200*time.Millisecond, c.RetransmissionStopThreshold)
	assert.Equal(t, 4, c.MaxResends())
}

func TestValidateRejectsOversizedWindow(t *testing.T) {
	c := Config{WindowSize: 1 << 16, Timeout: time.Millisecond, RetransmissionStopThreshold: time.Millisecond}
	assert.Error(t, c.Validate())
}

func TestValidateRejectsZeroTimeout(t *testing.T) {
	c := Config{WindowSize: 16, Timeout: 0, RetransmissionStopThreshold: time.Millisecond}
	assert.Error(t, c.Validate())
}
