package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-calendar-engine/internal/config"
	"github.com/hackgods/clinic-calendar-engine/internal/scheduling"
)

func TestRefreshTimeout(t *testing.T) {
	assert.Equal(t, 45*time.Second, refreshTimeout(time.Minute))
	assert.Equal(t, time.Second, refreshTimeout(100*time.Millisecond))
	assert.Equal(t, 2*time.Minute, refreshTimeout(time.Hour))
}

func TestRefreshEscalatesRepeatedFailures(t *testing.T) {
	var buf bytes.Buffer
	// no snapshot cache configured, so every pass fails
	svc := scheduling.NewService(nil, nil, config.Config{OpenHour: 9, CloseHour: 18, SlotMinutes: 30})
	w := &worker{svc: svc, log: zerolog.New(&buf), timeout: time.Second}

	for i := 0; i < failureThreshold; i++ {
		require.False(t, w.refresh(context.Background()))
	}
	assert.Equal(t, failureThreshold, w.failures)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, failureThreshold)
	assert.Contains(t, lines[0], `"level":"warn"`)
	assert.Contains(t, lines[failureThreshold-1], `"level":"error"`)
}
