package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-station-sync/internal/session"
)

type fakeTarget struct {
	refreshErr error
	refreshes  atomic.Int32
	popups     atomic.Int32
}

func (f *fakeTarget) Refresh(context.Context) error {
	f.refreshes.Add(1)
	return f.refreshErr
}

func (f *fakeTarget) RefreshPopup(context.Context) error {
	f.popups.Add(1)
	return nil
}

func TestTick_RefreshesBoth(t *testing.T) {
	target := &fakeTarget{}
	s := New(target, time.Minute, log.New(io.Discard))

	s.tick()
	assert.EqualValues(t, 1, target.refreshes.Load())
	assert.EqualValues(t, 1, target.popups.Load())
}

func TestTick_SkipsWithoutSelection(t *testing.T) {
	target := &fakeTarget{refreshErr: session.ErrNoSelection}
	s := New(target, time.Minute, log.New(io.Discard))

	s.tick()
	assert.EqualValues(t, 1, target.refreshes.Load())
	assert.EqualValues(t, 0, target.popups.Load())
}

func TestTick_PopupStillRefreshedAfterSyncError(t *testing.T) {
	target := &fakeTarget{refreshErr: errors.New("boom")}
	s := New(target, time.Minute, log.New(io.Discard))

	s.tick()
	assert.EqualValues(t, 1, target.popups.Load())
}

func TestStart_Disabled(t *testing.T) {
	target := &fakeTarget{}
	s := New(target, 0, log.New(io.Discard))

	require.NoError(t, s.Start())
	s.Stop()
	assert.EqualValues(t, 0, target.refreshes.Load())
}

func TestStart_RunsOnInterval(t *testing.T) {
	target := &fakeTarget{}
	s := New(target, time.Second, log.New(io.Discard))

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return target.refreshes.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}
