package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock advances only when a device sleeps or the test moves it.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func TestPacer_Captured(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	p := newPacer(clock, 48000)

	p.captured(480)
	p.captured(480)
	p.captured(960)

	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		10 * time.Millisecond,
		20 * time.Millisecond,
	}, clock.Sleeps())
	assert.Equal(t, 40*time.Millisecond, clock.Now().Sub(start))
}

func TestPacer_CapturedCatchesUp(t *testing.T) {
	clock := newFakeClock()
	p := newPacer(clock, 8000)

	p.captured(80)
	clock.Advance(50 * time.Millisecond)
	p.captured(80)

	assert.Equal(t, []time.Duration{10 * time.Millisecond}, clock.Sleeps(),
		"a late reader is not made to wait")
}

func TestPacer_Played(t *testing.T) {
	clock := newFakeClock()
	p := newPacer(clock, 48000)
	buffer := 20 * time.Millisecond

	assert.False(t, p.played(960, buffer))
	assert.Empty(t, clock.Sleeps(), "the first block fits the buffer")

	assert.False(t, p.played(960, buffer))
	assert.Equal(t, []time.Duration{20 * time.Millisecond}, clock.Sleeps())

	clock.Advance(100 * time.Millisecond)
	assert.True(t, p.played(960, buffer), "an idle device has run dry")
	assert.Len(t, clock.Sleeps(), 1)
}
