package audio

import "time"

// Clock abstracts time for device pacing so tests can run without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock implements Clock with the time package.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep pauses the calling goroutine for d.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// pacer makes software devices block like hardware: a capture device
// delivers a block once that much audio could have been recorded, and a
// playback device accepts a block once its buffer has room.
type pacer struct {
	clock   Clock
	rate    uint32
	start   time.Time
	frames  uint64
	started bool
}

func newPacer(clock Clock, rate uint32) *pacer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &pacer{clock: clock, rate: rate}
}

func (p *pacer) duration(frames uint64) time.Duration {
	return time.Duration(frames * uint64(time.Second) / uint64(p.rate))
}

// captured blocks until frames more samples per channel have elapsed on
// the device clock.
func (p *pacer) captured(frames int) {
	now := p.clock.Now()
	if !p.started {
		p.start, p.started = now, true
	}
	p.frames += uint64(frames)
	if wait := p.start.Add(p.duration(p.frames)).Sub(now); wait > 0 {
		p.clock.Sleep(wait)
	}
}

// played queues frames samples per channel and blocks while more than
// buffer of audio is queued. It reports whether the queue had run dry
// before this block, the software equivalent of an underrun.
func (p *pacer) played(frames int, buffer time.Duration) bool {
	now := p.clock.Now()
	if !p.started {
		p.start, p.started = now, true
	}

	underrun := false
	queued := p.start.Add(p.duration(p.frames)).Sub(now)
	if queued < 0 && p.frames > 0 {
		p.start = now.Add(-p.duration(p.frames))
		queued = 0
		underrun = true
	}

	p.frames += uint64(frames)
	queued += p.duration(uint64(frames))
	if queued > buffer {
		p.clock.Sleep(queued - buffer)
	}
	return underrun
}
