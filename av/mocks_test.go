package av

import (
	"context"
	"errors"
	"io"
	"sync"
)

var errInjected = errors.New("injected failure")

// fakeCapture fills every block with its frame number and returns io.EOF
// (or err) after limit frames.
type fakeCapture struct {
	limit  int
	err    error
	reads  int
	closed int
}

func (c *fakeCapture) Read(pcm []int16) error {
	if c.reads >= c.limit {
		if c.err != nil {
			return c.err
		}
		return io.EOF
	}
	c.reads++
	for i := range pcm {
		pcm[i] = int16(c.reads)
	}
	return nil
}

func (c *fakeCapture) Close() error {
	c.closed++
	return nil
}

// fakeEncoder emits the first sample of the block as a one-byte payload.
type fakeEncoder struct {
	err   error
	calls int
	// priming is how many leading frames yield no packet.
	priming int
}

func (e *fakeEncoder) Encode(pcm []int16) ([]byte, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if e.calls <= e.priming {
		return nil, nil
	}
	return []byte{byte(pcm[0]), 0xAA}, nil
}

func (e *fakeEncoder) Close() error { return nil }

type sentFrame struct {
	payload []byte
	ts      uint32
}

type recordingSender struct {
	mu   sync.Mutex
	err  error
	sent []sentFrame
}

func (s *recordingSender) SendWithTimestamp(payload []byte, ts uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentFrame{payload: payload, ts: ts})
	return nil
}

func (s *recordingSender) frames() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentFrame(nil), s.sent...)
}

// fakeReceiver returns the payload stored for a timestamp and records
// every timestamp asked for.
type fakeReceiver struct {
	payloads map[uint32][]byte
	asked    []uint32
}

func (r *fakeReceiver) Receive(ts uint32) ([]byte, bool) {
	r.asked = append(r.asked, ts)
	p, ok := r.payloads[ts]
	return p, ok
}

// fakeDecoder produces frame samples per channel: 1s for a decoded
// payload, 2s for concealment. Payload "bad" fails to decode.
type fakeDecoder struct {
	frame      int
	channels   int
	concealN   int
	concealErr error
	conceals   int
}

func (d *fakeDecoder) Decode(payload []byte, pcm []int16) (int, error) {
	value, n := int16(1), d.frame
	if payload == nil {
		d.conceals++
		if d.concealErr != nil {
			return 0, d.concealErr
		}
		value, n = 2, d.concealN
	} else if string(payload) == "bad" {
		return 0, errInjected
	}
	for i := 0; i < n*d.channels; i++ {
		pcm[i] = value
	}
	return n, nil
}

func (d *fakeDecoder) Close() error { return nil }

// fakePlayback records written blocks and cancels the pipeline context
// after limit writes.
type fakePlayback struct {
	limit  int
	cancel context.CancelFunc
	err    error
	blocks [][]int16
}

func (p *fakePlayback) Write(pcm []int16) error {
	if p.err != nil {
		return p.err
	}
	p.blocks = append(p.blocks, append([]int16(nil), pcm...))
	if len(p.blocks) >= p.limit && p.cancel != nil {
		p.cancel()
	}
	return nil
}

func (p *fakePlayback) Close() error { return nil }
