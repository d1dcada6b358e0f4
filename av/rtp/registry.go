package rtp

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Report pairs a session's stats key with a statistics snapshot.
type Report struct {
	Key   string
	Stats Statistics
}

// Registry holds the sessions of one process, one per descriptor, in
// descriptor order. Membership is fixed at construction: pipelines read
// it concurrently without locking.
type Registry struct {
	sessions  []*Session
	closeOnce sync.Once
	closeErr  error
}

// NewRegistry opens one session per descriptor. If any session fails to
// open, the sessions already opened are closed and the error is returned.
func NewRegistry(descs []Descriptor, opts SessionOptions) (*Registry, error) {
	logrus.WithFields(logrus.Fields{
		"function": "NewRegistry",
		"count":    len(descs),
	}).Info("Creating session registry")

	if len(descs) == 0 {
		return nil, ErrNoDescriptors
	}
	if !opts.DisableRTCP {
		if err := CheckRTCPPorts(descs); err != nil {
			return nil, err
		}
	}

	r := &Registry{sessions: make([]*Session, 0, len(descs))}
	for _, desc := range descs {
		session, err := NewSession(desc, opts)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "NewRegistry",
				"session":  desc.String(),
				"error":    err.Error(),
			}).Error("Failed to create session, releasing registry")
			_ = r.Close()
			return nil, fmt.Errorf("session %s: %w", desc, err)
		}
		session.OnTimeJump(resyncOnTimeJump)
		r.sessions = append(r.sessions, session)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewRegistry",
		"count":    len(r.sessions),
	}).Info("Session registry created successfully")

	return r, nil
}

// resyncOnTimeJump is the callback every registry session registers for
// remote clock discontinuities.
func resyncOnTimeJump(s *Session) {
	logrus.WithFields(logrus.Fields{
		"function": "resyncOnTimeJump",
		"session":  s.Descriptor().String(),
	}).Info("Remote timestamp jump, resynchronizing")
	s.Resync()
}

// Sessions returns the sessions in descriptor order. The slice is a copy.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Snapshot returns a statistics report per session, in descriptor order.
func (r *Registry) Snapshot() []Report {
	reports := make([]Report, 0, len(r.sessions))
	for _, s := range r.sessions {
		reports = append(reports, Report{
			Key:   s.Descriptor().String(),
			Stats: s.Statistics(),
		})
	}
	return reports
}

// Close closes every session in reverse order. Calling Close more than
// once is safe.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		for i := len(r.sessions) - 1; i >= 0; i-- {
			if err := r.sessions[i].Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Registry.Close",
					"session":  r.sessions[i].Descriptor().String(),
					"error":    err.Error(),
				}).Error("Error closing session")
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
