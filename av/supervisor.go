package av

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type namedPipeline struct {
	name     string
	pipeline Pipeline
}

// Supervisor runs the transmit and receive pipelines of one process
// together with background tasks such as the stats reporter.
//
// A pipeline that fails stops on its own; its siblings keep running until
// the context is cancelled or they fail too. Run returns once every
// pipeline has returned, with the first error any of them reported.
// Background tasks are cancelled when the last pipeline returns.
type Supervisor struct {
	pipelines  []namedPipeline
	background []namedPipeline
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Add registers a pipeline. Add must not be called after Run.
func (s *Supervisor) Add(name string, p Pipeline) {
	s.pipelines = append(s.pipelines, namedPipeline{name: name, pipeline: p})
}

// AddBackground registers a task that runs for as long as any pipeline
// does. Its error is returned by Run like a pipeline error.
func (s *Supervisor) AddBackground(name string, p Pipeline) {
	s.background = append(s.background, namedPipeline{name: name, pipeline: p})
}

// Run starts every registered task and blocks until all have returned.
func (s *Supervisor) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function":   "Supervisor.Run",
		"pipelines":  len(s.pipelines),
		"background": len(s.background),
	}).Info("Starting pipelines")

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var pipelines errgroup.Group
	for _, np := range s.pipelines {
		pipelines.Go(func() error {
			return runNamed(ctx, np)
		})
	}

	var all errgroup.Group
	all.Go(func() error {
		defer stopBackground()
		return pipelines.Wait()
	})
	for _, np := range s.background {
		all.Go(func() error {
			return runNamed(bgCtx, np)
		})
	}

	err := all.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Supervisor.Run",
		"failed":   err != nil,
	}).Info("All pipelines stopped")

	return err
}

func runNamed(ctx context.Context, np namedPipeline) error {
	err := np.pipeline.Run(ctx)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Supervisor.Run",
			"pipeline": np.name,
			"error":    err.Error(),
		}).Error("Pipeline failed")
		return fmt.Errorf("%s: %w", np.name, err)
	}
	return nil
}
