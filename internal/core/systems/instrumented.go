package systems

import (
	"time"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/world"
)

// Metrics provides runtime metrics for a system
type Metrics struct {
	Activations         uint64
	ActivationErrors    uint64
	Deactivations       uint64
	LiveUpdates         uint64
	DependencyUpdates   uint64
	TotalActivationTime time.Duration
	MaxActivationTime   time.Duration
	LastError           error
	LastActivationTime  time.Time
}

// Instrumented wraps a System, logging every lifecycle callback and keeping
// Metrics. It runs on the world goroutine and is not safe for concurrent use.
type Instrumented struct {
	next    world.System
	logger  log.Log
	metrics Metrics
}

func Instrument(next world.System, logger log.Log) *Instrumented {
	return &Instrumented{next: next, logger: logger}
}

func (s *Instrumented) Activate(c *world.Component) (any, error) {
	start := time.Now()
	resource, err := s.next.Activate(c)
	elapsed := time.Since(start)

	s.metrics.TotalActivationTime += elapsed
	s.metrics.MaxActivationTime = max(s.metrics.MaxActivationTime, elapsed)
	s.metrics.LastActivationTime = start
	if err != nil {
		s.metrics.ActivationErrors++
		s.metrics.LastError = err
		s.logger.Warn("Component activation failed",
			log.Stringer("component", c.Key()),
			log.Error(err),
		)
		return nil, err
	}
	s.metrics.Activations++
	s.logger.Debug("Component activated",
		log.Stringer("component", c.Key()),
		log.Duration("elapsed", elapsed),
	)
	return resource, nil
}

func (s *Instrumented) Deactivate(c *world.Component, resource any) {
	s.next.Deactivate(c, resource)
	s.metrics.Deactivations++
	s.logger.Debug("Component deactivated", log.Stringer("component", c.Key()))
}

func (s *Instrumented) CanLiveUpdateField(f schema.FieldID) bool {
	return s.next.CanLiveUpdateField(f)
}

func (s *Instrumented) LiveUpdateField(c *world.Component, f schema.FieldID) bool {
	s.metrics.LiveUpdates++
	propagate := s.next.LiveUpdateField(c, f)
	s.logger.Debug("Component field updated live",
		log.Stringer("component", c.Key()),
		log.Int("field", int(f)),
		log.Bool("propagate", propagate),
	)
	return propagate
}

func (s *Instrumented) CanLiveUpdateDependencyField(f schema.FieldID) bool {
	return s.next.CanLiveUpdateDependencyField(f)
}

func (s *Instrumented) LiveUpdateDependencyField(c *world.Component, f schema.FieldID) bool {
	s.metrics.DependencyUpdates++
	return s.next.LiveUpdateDependencyField(c, f)
}

func (s *Instrumented) RequiresAuthority() bool {
	return s.next.RequiresAuthority()
}

// GetMetrics returns a copy of the accumulated metrics.
func (s *Instrumented) GetMetrics() Metrics {
	return s.metrics
}
