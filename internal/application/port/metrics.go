package port

import "time"

// Metrics receives workflow measurements
type Metrics interface {
	RecordTransition(operation string, err error, elapsed time.Duration)
	RecordClone(kind string)
	RecordNotification(channel string, err error)
	RecordEffectFailure(effectType string)
}

// NopMetrics discards every measurement
type NopMetrics struct{}

func (NopMetrics) RecordTransition(string, error, time.Duration) {}
func (NopMetrics) RecordClone(string)                            {}
func (NopMetrics) RecordNotification(string, error)              {}
func (NopMetrics) RecordEffectFailure(string)                    {}
