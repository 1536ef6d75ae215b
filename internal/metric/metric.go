// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metric provides small Prometheus-backed helpers for tracking
// running averages of durations and counts, the way a poll set tracks
// how long its polls take to resolve.
package metric

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Averager tracks a running average of observed values and exposes it
// as a Prometheus gauge.
type Averager interface {
	Observe(value float64)
	Read() float64
}

type averager struct {
	mu    sync.RWMutex
	sum   float64
	count int64
	gauge prometheus.Gauge
}

// NewAverager registers a gauge named name (described by desc) on reg
// and returns an Averager that keeps the gauge updated with the mean
// of all observed values.
func NewAverager(name, desc string, reg prometheus.Registerer) (Averager, error) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: desc,
	})
	if err := reg.Register(gauge); err != nil {
		return nil, err
	}
	return &averager{gauge: gauge}, nil
}

func (a *averager) Observe(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sum += value
	a.count++
	a.gauge.Set(a.sum / float64(a.count))
}

func (a *averager) Read() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}
