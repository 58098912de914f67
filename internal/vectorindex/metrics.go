package vectorindex

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// Observer exports index operation metrics to Prometheus.
type Observer struct {
	opDuration *promclient.HistogramVec
	opErrors   *promclient.CounterVec
}

// NewObserver registers upsert/remove/search metrics.
func NewObserver(namespace string, reg promclient.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = "vectorindex"
	}
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}
	observer := &Observer{
		opDuration: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency for vector index operations.",
			Buckets:   promclient.DefBuckets,
		}, []string{"operation"}),
		opErrors: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of vector index operation failures.",
		}, []string{"operation"}),
	}
	if err := reg.Register(observer.opDuration); err != nil {
		if are, ok := err.(promclient.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*promclient.HistogramVec); ok {
				observer.opDuration = existing
			} else {
				return nil, fmt.Errorf("register index histogram: %w", err)
			}
		} else {
			return nil, fmt.Errorf("register index histogram: %w", err)
		}
	}
	if err := reg.Register(observer.opErrors); err != nil {
		if are, ok := err.(promclient.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*promclient.CounterVec); ok {
				observer.opErrors = existing
			} else {
				return nil, fmt.Errorf("register index counter: %w", err)
			}
		} else {
			return nil, fmt.Errorf("register index counter: %w", err)
		}
	}
	return observer, nil
}

func (o *Observer) observe(operation string, start time.Time, err error) {
	o.opDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		o.opErrors.WithLabelValues(operation).Inc()
	}
}

// observedIndex wraps an Index with operation metrics.
type observedIndex struct {
	inner    Index
	observer *Observer
}

// WithMetrics wraps index so every operation is timed and counted.
func WithMetrics(inner Index, observer *Observer) Index {
	if observer == nil {
		return inner
	}
	return &observedIndex{inner: inner, observer: observer}
}

func (ix *observedIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	start := time.Now()
	err := ix.inner.Upsert(ctx, id, vector, metadata)
	ix.observer.observe("upsert", start, err)
	return err
}

func (ix *observedIndex) Remove(ctx context.Context, id string) error {
	start := time.Now()
	err := ix.inner.Remove(ctx, id)
	ix.observer.observe("remove", start, err)
	return err
}

func (ix *observedIndex) Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]Match, error) {
	start := time.Now()
	matches, err := ix.inner.Search(ctx, vector, topK, filters)
	ix.observer.observe("search", start, err)
	return matches, err
}

func (ix *observedIndex) Count() int {
	return ix.inner.Count()
}
