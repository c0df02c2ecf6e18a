package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DetectionMetrics provides observability for detector runs.
type DetectionMetrics struct {
	detectRuns    metric.Int64Counter
	trainRuns     metric.Int64Counter
	flaggedNodes  metric.Int64Counter
	detectLatency metric.Float64Histogram
	snapshotNodes metric.Int64Histogram
	snapshotEdges metric.Int64Histogram
}

// NewDetectionMetrics registers detection instruments on the global meter.
func NewDetectionMetrics() (*DetectionMetrics, error) {
	meter := otel.GetMeterProvider().Meter("argus-detect")

	dm := &DetectionMetrics{}
	var err error

	dm.detectRuns, err = meter.Int64Counter(
		"argus_detect_runs_total",
		metric.WithDescription("Total detector invocations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	dm.trainRuns, err = meter.Int64Counter(
		"argus_detect_train_total",
		metric.WithDescription("Total detector training runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	dm.flaggedNodes, err = meter.Int64Counter(
		"argus_detect_flagged_nodes_total",
		metric.WithDescription("Total nodes flagged as anomalous"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	dm.detectLatency, err = meter.Float64Histogram(
		"argus_detect_latency_seconds",
		metric.WithDescription("Per-detector detection latency distribution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	dm.snapshotNodes, err = meter.Int64Histogram(
		"argus_snapshot_nodes",
		metric.WithDescription("Node count per analyzed snapshot"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	dm.snapshotEdges, err = meter.Int64Histogram(
		"argus_snapshot_edges",
		metric.WithDescription("Edge count per analyzed snapshot"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return dm, nil
}

// RecordDetect records one detector run with its latency and flagged count.
func (dm *DetectionMetrics) RecordDetect(ctx context.Context, detector string, flagged int, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("detector", detector))
	dm.detectRuns.Add(ctx, 1, attrs)
	dm.flaggedNodes.Add(ctx, int64(flagged), attrs)
	dm.detectLatency.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordTrain records one training run.
func (dm *DetectionMetrics) RecordTrain(ctx context.Context, detector string, baselineSize int) {
	dm.trainRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("detector", detector),
		attribute.Int("baseline_snapshots", baselineSize),
	))
}

// RecordSnapshot records the size of an analyzed snapshot.
func (dm *DetectionMetrics) RecordSnapshot(ctx context.Context, nodes, edges int) {
	dm.snapshotNodes.Record(ctx, int64(nodes))
	dm.snapshotEdges.Record(ctx, int64(edges))
}
