// Package bus carries detection events and Remote ID ingest over NATS
// with W3C trace-context propagation, so a flag raised in one service
// shows up under the originating trace in another.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sang-Buster/Argus/internal/detect"
	"github.com/Sang-Buster/Argus/internal/swarm"
)

// Subjects used on the wire.
const (
	SubjectFlagged  = "argus.detection.flagged"
	SubjectRemoteID = "argus.remoteid.broadcast"
)

var propagator = propagation.TraceContext{}

// Bus is a thin tracing wrapper around a NATS connection. A nil *Bus is
// valid and drops every publish, so callers never branch on whether
// eventing is configured.
type Bus struct {
	nc *nats.Conn
}

// Connect dials the NATS server at url.
func Connect(url string) (*Bus, error) {
	nc, err := nats.Connect(url, nats.Name("argus"))
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	return &Bus{nc: nc}, nil
}

// Close drains and closes the connection.
func (b *Bus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	b.nc.Drain()
}

// Publish injects the current trace context into the message headers and
// publishes data on subject.
func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	if b == nil || b.nc == nil {
		return nil
	}
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	return b.nc.PublishMsg(&nats.Msg{Subject: subject, Data: data, Header: hdr})
}

// PublishResult publishes a detection result with at least one flagged
// node on the flagged-events subject. Clean results are not published.
func (b *Bus) PublishResult(ctx context.Context, res *detect.Result) error {
	if b == nil || b.nc == nil || res.FlaggedCount() == 0 {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("bus: marshal result: %w", err)
	}
	return b.Publish(ctx, SubjectFlagged, data)
}

// PublishRemoteID publishes one Remote ID broadcast on the ingest
// subject.
func (b *Bus) PublishRemoteID(ctx context.Context, msg *swarm.RemoteIDMessage) error {
	if b == nil || b.nc == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal remote id: %w", err)
	}
	return b.Publish(ctx, SubjectRemoteID, data)
}

// Subscribe wraps nc.Subscribe, extracting the trace context from each
// message and starting a consumer span before calling handler.
func (b *Bus) Subscribe(subject string, handler func(context.Context, *nats.Msg)) (*nats.Subscription, error) {
	if b == nil || b.nc == nil {
		return nil, fmt.Errorf("bus: not connected")
	}
	return b.nc.Subscribe(subject, func(m *nats.Msg) {
		ctx := propagator.Extract(context.Background(), propagation.HeaderCarrier(m.Header))
		tr := otel.Tracer("argus-bus")
		ctx, span := tr.Start(ctx, "bus.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		handler(ctx, m)
	})
}

// SubscribeRemoteID decodes Remote ID broadcasts from the ingest subject
// and hands them to handler.
func (b *Bus) SubscribeRemoteID(handler func(context.Context, *swarm.RemoteIDMessage)) (*nats.Subscription, error) {
	return b.Subscribe(SubjectRemoteID, func(ctx context.Context, m *nats.Msg) {
		var msg swarm.RemoteIDMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			return
		}
		handler(ctx, &msg)
	})
}
