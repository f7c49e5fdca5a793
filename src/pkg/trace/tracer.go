package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer
var recorder *spanRecorder
var reportPath string

// spanRecorder accumulates finished spans for the timing report. Handlers
// run concurrently, so appends are locked.
type spanRecorder struct {
	mu    sync.Mutex
	spans []spanRecord
}

type spanRecord struct {
	Name     string
	Duration time.Duration
	Start    time.Time
	End      time.Time
	ParentID string
	SpanID   string
}

type SpanInfo struct {
	Name       string     `json:"name"`
	DurationMs float64    `json:"durationMs"`
	Start      string     `json:"start"`
	End        string     `json:"end"`
	Children   []SpanInfo `json:"children,omitempty"`
}

type TimingReport struct {
	Spans           []SpanInfo `json:"spans"`
	TotalDurationMs float64    `json:"totalDurationMs"`
	Timestamp       string     `json:"timestamp"`
}

// Init sets up tracing for the change pipeline. When disabled it returns a
// no-op shutdown. The shutdown function writes the JSON timing report to
// path when one is configured.
func Init(serviceName string, enabled bool, path string) (func(), error) {
	if !enabled {
		return func() {}, nil
	}

	recorder = &spanRecorder{}
	reportPath = path

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(&recordingSpanProcessor{recorder: recorder}),
	)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(serviceName)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
		_ = ExportReport()
	}
	return shutdown, nil
}

// StartSpan starts a span, or passes the context through untouched when
// tracing is disabled.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name)
}

type recordingSpanProcessor struct {
	recorder *spanRecorder
}

func (p *recordingSpanProcessor) OnStart(_ context.Context, _ sdktrace.ReadWriteSpan) {}

func (p *recordingSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if p.recorder == nil {
		return
	}
	parentID := ""
	if s.Parent().IsValid() {
		parentID = s.Parent().SpanID().String()
	}
	p.recorder.mu.Lock()
	p.recorder.spans = append(p.recorder.spans, spanRecord{
		Name:     s.Name(),
		Duration: s.EndTime().Sub(s.StartTime()),
		Start:    s.StartTime(),
		End:      s.EndTime(),
		SpanID:   s.SpanContext().SpanID().String(),
		ParentID: parentID,
	})
	p.recorder.mu.Unlock()
}

func (p *recordingSpanProcessor) Shutdown(_ context.Context) error   { return nil }
func (p *recordingSpanProcessor) ForceFlush(_ context.Context) error { return nil }

// ExportReport writes the collected spans as a nested JSON timing report.
func ExportReport() error {
	if recorder == nil || reportPath == "" {
		return nil
	}
	recorder.mu.Lock()
	records := append([]spanRecord(nil), recorder.spans...)
	recorder.mu.Unlock()
	if len(records) == 0 {
		return nil
	}

	hierarchy := buildHierarchy(records)
	total := 0.0
	for _, span := range hierarchy {
		total += span.DurationMs
	}
	report := TimingReport{
		Spans:           hierarchy,
		TotalDurationMs: total,
		Timestamp:       time.Now().Format(time.RFC3339Nano),
	}

	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(reportPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func buildHierarchy(records []spanRecord) []SpanInfo {
	spanMap := make(map[string]*SpanInfo, len(records))
	for _, record := range records {
		spanMap[record.SpanID] = &SpanInfo{
			Name:       record.Name,
			DurationMs: float64(record.Duration.Microseconds()) / 1000.0,
			Start:      record.Start.Format(time.RFC3339Nano),
			End:        record.End.Format(time.RFC3339Nano),
		}
	}

	// Attach children before materializing roots so nested spans are not
	// lost to value copies.
	var rootIDs []string
	for _, record := range records {
		parent, ok := spanMap[record.ParentID]
		if record.ParentID == "" || !ok {
			rootIDs = append(rootIDs, record.SpanID)
			continue
		}
		parent.Children = append(parent.Children, *spanMap[record.SpanID])
	}

	roots := make([]SpanInfo, 0, len(rootIDs))
	for _, id := range rootIDs {
		roots = append(roots, *spanMap[id])
	}

	sort.Slice(roots, func(i, j int) bool { return roots[i].Start < roots[j].Start })
	return roots
}
