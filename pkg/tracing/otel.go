// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agent-platform"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartSessionSpan 开始一次求解会话的 span
func StartSessionSpan(ctx context.Context, sessionID string, maxSteps int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session.solve",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("session.max_steps", maxSteps),
		),
	)
}

// StartStepSpan 开始单步 DECIDE/EXECUTE/VERIFY 的 span
func StartStepSpan(ctx context.Context, step int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session.step",
		trace.WithAttributes(attribute.Int("step.index", step)),
	)
}

// StartToolSpan 开始 tool invocation span
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool.invoke",
		trace.WithAttributes(attribute.String("tool.name", toolName)),
	)
}

// RecordError 在 span 上记录错误并标记状态；err 为 nil 时不做任何事
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
