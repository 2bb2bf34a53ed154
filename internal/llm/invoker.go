package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Invoker dispatches model invocations to provider adapters under a uniform
// resilience policy: retry with backoff for transient failures and a
// per-provider circuit breaker for sustained ones.
//
// All collaborators are injected at construction; the invoker holds no
// global state.
type Invoker struct {
	registry *Registry
	breaker  *CircuitBreaker
	retry    RetryPolicy
	logger   *slog.Logger
	tracer   trace.Tracer

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// InvokerOption is a functional option for configuring an Invoker.
type InvokerOption func(*Invoker)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) InvokerOption {
	return func(i *Invoker) {
		i.retry = policy
	}
}

// WithLogger configures the invoker's structured logger.
func WithLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithTracer configures the OpenTelemetry tracer used for invocation spans.
func WithTracer(tracer trace.Tracer) InvokerOption {
	return func(i *Invoker) {
		if tracer != nil {
			i.tracer = tracer
		}
	}
}

// NewInvoker creates an Invoker backed by the given provider registry and
// circuit breaker.
func NewInvoker(registry *Registry, breaker *CircuitBreaker, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		registry: registry,
		breaker:  breaker,
		retry:    DefaultRetryPolicy(),
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("llm"),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// invokeOptions carries per-call settings.
type invokeOptions struct {
	onToken func(string)
}

// InvokeOption is a per-call option for Invoke.
type InvokeOption func(*invokeOptions)

// WithTokenCallback streams incremental output tokens to fn when the
// provider supports streaming. The full content is still returned.
func WithTokenCallback(fn func(string)) InvokeOption {
	return func(o *invokeOptions) {
		o.onToken = fn
	}
}

// Invoke dispatches one model invocation. The provider is looked up by the
// resolved config's provider name; a lookup failure is a configuration
// error surfaced before any network call.
//
// Retryable errors are retried up to the policy's attempt budget with the
// provider-supplied (or computed) backoff delay; non-retryable errors
// propagate immediately. Every attempt consults and feeds the circuit
// breaker. Cancellation is cooperative: the context is checked before each
// attempt, so an in-flight call that already returned is never discarded
// here.
func (inv *Invoker) Invoke(ctx context.Context, cfg ResolvedConfig, prompt string, opts ...InvokeOption) (*Content, error) {
	var callOpts invokeOptions
	for _, opt := range opts {
		opt(&callOpts)
	}

	providerName := cfg.Provider.String()
	provider, err := inv.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	ctx, span := inv.tracer.Start(ctx, "llm.invoke",
		trace.WithAttributes(
			attribute.String("llm.provider", providerName),
			attribute.String("llm.model", cfg.Model),
			attribute.Int("llm.max_output_tokens", cfg.MaxOutputTokens),
		))
	defer span.End()

	var lastErr error
	for attempt := 1; ; attempt++ {
		// Cooperative cancellation point before each attempt.
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, TranslateError(providerName, err)
		}

		if err := inv.breaker.Allow(providerName); err != nil {
			span.SetStatus(codes.Error, "circuit open")
			inv.logger.Warn("provider circuit open, rejecting call",
				"provider", providerName, "model", cfg.Model)
			return nil, err
		}

		content, err := inv.attempt(ctx, provider, cfg, prompt, &callOpts)
		if err == nil {
			inv.breaker.RecordSuccess(providerName)
			span.SetAttributes(attribute.Int("llm.attempts", attempt))
			return content, nil
		}

		classified := TranslateError(providerName, err)
		inv.breaker.RecordFailure(providerName)
		lastErr = classified

		inv.logger.Warn("model invocation failed",
			"provider", providerName,
			"model", cfg.Model,
			"attempt", attempt,
			"kind", string(KindOf(classified)),
			"error", classified)

		if !inv.retry.ShouldRetry(classified, attempt) {
			break
		}

		delay := inv.retry.Delay(attempt, RetryAfterHint(classified))
		if err := inv.sleep(ctx, delay); err != nil {
			// Cancelled while backing off.
			span.SetStatus(codes.Error, "cancelled during backoff")
			return nil, TranslateError(providerName, err)
		}
	}

	span.SetStatus(codes.Error, lastErr.Error())
	return nil, lastErr
}

// attempt performs a single provider call, streaming when requested and
// supported.
func (inv *Invoker) attempt(ctx context.Context, provider Provider, cfg ResolvedConfig, prompt string, opts *invokeOptions) (*Content, error) {
	if opts.onToken != nil {
		if streamer, ok := provider.(StreamingProvider); ok {
			return inv.consumeStream(ctx, streamer, cfg, prompt, opts.onToken)
		}
	}

	content, err := provider.Generate(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}
	if content == nil || content.Text == "" {
		return nil, NewInvalidResponseError(provider.Name(), "provider returned empty content")
	}
	return content, nil
}

// consumeStream assembles a full Content from a token stream, forwarding
// each increment to onToken.
func (inv *Invoker) consumeStream(ctx context.Context, provider StreamingProvider, cfg ResolvedConfig, prompt string, onToken func(string)) (*Content, error) {
	chunks, err := provider.GenerateStream(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.Text != "" {
			sb.WriteString(chunk.Text)
			onToken(chunk.Text)
		}
	}

	if sb.Len() == 0 {
		return nil, NewInvalidResponseError(provider.Name(), "stream produced no content")
	}
	return &Content{
		Text:         sb.String(),
		Model:        cfg.Model,
		FinishReason: FinishReasonStop,
	}, nil
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
