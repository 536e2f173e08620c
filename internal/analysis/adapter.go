package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/chem-report/internal/cost"
	"github.com/sells-group/chem-report/internal/evidence"
	"github.com/sells-group/chem-report/internal/resilience"
	"github.com/sells-group/chem-report/pkg/anthropic"
)

// ErrUnavailable matches every failed engine invocation.
var ErrUnavailable = eris.New("analysis: engine unavailable")

// UnavailableError carries the engine's own failure. Error returns that
// message unmodified.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string { return e.Err.Error() }

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) hold for any UnavailableError.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Result is one successful invocation.
type Result struct {
	ResponseText string
	Model        string
	InputUnits   int64
	OutputUnits  int64
	Elapsed      time.Duration
	Cost         cost.Estimate
}

// TotalUnits returns input plus output tokens.
func (r *Result) TotalUnits() int64 {
	return r.InputUnits + r.OutputUnits
}

// Options tune an Adapter. Zero values disable the corresponding feature.
type Options struct {
	ReasoningBudget   int64
	Timeout           time.Duration
	RequestsPerMinute int
}

// Adapter wraps an Engine with timing, usage accounting and uniform errors.
// It never retries.
type Adapter struct {
	engine  Engine
	calc    *cost.Calculator
	opts    Options
	limiter *rate.Limiter
}

// NewAdapter creates an adapter around engine. calc may be nil, in which
// case results carry a zero cost estimate.
func NewAdapter(engine Engine, calc *cost.Calculator, opts Options) *Adapter {
	a := &Adapter{engine: engine, calc: calc, opts: opts}
	if opts.RequestsPerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return a
}

// Invoke runs the engine once on payload. Any engine failure, a timeout, or
// an empty response is returned as *UnavailableError.
func (a *Adapter) Invoke(ctx context.Context, payload *evidence.Payload) (*Result, error) {
	log := zap.L().With(zap.Int("payload_bytes", payload.Size()))

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, &UnavailableError{Err: eris.Wrap(err, "analysis: rate limit wait")}
		}
	}

	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	log.Info("analysis: sending request",
		zap.Int("images", payload.Count(evidence.KindImage)),
		zap.Int("documents", payload.Count(evidence.KindDocument)),
		zap.Int64("reasoning_budget", a.opts.ReasoningBudget),
	)

	start := time.Now()
	gen, err := a.engine.Generate(ctx, payload, a.opts.ReasoningBudget)
	elapsed := time.Since(start)
	if err != nil {
		log.Error("analysis: engine call failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, &UnavailableError{Err: err}
	}
	if strings.TrimSpace(gen.Text) == "" {
		err := eris.Errorf("analysis: empty response (stop reason %q)", gen.StopReason)
		log.Error("analysis: engine returned no text", zap.Duration("elapsed", elapsed))
		return nil, &UnavailableError{Err: err}
	}

	res := &Result{
		ResponseText: gen.Text,
		Model:        gen.Model,
		InputUnits:   gen.InputTokens,
		OutputUnits:  gen.OutputTokens,
		Elapsed:      elapsed,
	}
	if a.calc != nil {
		res.Cost = a.calc.Estimate(gen.Model, gen.InputTokens, gen.OutputTokens)
		if !res.Cost.Known {
			log.Warn("analysis: no pricing configured for model", zap.String("model", gen.Model))
		}
	}

	log.Info("analysis: usage",
		zap.String("model", res.Model),
		zap.Int64("input_tokens", res.InputUnits),
		zap.Int64("output_tokens", res.OutputUnits),
		zap.Int64("total_tokens", res.TotalUnits()),
		zap.Float64("input_cost_usd", res.Cost.InputCost),
		zap.Float64("output_cost_usd", res.Cost.OutputCost),
		zap.Float64("total_cost_usd", res.Cost.Total()),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// Retryable reports whether a failed invocation may succeed if repeated:
// rate limiting, overload, server errors, network faults and timeouts.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if resilience.IsTransientHTTPStatus(anthropic.StatusCode(err)) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || resilience.IsTransient(err)
}
