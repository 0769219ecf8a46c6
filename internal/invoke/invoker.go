package invoke

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"prizmagent/internal/chain"
	"prizmagent/internal/domain"
	"prizmagent/internal/metrics"
	"prizmagent/internal/tool"
)

// Request is one inbound invocation: either a pre-structured target with
// arguments, or raw text for the call parser. When Target is set and Raw
// carries only a key=value argument string, the parsed arguments attach to
// the known target; Raw that parses as nothing at all becomes the target's
// free-text input.
type Request struct {
	Raw    string
	Target string
	Args   map[string]any
}

// Options are the caller-supplied invocation-level knobs.
type Options struct {
	UseCache bool
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Policy decides whether a request warrants a tool call at all. It is
// consulted before anything else; returning false short-circuits the whole
// invocation and the caller's own text stands as the final answer.
type Policy func(req Request, ic *domain.InvocationContext) bool

// DefaultPolicy accepts structured requests unconditionally and raw text only
// when the parser can recognize a call in it.
func DefaultPolicy(req Request, _ *domain.InvocationContext) bool {
	if req.Target != "" {
		return true
	}
	_, err := Parse(req.Raw)
	return err == nil
}

// Recorder receives an audit record per completed invocation. Optional.
type Recorder interface {
	RecordInvocation(ctx context.Context, rec Record)
}

// Record is the audit trail entry for one invocation.
type Record struct {
	InvocationID   string
	ConversationID string
	Target         string
	Fingerprint    string
	Status         domain.OutcomeStatus
	Error          string
	Cached         bool
	Elapsed        time.Duration
}

// Config holds the invoker's collaborators.
type Config struct {
	Tools    *tool.Registry
	Chains   *chain.Registry
	Cache    ResultCache
	Policy   Policy
	Recorder Recorder
	Logger   *slog.Logger
}

// Invoker is the orchestration entry point: it parses the request, consults
// the cache, resolves the target in the registries, executes it with the
// caller's options, and stores the result. Each call to Invoke is one
// independent invocation; invocations run fully in parallel and share only
// the registries (read-mostly) and the cache (concurrency-safe).
type Invoker struct {
	tools    *tool.Registry
	chains   *chain.Registry
	cache    ResultCache
	policy   Policy
	recorder Recorder
	logger   *slog.Logger
}

func New(cfg Config) *Invoker {
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy
	}
	return &Invoker{
		tools:    cfg.Tools,
		chains:   cfg.Chains,
		cache:    cfg.Cache,
		policy:   cfg.Policy,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
}

// Invoke runs one invocation end to end and returns its outcome. It never
// returns an error: every failure kind is a value in the outcome.
func (iv *Invoker) Invoke(ctx context.Context, req Request, ic *domain.InvocationContext, opts Options) domain.Outcome {
	start := time.Now()
	outcome, fingerprint := iv.invoke(ctx, req, ic, opts)
	outcome.Elapsed = time.Since(start)

	iv.observe(ctx, outcome, ic, fingerprint)
	return outcome
}

func (iv *Invoker) invoke(ctx context.Context, req Request, ic *domain.InvocationContext, opts Options) (domain.Outcome, string) {
	// Pre-check: does this request warrant a tool call at all?
	if !iv.policy(req, ic) {
		return domain.Outcome{Status: domain.StatusDeclined}, ""
	}

	// Received -> Parsed.
	name, args, failure := iv.parse(req)
	if failure != nil {
		return failOutcome(name, failure), ""
	}

	// Parsed -> CacheCheck.
	fingerprint := Fingerprint(name, args)
	if opts.UseCache && iv.cache != nil {
		if result, hit := iv.cache.Lookup(ctx, fingerprint); hit {
			iv.logger.Debug("cache hit", "target", name)
			metrics.Collector.Counter("prizm_cache_hits_total", "Result cache hits", "").Inc()
			return domain.Outcome{Status: domain.StatusCompleted, Target: name, Result: result, Cached: true}, fingerprint
		}
		metrics.Collector.Counter("prizm_cache_misses_total", "Result cache misses", "").Inc()
	}

	// CacheCheck -> Resolving. Tool namespace first, chain namespace second;
	// this priority is fixed.
	exec, failure := iv.resolve(name, args)
	if failure != nil {
		return failOutcome(name, failure), fingerprint
	}

	// Resolving -> Executing.
	res, err := iv.execute(ctx, exec, chainInput(args, req), ic, opts.Timeout)
	if err != nil {
		// Failures are never cached, so the next identical request retries.
		f := domain.WrapFailure(domain.ExecutionFailure, err)
		status := domain.StatusFailed
		if f.Kind == domain.TimeoutFailure {
			status = domain.StatusTimeout
		}
		return domain.Outcome{Status: status, Target: name, Failure: f}, fingerprint
	}

	// Executing -> Completed.
	switch res.Status {
	case domain.RunSkipped:
		return domain.Outcome{Status: domain.StatusSkipped, Target: name}, fingerprint
	case domain.RunNoBranch:
		return domain.Outcome{Status: domain.StatusNoBranchMatched, Target: name}, fingerprint
	}

	if opts.UseCache && iv.cache != nil {
		iv.cache.Store(ctx, fingerprint, res.Output, opts.CacheTTL)
	}
	return domain.Outcome{Status: domain.StatusCompleted, Target: name, Result: res.Output}, fingerprint
}

// parse produces the (name, args) pair from the request's structured fields
// or its raw text.
func (iv *Invoker) parse(req Request) (string, map[string]any, *domain.Failure) {
	name := req.Target
	args := req.Args

	if args == nil && req.Raw != "" {
		tcr, err := Parse(req.Raw)
		switch {
		case err == nil:
			if tcr.Name != "" {
				name = tcr.Name
			}
			args = tcr.Args
		case name != "":
			// A named target takes unparsable text as opaque input; it
			// lands in the "input" argument so distinct texts fingerprint
			// apart and chains receive it as their free-text input.
			args = map[string]any{"input": req.Raw}
		default:
			return "", nil, domain.WrapFailure(domain.UnparsableCall, err)
		}
	}

	if name == "" {
		return "", nil, domain.Failf(domain.UnparsableCall, "no target tool or chain in request")
	}
	if args == nil {
		args = make(map[string]any)
	}
	return name, args, nil
}

func (iv *Invoker) resolve(name string, args map[string]any) (domain.Executable, *domain.Failure) {
	if t, err := iv.tools.Get(name); err == nil {
		return chain.NewToolStep(t, args, ""), nil
	}
	if c, err := iv.chains.Get(name); err == nil {
		return c, nil
	}
	return nil, domain.Failf(domain.NotFound, "no tool or chain named %q", name)
}

// execute runs the resolved executable, optionally bounded by a timeout.
// On timeout the invocation is abandoned and reported as such; the underlying
// tool call may still be running; the engine stops waiting, it does not
// guarantee cancellation.
func (iv *Invoker) execute(ctx context.Context, exec domain.Executable, input string, ic *domain.InvocationContext, timeout time.Duration) (domain.RunResult, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type runReply struct {
		res domain.RunResult
		err error
	}
	done := make(chan runReply, 1)
	go func() {
		res, err := exec.Run(runCtx, input, ic)
		done <- runReply{res, err}
	}()

	select {
	case reply := <-done:
		if reply.err != nil && errors.Is(reply.err, context.DeadlineExceeded) {
			return domain.RunResult{}, domain.Failf(domain.TimeoutFailure, "%s exceeded its time limit", exec.Name())
		}
		return reply.res, reply.err
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return domain.RunResult{}, domain.Failf(domain.TimeoutFailure, "%s exceeded its time limit", exec.Name())
		}
		return domain.RunResult{}, domain.Failf(domain.ExecutionFailure, "invocation cancelled: %v", runCtx.Err())
	}
}

// chainInput derives the free-text input threaded into a chain: the "input"
// argument when present, otherwise the raw request text.
func chainInput(args map[string]any, req Request) string {
	if s, ok := args["input"].(string); ok && s != "" {
		return s
	}
	return req.Raw
}

func failOutcome(target string, f *domain.Failure) domain.Outcome {
	return domain.Outcome{Status: domain.StatusFailed, Target: target, Failure: f}
}

// observe emits logs, metrics, and the audit record for one finished
// invocation.
func (iv *Invoker) observe(ctx context.Context, o domain.Outcome, ic *domain.InvocationContext, fingerprint string) {
	switch {
	case o.Failed():
		iv.logger.Warn("invocation failed",
			"target", o.Target, "status", o.Status, "error", o.ErrorMessage(), "elapsed", o.Elapsed)
	case o.Status != domain.StatusDeclined:
		iv.logger.Info("invocation finished",
			"target", o.Target, "status", o.Status, "cached", o.Cached, "elapsed", o.Elapsed)
	}

	metrics.Collector.Counter("prizm_invocations_total", "Invocations by terminal status",
		`status="`+string(o.Status)+`"`).Inc()
	if o.Status == domain.StatusCompleted {
		metrics.Collector.Histogram("prizm_invocation_seconds", "Invocation latency", "").
			Observe(o.Elapsed.Seconds())
	}

	if iv.recorder != nil && ic != nil && o.Status != domain.StatusDeclined {
		iv.recorder.RecordInvocation(ctx, Record{
			InvocationID:   ic.InvocationID,
			ConversationID: ic.ConversationID,
			Target:         o.Target,
			Fingerprint:    fingerprint,
			Status:         o.Status,
			Error:          o.ErrorMessage(),
			Cached:         o.Cached,
			Elapsed:        o.Elapsed,
		})
	}
}
