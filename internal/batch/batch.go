// Package batch lowers and runs many samples concurrently and reports
// progress while doing so.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"asyncexpr/internal/drive"
	"asyncexpr/internal/lower"
	"asyncexpr/internal/observ"
	"asyncexpr/internal/report"
	"asyncexpr/internal/samples"
	"asyncexpr/internal/testkit"
	"asyncexpr/internal/trace"
)

// Request configures a batch run.
type Request struct {
	Samples  []*samples.Sample
	Options  lower.Options
	Jobs     int
	Progress ProgressSink
	// Cache, when set, short-circuits samples whose record is cached.
	Cache *report.Cache
	// Fingerprint identifies the build; it is part of every cache key.
	Fingerprint string
}

// Result is the outcome of one sample.
type Result struct {
	Sample *samples.Sample
	Record *report.Record
	// Outcome is nil for cached results and for samples that failed to lower.
	Outcome *drive.Outcome
	// Err is set when the sample failed to lower or did not match.
	Err     error
	Cached  bool
	Timings Timings
}

// Summary aggregates a batch run.
type Summary struct {
	Results []Result
	// Phases sums the lowering phases over every sample that was lowered.
	Phases  observ.Report
	Elapsed time.Duration
}

// Failed counts the samples that did not pass.
func (s *Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Records returns the records in sample order.
func (s *Summary) Records() []*report.Record {
	out := make([]*report.Record, 0, len(s.Results))
	for _, r := range s.Results {
		out = append(out, r.Record)
	}
	return out
}

// Run lowers, executes and checks every sample of req. Failing samples are
// reported in their Result; the returned error is only set when ctx is
// cancelled.
func Run(ctx context.Context, req *Request) (*Summary, error) {
	if req == nil {
		return nil, fmt.Errorf("missing batch request")
	}
	start := time.Now()
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeBatch, "batch", trace.SpanID(ctx))
	ctx = trace.WithSpan(ctx, span)

	sum := &Summary{Results: make([]Result, len(req.Samples))}
	for _, s := range req.Samples {
		emit(req.Progress, Event{Sample: s.Name, Stage: StageLower, Status: StatusQueued})
	}
	if len(req.Samples) == 0 {
		span.End("empty")
		return sum, nil
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(req.Samples)))
	for i, s := range req.Samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// results are indexed per sample; no lock needed
			sum.Results[i] = runOne(gctx, req, s)
			return nil
		})
	}
	err := g.Wait()

	for _, r := range sum.Results {
		if r.Record != nil && !r.Cached {
			sum.Phases = sum.Phases.Merge(r.Record.Timings)
		}
	}
	sum.Elapsed = time.Since(start)
	detail := "ok"
	if err != nil {
		detail = "cancelled"
	}
	span.With(trace.A("samples", len(req.Samples)), trace.A("failed", sum.Failed())).End(detail)
	return sum, err
}

func runOne(ctx context.Context, req *Request, s *samples.Sample) Result {
	out := Result{Sample: s}
	key := report.Key(s.Name, req.Fingerprint, OptionsKey(req.Options))
	if req.Cache != nil {
		if rec, ok, err := req.Cache.Get(key); err == nil && ok {
			out.Record, out.Cached = rec, true
			if !rec.OK() {
				out.Err = errors.New(rec.Failure)
			}
			emit(req.Progress, Event{Sample: s.Name, Stage: StageCheck, Status: StatusCached, Err: out.Err})
			return out
		}
	}

	began := time.Now()
	env := samples.NewEnv()
	var res *lower.Result
	err := stage(req, &out, StageLower, func() (err error) {
		res, err = lower.Lower(ctx, s.Build(env), req.Options)
		return err
	})
	if err == nil {
		err = stage(req, &out, StageRun, func() (err error) {
			out.Outcome, err = drive.Execute(ctx, s, env, res)
			return err
		})
	}
	if err == nil {
		err = stage(req, &out, StageCheck, func() error {
			if err := drive.Check(s, out.Outcome); err != nil {
				return err
			}
			return testkit.CheckMachineInvariants(res)
		})
	}
	out.Err = err

	rec, recErr := report.FromResult(s.Name, res)
	if recErr != nil {
		rec = &report.Record{Name: s.Name}
		out.Err = errors.Join(out.Err, recErr)
	}
	rec.Title = s.Title
	if o := out.Outcome; o != nil {
		rec.SetOutcome(o.Value, o.Err, o.Steps, out.Err)
	} else {
		rec.SetOutcome(nil, nil, 0, out.Err)
	}
	out.Record = rec
	if req.Cache != nil && recErr == nil {
		if err := req.Cache.Put(key, rec); err != nil {
			out.Err = errors.Join(out.Err, fmt.Errorf("cache: %w", err))
		}
	}

	status := StatusDone
	if out.Err != nil {
		status = StatusError
	}
	emit(req.Progress, Event{Sample: s.Name, Stage: StageCheck, Status: status, Err: out.Err, Elapsed: time.Since(began)})
	return out
}

// stage runs fn as one stage of a sample, timing it and emitting progress.
func stage(req *Request, out *Result, st Stage, fn func() error) error {
	emit(req.Progress, Event{Sample: out.Sample.Name, Stage: st, Status: StatusWorking})
	start := time.Now()
	err := fn()
	out.Timings.Set(st, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w", st, err)
	}
	return nil
}

// OptionsKey renders the options that change what lowering produces.
func OptionsKey(o lower.Options) string {
	return fmt.Sprintf("debug=%t optimize=%t verify=%t", o.Debug, !o.Debug && !o.NoOptimize, o.Verify)
}

func emit(sink ProgressSink, evt Event) {
	if sink != nil {
		sink.OnEvent(evt)
	}
}
