// Package sandbox runs untrusted JavaScript submissions in isolated goja runtimes.
//
// Every submission gets a fresh runtime holding only the ECMAScript builtins and a
// capturing console: there is no require, no module loader, no timers and no host
// object, so candidate code cannot reach the filesystem, the network or the
// process environment. Wall clock limits are enforced per call and per submission
// by interrupting the runtime.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/roundy-world/lesson-server/internal/infrastructure/metrics"
	"golang.org/x/sync/semaphore"
)

// ErrUnavailable no isolate could be allocated in time, callers may retry later
var ErrUnavailable = errors.New("sandbox unavailable")

var errTimeout = errors.New("time limit exceeded")

var errTooLarge = errors.New("el valor devuelto es demasiado grande")

// SourceName file name reported in diagnostics
const SourceName = "solucion.js"

// Options limits applied to every submission
type Options struct {
	CallTimeout       time.Duration // single entry point invocation
	SubmissionTimeout time.Duration // whole submission, top level code included
	MaxConcurrent     int64         // live isolates
	AcquireTimeout    time.Duration // wait for a free isolate
	MaxCallStack      int
	MaxConsoleLines   int
}

// DefaultOptions returns the limits used when none are configured
func DefaultOptions() Options {
	return Options{
		CallTimeout:       time.Second,
		SubmissionTimeout: 5 * time.Second,
		MaxConcurrent:     32,
		AcquireTimeout:    2 * time.Second,
		MaxCallStack:      1024,
		MaxConsoleLines:   50,
	}
}

// Submission candidate source and the argument lists to call its entry point with
type Submission struct {
	Source     string
	EntryPoint string
	Cases      [][]interface{}
}

// Call outcome of one entry point invocation
type Call struct {
	Index    int
	Value    interface{} // exported return value, Undefined when nothing was returned
	Error    string      // message of the thrown value, empty when the call returned
	TimedOut bool
	Duration time.Duration
}

// Result outcome of a whole submission. Calls holds one entry per attempted case,
// cases after a timeout are not attempted.
type Result struct {
	CompileError      string
	MissingEntryPoint bool
	TimedOut          bool
	Calls             []*Call
	Console           []string
	Duration          time.Duration
}

// Runner admits submissions into isolates
type Runner struct {
	opts    Options
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
}

// NewRunner create a Runner, m may be nil
func NewRunner(opts Options, m *metrics.Metrics) *Runner {
	def := DefaultOptions()
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if opts.SubmissionTimeout <= 0 {
		opts.SubmissionTimeout = def.SubmissionTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = def.MaxConcurrent
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = def.AcquireTimeout
	}
	if opts.MaxCallStack <= 0 {
		opts.MaxCallStack = def.MaxCallStack
	}
	if opts.MaxConsoleLines < 0 {
		opts.MaxConsoleLines = 0
	}
	return &Runner{
		opts:    opts,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		metrics: m,
	}
}

// Options limits the runner was built with
func (r *Runner) Options() Options {
	return r.opts
}

// Run executes sub in a fresh isolate. Compile errors, a missing entry point,
// thrown errors and timeouts are reported in Result; the only error returned is
// ErrUnavailable (wrapped) when no isolate could be allocated.
//
// ctx bounds the wait for an isolate only, a running submission is always
// driven to completion or to its time limit.
func (r *Runner) Run(ctx context.Context, sub *Submission) (*Result, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.opts.AcquireTimeout)
	defer cancel()
	if err := r.sem.Acquire(acquireCtx, 1); err != nil {
		if r.metrics != nil {
			r.metrics.SandboxRejections.Inc()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer r.sem.Release(1)

	if r.metrics != nil {
		r.metrics.SandboxInFlight.Inc()
		defer r.metrics.SandboxInFlight.Dec()
	}
	return newIsolate(r.opts).run(sub), nil
}

type isolate struct {
	vm       *goja.Runtime
	opts     Options
	parse    goja.Callable
	console  *console
	deadline time.Time
}

func newIsolate(opts Options) *isolate {
	vm := goja.New()
	vm.SetMaxCallStackSize(opts.MaxCallStack)

	iso := &isolate{
		vm:      vm,
		opts:    opts,
		console: newConsole(opts.MaxConsoleLines),
	}
	iso.console.install(vm)
	// captured before candidate code runs, so redefining JSON.parse cannot
	// change how test inputs are built
	iso.parse, _ = goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	return iso
}

func (iso *isolate) run(sub *Submission) *Result {
	start := time.Now()
	iso.deadline = start.Add(iso.opts.SubmissionTimeout)
	res := new(Result)
	defer func() {
		res.Console = iso.console.lines
		res.Duration = time.Since(start)
	}()

	program, err := goja.Compile(SourceName, sub.Source, false)
	if err != nil {
		res.CompileError = firstLine(err.Error())
		return res
	}

	out := iso.guard(func() (interface{}, error) {
		_, err := iso.vm.RunProgram(program)
		return nil, err
	})
	if out.timedOut {
		res.TimedOut = true
		return res
	}
	if out.err != "" {
		res.CompileError = out.err
		return res
	}

	out = iso.guard(func() (interface{}, error) {
		if fn := iso.resolve(sub.EntryPoint); fn != nil {
			return fn, nil
		}
		return nil, nil
	})
	if out.timedOut {
		res.TimedOut = true
		return res
	}
	fn, ok := out.value.(goja.Callable)
	if !ok {
		res.MissingEntryPoint = true
		return res
	}

	for i, args := range sub.Cases {
		args := args
		startCall := time.Now()
		out := iso.guard(func() (interface{}, error) {
			jsArgs, err := iso.arguments(args)
			if err != nil {
				return nil, err
			}
			v, err := fn(goja.Undefined(), jsArgs...)
			if err != nil {
				return nil, err
			}
			value := export(v)
			if !WithinLimits(value) {
				return nil, errTooLarge
			}
			return value, nil
		})
		res.Calls = append(res.Calls, &Call{
			Index:    i,
			Value:    out.value,
			Error:    out.err,
			TimedOut: out.timedOut,
			Duration: time.Since(startCall),
		})
		if out.timedOut {
			res.TimedOut = true
			break
		}
	}
	return res
}

// resolve looks the entry point up as a global property first, then as a global
// lexical binding (const/let), nil when it is absent or not callable
func (iso *isolate) resolve(name string) goja.Callable {
	if v := iso.vm.Get(name); v != nil {
		fn, _ := goja.AssertFunction(v)
		return fn
	}
	v, err := iso.vm.RunString(name)
	if err != nil {
		return nil
	}
	fn, _ := goja.AssertFunction(v)
	return fn
}

// arguments builds native values inside the isolate, so the candidate never
// holds a reference to host memory
func (iso *isolate) arguments(args []interface{}) ([]goja.Value, error) {
	values := make([]goja.Value, len(args))
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		v, err := iso.parse(goja.Undefined(), iso.vm.ToValue(string(raw)))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

type outcome struct {
	value    interface{}
	err      string
	timedOut bool
}

const (
	stateRunning int32 = iota
	stateDone
	stateInterrupted
)

// guard runs fn with the isolate interrupted at the earlier of the call timeout
// and the submission deadline. Anything that may execute candidate code,
// including exporting values and describing errors, must run inside fn.
func (iso *isolate) guard(fn func() (interface{}, error)) (out outcome) {
	limit := iso.opts.CallTimeout
	if remaining := time.Until(iso.deadline); remaining < limit {
		limit = remaining
	}
	if limit <= 0 {
		return outcome{timedOut: true}
	}

	state := stateRunning
	timer := time.AfterFunc(limit, func() {
		if atomic.CompareAndSwapInt32(&state, stateRunning, stateInterrupted) {
			iso.vm.Interrupt(errTimeout)
		}
	})
	defer timer.Stop()
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: "error interno al ejecutar la solución"}
		}
		if !atomic.CompareAndSwapInt32(&state, stateRunning, stateDone) {
			out = outcome{timedOut: true}
		}
	}()

	v, err := fn()
	if err != nil {
		return outcome{err: describe(err)}
	}
	return outcome{value: v}
}

func export(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) {
		return Undefined
	}
	return v.Export()
}

// describe turns an execution error into a one line message without stack trace
func describe(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if v := ex.Value(); v != nil {
			return firstLine(v.String())
		}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return errTimeout.Error()
	}
	msg := firstLine(err.Error())
	if i := strings.Index(msg, " at "); i > 0 {
		msg = msg[:i]
	}
	return msg
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
