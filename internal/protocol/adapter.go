package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/lacquerai/sentiment/internal/utils"
	"github.com/rs/zerolog/log"
)

// ReadySentinel is written once the model service has loaded.
const ReadySentinel = "READY"

// State is a line protocol adapter state.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateProcessing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Classifier is the model service as seen by the adapter.
type Classifier interface {
	Classify(ctx context.Context, text string) (*sentiment.Classification, error)
}

// Initializer loads the model service. It is called exactly once per Run.
type Initializer func(ctx context.Context) (Classifier, error)

// Option configures an Adapter
type Option func(*Adapter)

// WithTimeout bounds each Classify call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithRecorder reports lifecycle events to r
func WithRecorder(r Recorder) Option {
	return func(a *Adapter) {
		if r != nil {
			a.recorder = r
		}
	}
}

// Adapter owns the read-classify-write loop over a pair of streams.
// Lines are handled strictly one at a time in arrival order.
type Adapter struct {
	in       *bufio.Reader
	out      *LineWriter
	timeout  time.Duration
	recorder Recorder
	state    atomic.Int32
	handled  atomic.Int64
}

// New creates an adapter reading requests from in and writing records to out.
func New(in io.Reader, out io.Writer, opts ...Option) *Adapter {
	a := &Adapter{
		in:       bufio.NewReader(in),
		out:      NewLineWriter(out),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current state. Safe to call from any goroutine.
func (a *Adapter) State() State {
	return State(a.state.Load())
}

// Handled returns the number of non-blank lines answered so far.
func (a *Adapter) Handled() int64 {
	return a.handled.Load()
}

func (a *Adapter) setState(s State) {
	a.state.Store(int32(s))
	a.recorder.StateChanged(s)
}

// Run initializes the model service and serves until the input is closed.
//
// If init fails, a single error record is written, READY is never written
// and the *sentiment.InitError is returned. A nil return means the input
// reached EOF.
func (a *Adapter) Run(ctx context.Context, init Initializer) error {
	a.setState(StateStarting)

	clf, err := init(ctx)
	if err == nil && clf == nil {
		err = errors.New("model service returned no handle")
	}
	if err != nil {
		var initErr *sentiment.InitError
		if !errors.As(err, &initErr) {
			initErr = &sentiment.InitError{Err: err}
		}

		log.Error().Err(initErr).Msg("Model service failed to initialize")

		a.setState(StateTerminated)
		if werr := a.out.WriteJSON(sentiment.Failure(initErr)); werr != nil {
			return errors.Join(initErr, werr)
		}
		return initErr
	}

	a.setState(StateReady)
	if err := a.out.WriteLine(ReadySentinel); err != nil {
		a.setState(StateTerminated)
		return err
	}

	return a.serve(ctx, clf)
}

func (a *Adapter) serve(ctx context.Context, clf Classifier) error {
	defer a.setState(StateTerminated)

	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := a.in.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("failed to read request: %w", readErr)
		}

		if line != "" {
			if err := a.handleLine(ctx, clf, lineNo, line); err != nil {
				return err
			}
		}

		if readErr != nil {
			log.Debug().Int64("handled", a.Handled()).Msg("Input closed")
			return nil
		}
	}
}

func (a *Adapter) handleLine(ctx context.Context, clf Classifier, lineNo int, line string) error {
	text := strings.TrimSpace(strings.ToValidUTF8(line, "\uFFFD"))
	if text == "" {
		a.recorder.Observe(OutcomeBlank, 0)
		return nil
	}

	a.setState(StateProcessing)
	start := time.Now()
	resp := a.classify(ctx, clf, text)
	duration := time.Since(start)

	outcome := OutcomeSuccess
	if resp.IsError() {
		outcome = OutcomeError
		log.Warn().
			Int("line", lineNo).
			Str("error", resp.Error).
			Str("text", utils.Truncate(text, 60)).
			Msg("Classification failed")
	} else {
		log.Debug().
			Int("line", lineNo).
			Int("score", int(*resp.Score)).
			Float64("confidence", *resp.Confidence).
			Dur("duration", duration).
			Msg("Classified line")
	}
	a.recorder.Observe(outcome, duration)

	if err := a.out.WriteJSON(resp); err != nil {
		return err
	}
	a.handled.Add(1)
	a.setState(StateReady)

	return nil
}

func (a *Adapter) classify(ctx context.Context, clf Classifier, text string) sentiment.Response {
	return Classify(ctx, clf, text, a.timeout)
}

// Classify runs clf on text and evaluates the result. It never panics and
// never returns an error: every failure becomes an error record. A positive
// timeout bounds the call.
func Classify(ctx context.Context, clf Classifier, text string, timeout time.Duration) (resp sentiment.Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = sentiment.Failure(&sentiment.ClassifyError{Err: fmt.Errorf("classifier panicked: %v", r)})
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c, err := clf.Classify(ctx, text)
	if err != nil {
		if timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("inference timed out after %s", timeout)
		}
		return sentiment.Failure(sentiment.AsClassifyError(err))
	}
	if c == nil {
		return sentiment.Failure(&sentiment.ClassifyError{Err: errors.New("classifier returned no result")})
	}

	return sentiment.Evaluate(*c)
}
