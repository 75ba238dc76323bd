package assist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kuitang/notelytic/internal/obs"
)

var (
	// ErrGenerationInFlight is returned by Start while a request is pending.
	ErrGenerationInFlight = errors.New("a generation is already in progress")

	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTimeout is recorded when the generation deadline passes.
	ErrTimeout = errors.New("generation timed out")
)

// State is the lifecycle of the latest generation request.
type State string

const (
	StateIdle      State = "idle"
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Status describes the latest request. Failed and cancelled are transient:
// they last until the next Start.
type Status struct {
	State      State     `json:"state"`
	Seq        uint64    `json:"seq"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`

	// Err is the failure cause, for classification by callers.
	Err error `json:"-"`
}

// ApplyFunc receives the generated text. Returning an error marks the
// request failed.
type ApplyFunc func(text string) error

// Coordinator runs at most one generation at a time for one editor session.
//
// Lock order: Coordinator.mu is held while ApplyFunc runs, so callers must
// not call Coordinator methods while holding a lock that ApplyFunc takes.
type Coordinator struct {
	gen     Generator
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

// NewCoordinator returns a coordinator. timeout bounds each request.
func NewCoordinator(gen Generator, timeout time.Duration) *Coordinator {
	return &Coordinator{
		gen:     gen,
		timeout: timeout,
		now:     time.Now,
		status:  Status{State: StateIdle},
	}
}

// Start launches a generation and returns its sequence number without
// waiting. parent carries correlation values only; the request outlives it.
func (c *Coordinator) Start(parent context.Context, prompt string, apply ApplyFunc) (uint64, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return 0, ErrEmptyPrompt
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.State == StatePending {
		return 0, ErrGenerationInFlight
	}

	ctx := context.WithoutCancel(parent)
	var cancel context.CancelFunc
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeoutCause(ctx, c.timeout, ErrTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	c.seq++
	seq := c.seq
	c.cancel = cancel
	c.done = make(chan struct{})
	c.status = Status{State: StatePending, Seq: seq, StartedAt: c.now()}

	obs.From(parent).Info("generation_started", "seq", seq, "prompt_chars", utf8.RuneCountInString(prompt))
	go c.run(ctx, seq, prompt, apply, c.done)
	return seq, nil
}

func (c *Coordinator) run(ctx context.Context, seq uint64, prompt string, apply ApplyFunc, done chan struct{}) {
	defer close(done)
	logger := obs.From(ctx).With("seq", seq)

	text, err := c.gen.Generate(ctx, prompt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq || c.status.State != StatePending {
		logger.Info("generation_result_discarded", "state", string(c.status.State))
		return
	}
	c.cancel()
	c.cancel = nil

	if err == nil {
		err = apply(text)
	} else if cause := context.Cause(ctx); errors.Is(cause, ErrTimeout) {
		err = ErrTimeout
	}

	c.status.FinishedAt = c.now()
	if err != nil {
		c.status.State = StateFailed
		c.status.Err = err
		c.status.Error = err.Error()
		logger.Warn("generation_failed", "error", err)
		return
	}
	c.status.State = StateSucceeded
	logger.Info("generation_applied", "text_chars", utf8.RuneCountInString(text))
}

// Cancel aborts the pending request. It reports whether one was pending and
// is safe to call any number of times.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.State != StatePending {
		return false
	}
	c.cancel()
	c.cancel = nil
	c.status.State = StateCancelled
	c.status.FinishedAt = c.now()
	return true
}

// Status returns the latest request status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Wait blocks until the latest request's goroutine has exited or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FormatGenerated prepares provider text for the rich-text content: blank-line
// paragraph breaks become empty paragraphs.
func FormatGenerated(text string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), "\n\n", "<p></p>")
}

// AppendGenerated joins generated text to existing content. A result longer
// than maxChars runes is cut to maxChars and marked with "...".
func AppendGenerated(content, text string, maxChars int) string {
	out := content + "\n\n" + FormatGenerated(text)
	if maxChars > 0 && utf8.RuneCountInString(out) > maxChars {
		out = string([]rune(out)[:maxChars]) + "..."
	}
	return out
}
