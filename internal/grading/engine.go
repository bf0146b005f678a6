package grading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/geomark-lab/geomark-api/internal/models"
	"github.com/geomark-lab/geomark-api/internal/observability"
	"github.com/geomark-lab/geomark-api/pkg/ai"
)

// Engine state errors surfaced to control callers.
var (
	ErrBatchAlreadyRunning = errors.New("batch is already running")
	ErrBatchNotRunning     = errors.New("batch is not running")
	ErrBatchStillRunning   = errors.New("batch is still running")
	ErrNoFailedStudents    = errors.New("no failed students to retry")
)

// Maximum single backoff sleep; the growth factor doubles the base delay per
// attempt but individual sleeps never exceed this.
const maxRetryDelay = 30 * time.Second

// ContextRetriever supplies reference passages for one student answer. It
// must never fail; an empty slice means grading proceeds without context.
type ContextRetriever interface {
	Retrieve(ctx context.Context, corpus []models.ReferenceDocument, answer string, topK int) []string
}

// EngineConfig bounds the engine's retry and retrieval behavior.
type EngineConfig struct {
	MaxRetries      int
	RetryBaseDelay  time.Duration
	TopKRetrieval   int
	RAGTimeout      time.Duration
	EventBufferSize int
}

// Engine grades one batch of students strictly sequentially on a single
// worker goroutine. Students are processed in input order — never two at
// once — to respect backend rate limits and keep peak memory flat (one
// retrieval index alive at a time). All state the consumer sees leaves the
// engine as immutable snapshots on bounded channels; the worker's mutable
// state is never shared directly.
type Engine struct {
	students  []models.Student
	rubric    models.Rubric
	corpus    []models.ReferenceDocument
	grader    ai.Grader
	retriever ContextRetriever
	prompts   *PromptBuilder
	validator *ResponseValidator
	cfg       EngineConfig
	logger    zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	state     models.BatchState
	paused    bool
	cancelled bool
	errored   bool
	cancelCh  chan struct{}
	statuses  []studentStatus
	current   int
	startedAt time.Time
	durations []time.Duration

	// events carries student and terminal events in FIFO order; progressSlot
	// holds only the latest progress snapshot (older snapshots are
	// overwritten, terminal events never are).
	events       chan models.Event
	progressSlot chan models.Event
}

type studentStatus struct {
	state      models.StudentState
	attempts   int
	startedAt  time.Time
	finishedAt time.Time
	errMessage string
	result     *models.GradingResult
}

// NewEngine assembles an engine for one batch. The student list, rubric and
// corpus are treated as immutable from here on.
func NewEngine(students []models.Student, rubric models.Rubric, corpus []models.ReferenceDocument, grader ai.Grader, retriever ContextRetriever, validator *ResponseValidator, cfg EngineConfig, logger zerolog.Logger) *Engine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.TopKRetrieval <= 0 {
		cfg.TopKRetrieval = 3
	}
	if cfg.RAGTimeout <= 0 {
		cfg.RAGTimeout = 60 * time.Second
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 256
	}

	e := &Engine{
		students:     students,
		rubric:       rubric,
		corpus:       corpus,
		grader:       grader,
		retriever:    retriever,
		prompts:      NewPromptBuilder(),
		validator:    validator,
		cfg:          cfg,
		logger:       logger.With().Str("component", "grading_engine").Logger(),
		state:        models.BatchNotStarted,
		cancelCh:     make(chan struct{}),
		statuses:     make([]studentStatus, len(students)),
		events:       make(chan models.Event, cfg.EventBufferSize),
		progressSlot: make(chan models.Event, 1),
	}
	e.cond = sync.NewCond(&e.mu)
	for i := range e.statuses {
		e.statuses[i].state = models.StudentNotStarted
	}
	return e
}

// Run executes the batch loop. It is meant to be launched on a dedicated
// goroutine; all blocking (retrieval, gateway calls, backoff sleeps) happens
// here and never on a consumer.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	if e.state == models.BatchRunning || e.state == models.BatchPaused {
		e.mu.Unlock()
		return
	}
	e.state = models.BatchRunning
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.runStudents(ctx, e.allIndices())
	e.finish()
}

// RetryFailed re-runs the grading loop for students currently in FAILED
// state, leaving completed students untouched. The batch must not be running.
func (e *Engine) RetryFailed(ctx context.Context) error {
	e.mu.Lock()
	if e.state == models.BatchRunning || e.state == models.BatchPaused {
		e.mu.Unlock()
		return ErrBatchStillRunning
	}

	var indices []int
	for i := range e.statuses {
		if e.statuses[i].state == models.StudentFailed {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		e.mu.Unlock()
		return ErrNoFailedStudents
	}

	for _, i := range indices {
		e.statuses[i] = studentStatus{state: models.StudentNotStarted}
	}
	e.state = models.BatchRunning
	if e.cancelled {
		e.cancelled = false
		e.cancelCh = make(chan struct{})
	}
	e.errored = false
	e.paused = false
	e.mu.Unlock()

	e.logger.Info().Int("students", len(indices)).Msg("retrying failed students")
	e.runStudents(ctx, indices)
	e.finish()
	return nil
}

// Pause blocks advancement to the next student without aborting in-flight
// work. Cooperative: the current student finishes its step first.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != models.BatchRunning {
		return ErrBatchNotRunning
	}
	e.paused = true
	e.state = models.BatchPaused
	return nil
}

// Resume lifts a pause.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused {
		return ErrBatchNotRunning
	}
	e.paused = false
	if e.state == models.BatchPaused {
		e.state = models.BatchRunning
	}
	e.cond.Broadcast()
	return nil
}

// Cancel requests cooperative cancellation. The check happens between
// students; an in-flight gateway call finishes or times out naturally, and
// no student is left IN_PROGRESS once the batch reports cancelled.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cancelled {
		e.cancelled = true
		close(e.cancelCh)
	}
	e.paused = false
	e.cond.Broadcast()
}

// Poll drains pending events without blocking: queued student/terminal
// events first, then the latest progress snapshot if one is pending.
func (e *Engine) Poll() []models.Event {
	var out []models.Event
	for {
		select {
		case ev := <-e.events:
			out = append(out, ev)
		default:
			select {
			case ev := <-e.progressSlot:
				out = append(out, ev)
			default:
			}
			return out
		}
	}
}

// State reports the engine's batch state.
func (e *Engine) State() models.BatchState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Progress builds a fresh progress snapshot.
func (e *Engine) Progress() models.BatchProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked()
}

// Snapshots returns immutable per-student status views in input order.
func (e *Engine) Snapshots() []models.StudentSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.StudentSnapshot, len(e.statuses))
	for i := range e.statuses {
		out[i] = e.snapshotLocked(i)
	}
	return out
}

// Results returns all grading results produced so far, in input order.
func (e *Engine) Results() []models.GradingResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.GradingResult
	for i := range e.statuses {
		if e.statuses[i].result != nil {
			out = append(out, *e.statuses[i].result)
		}
	}
	return out
}

func (e *Engine) allIndices() []int {
	indices := make([]int, len(e.students))
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func (e *Engine) runStudents(ctx context.Context, indices []int) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("grading worker panic: %v", r)
			e.logger.Error().Err(err).Msg("batch aborted")
			e.abort(err.Error())
		}
	}()

	if e.grader == nil {
		e.abort("no grading backend configured")
		return
	}

	for _, idx := range indices {
		if ctx.Err() != nil {
			e.Cancel()
		}
		if !e.gate() {
			e.logger.Info().Msg("batch cancelled before next student")
			return
		}

		e.mu.Lock()
		e.current = idx
		e.mu.Unlock()

		e.gradeStudent(ctx, idx)

		e.publishProgress()
		e.publishStudentCompleted(idx)
		e.logger.Info().Int("index", idx).Str("student", e.students[idx].Name).Msg("student finished")
	}
}

// gate blocks while the batch is paused and reports whether processing may
// continue. It returns false once cancellation was requested.
func (e *Engine) gate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.paused && !e.cancelled {
		e.cond.Wait()
	}
	return !e.cancelled
}

func (e *Engine) gradeStudent(ctx context.Context, idx int) {
	student := e.students[idx]

	e.mu.Lock()
	e.statuses[idx].state = models.StudentInProgress
	e.statuses[idx].startedAt = time.Now()
	e.mu.Unlock()
	e.publishProgress()

	started := time.Now()

	// Image answers skip retrieval entirely; a retrieval failure is never
	// fatal to the student — it degrades to empty context.
	var references []string
	if !student.HasImageAnswer() && len(e.corpus) > 0 && e.retriever != nil {
		references = e.retrieveWithBudget(ctx, student.Answer)
	}

	req := e.buildRequest(student, references)

	result, errMessage := e.attemptLoop(ctx, idx, student, req, started)

	e.mu.Lock()
	e.statuses[idx].finishedAt = time.Now()
	e.statuses[idx].result = &result
	if errMessage == "" {
		e.statuses[idx].state = models.StudentCompleted
	} else {
		e.statuses[idx].state = models.StudentFailed
		e.statuses[idx].errMessage = errMessage
	}
	e.durations = append(e.durations, result.GradingDuration)
	e.mu.Unlock()

	observability.StudentGraded(errMessage == "", result.GradingDuration)
}

// attemptLoop runs the gateway-call/validate cycle with exponential backoff
// until success, a terminal error, cancellation, or an exhausted attempt
// budget. It always returns a result — a degraded zero-score one when
// grading failed.
func (e *Engine) attemptLoop(ctx context.Context, idx int, student models.Student, req ai.GradeRequest, started time.Time) (models.GradingResult, string) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		e.mu.Lock()
		e.statuses[idx].attempts = attempt + 1
		e.mu.Unlock()

		raw, err := e.grader.Grade(ctx, req)
		if err == nil {
			parsed, vErr := e.validator.Validate(raw, e.rubric)
			if vErr == nil {
				result, buildErr := e.buildResult(student, parsed, time.Since(started))
				if buildErr == nil {
					return result, ""
				}
				err = buildErr
			} else {
				err = vErr
			}
		}
		lastErr = err

		if !retryable(err) {
			e.logger.Error().Err(err).Str("student", student.Name).Msg("terminal grading error")
			break
		}

		if attempt >= e.cfg.MaxRetries {
			e.logger.Error().Err(err).Str("student", student.Name).Int("attempts", attempt+1).Msg("retries exhausted")
			break
		}

		e.mu.Lock()
		e.statuses[idx].state = models.StudentRetrying
		e.mu.Unlock()
		e.publishProgress()
		observability.RetryRecorded()

		e.logger.Warn().Err(err).Str("student", student.Name).Int("attempt", attempt+1).Msg("grading attempt failed, backing off")
		if !e.backoff(ctx, attempt) {
			lastErr = fmt.Errorf("cancelled during retry backoff: %w", err)
			break
		}

		e.mu.Lock()
		e.statuses[idx].state = models.StudentInProgress
		e.mu.Unlock()
	}

	diagnostic := "grading failed"
	if lastErr != nil {
		diagnostic = lastErr.Error()
	}
	return models.NewErrorResult(student, e.rubric, diagnostic, time.Since(started)), diagnostic
}

// retrieveWithBudget wraps retrieval in a wall-clock budget owned by the
// engine, so control returns here even if an internal retrieval step hangs.
func (e *Engine) retrieveWithBudget(ctx context.Context, answer string) []string {
	ragCtx, cancel := context.WithTimeout(ctx, e.cfg.RAGTimeout)
	defer cancel()

	done := make(chan []string, 1)
	go func() {
		done <- e.retriever.Retrieve(ragCtx, e.corpus, answer, e.cfg.TopKRetrieval)
	}()

	select {
	case passages := <-done:
		return passages
	case <-ragCtx.Done():
		e.logger.Warn().Dur("budget", e.cfg.RAGTimeout).Msg("retrieval budget exceeded, grading without context")
		return nil
	}
}

func (e *Engine) buildRequest(student models.Student, references []string) ai.GradeRequest {
	if student.HasImageAnswer() {
		return ai.GradeRequest{
			Prompt:    e.prompts.BuildImage(e.rubric),
			ImageData: student.ImageData,
			ImageMIME: student.ImageMIME,
		}
	}
	return ai.GradeRequest{Prompt: e.prompts.BuildText(e.rubric, student.Answer, references)}
}

func (e *Engine) buildResult(student models.Student, parsed ParsedScores, duration time.Duration) (models.GradingResult, error) {
	scores := make([]models.ElementScore, 0, len(e.rubric.Elements))
	for _, element := range e.rubric.Elements {
		scores = append(scores, models.ElementScore{
			ElementName: element.Name,
			Score:       parsed.Scores[element.Name],
			MaxScore:    element.MaxScore,
			Feedback:    parsed.Reasoning[element.Name],
			Reasoning:   parsed.Reasoning[element.Name],
		})
	}
	return models.NewGradingResult(student, scores, parsed.Feedback, duration)
}

// backoff sleeps base * 2^attempt (capped) and reports whether processing
// should continue; it wakes early on cancellation.
func (e *Engine) backoff(ctx context.Context, attempt int) bool {
	delay := e.cfg.RetryBaseDelay << uint(attempt)
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	e.mu.Lock()
	cancelCh := e.cancelCh
	e.mu.Unlock()

	select {
	case <-timer.C:
		return e.gate()
	case <-ctx.Done():
		e.Cancel()
		return false
	case <-cancelCh:
		return false
	}
}

// retryable reports whether an error should consume another attempt.
// Rate limits, network timeouts, unreadable responses and validation
// rejections are retryable; authentication and unknown backend errors are
// terminal for the student's attempt chain.
func retryable(err error) bool {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	return errors.Is(err, ai.ErrRateLimited) ||
		errors.Is(err, ai.ErrTimeout) ||
		errors.Is(err, ai.ErrMalformedResponse)
}

// abort marks the batch as failed by a system error — something that would
// fail every subsequent student identically — and emits BatchError.
func (e *Engine) abort(message string) {
	e.mu.Lock()
	e.errored = true
	if !e.cancelled {
		e.cancelled = true
		close(e.cancelCh)
	}
	e.mu.Unlock()

	e.publishEvent(models.Event{Kind: models.EventBatchError, Timestamp: time.Now().UTC(), Error: message})
}

func (e *Engine) finish() {
	e.mu.Lock()
	if e.cancelled {
		e.state = models.BatchCancelled
	} else {
		e.state = models.BatchCompleted
	}
	// Leave no student stuck mid-flight after cancellation.
	for i := range e.statuses {
		if e.statuses[i].state == models.StudentInProgress || e.statuses[i].state == models.StudentRetrying {
			e.statuses[i].state = models.StudentNotStarted
		}
	}
	errored := e.errored
	progress := e.progressLocked()
	e.mu.Unlock()

	e.publishProgress()
	if errored {
		return
	}

	e.publishEvent(models.Event{
		Kind:      models.EventBatchCompleted,
		Timestamp: time.Now().UTC(),
		Progress:  &progress,
	})
	e.logger.Info().
		Int("completed", progress.CompletedStudents).
		Int("failed", progress.FailedStudents).
		Str("state", string(progress.State)).
		Msg("batch finished")
}

func (e *Engine) progressLocked() models.BatchProgress {
	progress := models.BatchProgress{
		TotalStudents:       len(e.students),
		CurrentStudentIndex: e.current,
		State:               e.state,
		StartedAt:           e.startedAt,
	}
	if e.current >= 0 && e.current < len(e.students) {
		progress.CurrentStudentName = e.students[e.current].Name
	}

	for i := range e.statuses {
		switch e.statuses[i].state {
		case models.StudentCompleted:
			progress.CompletedStudents++
		case models.StudentFailed:
			progress.FailedStudents++
		}
	}

	if len(e.durations) > 0 {
		var total time.Duration
		for _, d := range e.durations {
			total += d
		}
		progress.AverageDuration = total / time.Duration(len(e.durations))
		progress.EstimatedRemaining = progress.AverageDuration * time.Duration(progress.RemainingStudents())
	}

	return progress
}

func (e *Engine) snapshotLocked(idx int) models.StudentSnapshot {
	status := e.statuses[idx]
	student := e.students[idx]
	snapshot := models.StudentSnapshot{
		Index:        idx,
		StudentName:  student.Name,
		ClassNumber:  student.ClassNumber,
		State:        status.state,
		AttemptCount: status.attempts,
		StartedAt:    status.startedAt,
		FinishedAt:   status.finishedAt,
		ErrorMessage: status.errMessage,
	}
	if status.result != nil {
		clone := *status.result
		snapshot.Result = &clone
	}
	return snapshot
}

// publishProgress conflates: only the most recent progress snapshot is kept
// for a slow consumer. Terminal and student events are never conflated.
func (e *Engine) publishProgress() {
	e.mu.Lock()
	progress := e.progressLocked()
	e.mu.Unlock()

	ev := models.Event{Kind: models.EventProgress, Timestamp: time.Now().UTC(), Progress: &progress}
	for {
		select {
		case e.progressSlot <- ev:
			return
		default:
			select {
			case <-e.progressSlot:
			default:
			}
		}
	}
}

func (e *Engine) publishStudentCompleted(idx int) {
	e.mu.Lock()
	snapshot := e.snapshotLocked(idx)
	e.mu.Unlock()

	e.publishEvent(models.Event{
		Kind:      models.EventStudentCompleted,
		Timestamp: time.Now().UTC(),
		Student:   &snapshot,
	})
}

// publishEvent enqueues without ever blocking indefinitely: when the buffer
// is full the oldest queued event is dropped to make room. Terminal events
// are produced last, so they always land.
func (e *Engine) publishEvent(ev models.Event) {
	for {
		select {
		case e.events <- ev:
			return
		default:
			select {
			case dropped := <-e.events:
				e.logger.Warn().Str("kind", string(dropped.Kind)).Msg("event buffer full, dropping oldest event")
			default:
			}
		}
	}
}
