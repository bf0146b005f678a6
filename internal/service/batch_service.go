package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geomark-lab/geomark-api/internal/config"
	"github.com/geomark-lab/geomark-api/internal/dto"
	"github.com/geomark-lab/geomark-api/internal/grading"
	"github.com/geomark-lab/geomark-api/internal/models"
	"github.com/geomark-lab/geomark-api/pkg/ai"
)

// ErrBatchNotFound indicates the batch handle is unknown.
var ErrBatchNotFound = errors.New("batch not found")

// ErrProviderUnavailable indicates the requested grading backend is not configured.
var ErrProviderUnavailable = errors.New("grading backend unavailable")

// BatchService exposes grading batch operations.
type BatchService interface {
	StartBatch(ctx context.Context, payload dto.StartBatchRequest) (dto.StartBatchResponse, error)
	Pause(id string) error
	Resume(id string) error
	Cancel(id string) error
	RetryFailed(id string) error
	PollEvents(id string) ([]models.Event, error)
	Summary(id string) (dto.BatchSummaryResponse, error)
	Results(id string) ([]models.GradingResult, error)
	Shutdown()
}

type batchEntry struct {
	engine *grading.Engine
	cancel context.CancelFunc
}

type batchService struct {
	graders   map[string]ai.Grader
	retriever grading.ContextRetriever
	validator *validator.Validate
	cfg       config.Config
	logger    zerolog.Logger

	mu      sync.RWMutex
	batches map[string]*batchEntry

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewBatchService constructs the batch registry. The retriever may be nil
// when no embedding backend is configured; batches then grade without
// reference context.
func NewBatchService(graders map[string]ai.Grader, retriever grading.ContextRetriever, validate *validator.Validate, cfg config.Config, logger zerolog.Logger) BatchService {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &batchService{
		graders:    graders,
		retriever:  retriever,
		validator:  validate,
		cfg:        cfg,
		logger:     logger.With().Str("component", "batch_service").Logger(),
		batches:    make(map[string]*batchEntry),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// StartBatch validates the payload, builds a grading engine and launches its
// worker goroutine. The returned handle identifies the batch for all
// subsequent control and polling calls.
func (s *batchService) StartBatch(ctx context.Context, payload dto.StartBatchRequest) (dto.StartBatchResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StartBatchResponse{}, err
	}

	students, err := payload.ToStudents()
	if err != nil {
		return dto.StartBatchResponse{}, err
	}

	rubric, err := payload.ToRubric()
	if err != nil {
		return dto.StartBatchResponse{}, err
	}

	corpus, err := payload.ToCorpus()
	if err != nil {
		return dto.StartBatchResponse{}, err
	}

	provider := payload.Provider
	if provider == "" {
		provider = s.cfg.AIProvider
	}
	grader, ok := s.graders[provider]
	if !ok || grader == nil {
		return dto.StartBatchResponse{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}

	engine := grading.NewEngine(students, rubric, corpus, grader, s.retriever,
		grading.NewResponseValidator(s.cfg.MinFeedbackLength),
		grading.EngineConfig{
			MaxRetries:      s.cfg.MaxRetries,
			RetryBaseDelay:  s.cfg.RetryBaseDelay,
			TopKRetrieval:   s.cfg.TopKRetrieval,
			RAGTimeout:      s.cfg.RAGTimeout,
			EventBufferSize: s.cfg.EventBufferSize,
		}, s.logger)

	id := uuid.NewString()
	workerCtx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.batches[id] = &batchEntry{engine: engine, cancel: cancel}
	s.mu.Unlock()

	go engine.Run(workerCtx)

	s.logger.Info().
		Str("batch_id", id).
		Int("students", len(students)).
		Int("references", len(corpus)).
		Str("provider", provider).
		Msg("batch started")

	return dto.StartBatchResponse{BatchID: id}, nil
}

func (s *batchService) Pause(id string) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}
	return entry.engine.Pause()
}

func (s *batchService) Resume(id string) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}
	return entry.engine.Resume()
}

func (s *batchService) Cancel(id string) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}
	entry.engine.Cancel()
	return nil
}

// RetryFailed re-runs grading for the batch's failed students on a fresh
// worker goroutine. Completed students are untouched.
func (s *batchService) RetryFailed(id string) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}

	switch entry.engine.State() {
	case models.BatchRunning, models.BatchPaused:
		return grading.ErrBatchStillRunning
	}

	workerCtx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	entry.cancel = cancel
	s.mu.Unlock()

	go func() {
		if err := entry.engine.RetryFailed(workerCtx); err != nil {
			s.logger.Warn().Err(err).Str("batch_id", id).Msg("retry of failed students not started")
		}
	}()
	return nil
}

func (s *batchService) PollEvents(id string) ([]models.Event, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return entry.engine.Poll(), nil
}

func (s *batchService) Summary(id string) (dto.BatchSummaryResponse, error) {
	entry, err := s.entry(id)
	if err != nil {
		return dto.BatchSummaryResponse{}, err
	}
	return dto.NewBatchSummaryResponse(id, entry.engine.Progress(), entry.engine.Snapshots()), nil
}

func (s *batchService) Results(id string) ([]models.GradingResult, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return entry.engine.Results(), nil
}

// Shutdown cancels every running batch worker.
func (s *batchService) Shutdown() {
	s.baseCancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.batches {
		entry.engine.Cancel()
	}
}

func (s *batchService) entry(id string) (*batchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return entry, nil
}
