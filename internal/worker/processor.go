package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/abduss/cloudnest/internal/callback"
	"github.com/abduss/cloudnest/internal/config"
	"github.com/abduss/cloudnest/internal/metrics"
	"github.com/abduss/cloudnest/internal/queue"
	"go.uber.org/zap"
)

// State is a step of job handling.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateExtracting State = "EXTRACTING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

const (
	defaultJobTimeout = 5 * time.Minute
	callbackTimeout   = 15 * time.Second
)

// Result summarizes one handled job.
type Result struct {
	State       State
	Variants    []callback.Variant
	Err         error
	CallbackErr error
}

// Processor runs extract, generate and report for each job.
type Processor struct {
	store      blobStore
	extractors map[queue.JobType]Extractor
	generator  *Generator
	reporter   Reporter
	jobTimeout time.Duration
	logger     *zap.Logger
}

// NewProcessor wires a processor with the given extractors.
func NewProcessor(store blobStore, extractors map[queue.JobType]Extractor, reporter Reporter, jobTimeout time.Duration, logger *zap.Logger) *Processor {
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:      store,
		extractors: extractors,
		generator:  NewGenerator(store),
		reporter:   reporter,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// DefaultExtractors builds one extractor per job type from worker configuration.
func DefaultExtractors(cfg config.WorkerConfig) map[queue.JobType]Extractor {
	pdf := PDFExtractor{
		PdftoppmPath: cfg.PdftoppmPath,
		ScratchDir:   cfg.ScratchDir,
		Timeout:      cfg.ToolTimeout,
	}
	return map[queue.JobType]Extractor{
		queue.JobImage: ImageExtractor{},
		queue.JobVideo: VideoExtractor{
			FFmpegPath:  cfg.FFmpegPath,
			FFprobePath: cfg.FFprobePath,
			ScratchDir:  cfg.ScratchDir,
			Timeout:     cfg.ToolTimeout,
		},
		queue.JobPDF: pdf,
		queue.JobDocument: DocumentExtractor{
			SofficePath: cfg.SofficePath,
			ScratchDir:  cfg.ScratchDir,
			Timeout:     cfg.ToolTimeout,
			PDF:         pdf,
		},
	}
}

// Handle processes job and reports the outcome exactly once.
func (p *Processor) Handle(ctx context.Context, job queue.Job) Result {
	start := time.Now()
	topic, _ := queue.TopicFor(job.JobType)
	log := p.logger.With(
		zap.String("file_id", job.FileID),
		zap.String("job_type", string(job.JobType)),
		zap.String("topic", topic),
		zap.String("storage_key", job.StorageKey),
	)
	log.Debug("job received", zap.String("state", string(StateReceived)))

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	res := Result{State: StateExtracting}
	variants, err := p.process(jobCtx, job)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		log.Warn("job failed", zap.Error(err))
	} else {
		res.State = StateSucceeded
		res.Variants = variants
	}

	update := callback.UpdateRequest{
		Version:  callback.Version,
		FileID:   job.FileID,
		Status:   callback.StatusCompleted,
		Variants: res.Variants,
	}
	if res.State == StateFailed {
		update.Status = callback.StatusFailed
		update.Variants = []callback.Variant{}
	}

	// The job deadline may already be spent; the report gets its own.
	reportCtx, reportCancel := context.WithTimeout(context.WithoutCancel(ctx), callbackTimeout)
	defer reportCancel()
	if err := p.reporter.Report(reportCtx, update); err != nil {
		res.CallbackErr = err
		metrics.CallbackFailures.Inc()
		log.Error("callback failed, dropping job", zap.Error(err))
	}

	outcome := "succeeded"
	if res.State == StateFailed {
		outcome = "failed"
	}
	metrics.JobsProcessed.WithLabelValues(string(job.JobType), outcome).Inc()
	metrics.JobDuration.WithLabelValues(string(job.JobType)).Observe(time.Since(start).Seconds())
	log.Info("job handled",
		zap.String("state", string(res.State)),
		zap.Int("variants", len(update.Variants)),
		zap.Duration("duration", time.Since(start)),
	)
	return res
}

func (p *Processor) process(ctx context.Context, job queue.Job) ([]callback.Variant, error) {
	extractor, ok := p.extractors[job.JobType]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrProcessing, ErrNoExtractor, job.JobType)
	}

	source, err := p.store.Get(ctx, job.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	defer source.Close()

	img, err := extractor.Extract(ctx, job, source)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	return p.generator.Generate(ctx, job.StorageKey, img)
}
