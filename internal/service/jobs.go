package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/form4-tracker/internal/database"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/syncer"
)

// DetachedJobTimeout bounds a job run in the background without Kafka
const DetachedJobTimeout = 5 * time.Minute

// JobService creates and runs asynchronous sync jobs. With a publisher, new
// jobs are announced on Kafka and a consumer calls Run; without one they run
// in a background goroutine.
type JobService struct {
	repo         JobRepository
	transactions TransactionRepository
	engine       TransactionSource
	lookup       TickerLookup
	publisher    EventPublisher

	wg sync.WaitGroup
}

// NewJobService creates a new JobService. publisher may be nil.
func NewJobService(repo JobRepository, transactions TransactionRepository, engine TransactionSource, lookup TickerLookup, publisher EventPublisher) *JobService {
	return &JobService{
		repo:         repo,
		transactions: transactions,
		engine:       engine,
		lookup:       lookup,
		publisher:    publisher,
	}
}

// Create validates and queues a sync job for ticker
func (s *JobService) Create(ctx context.Context, userID, ticker string, params models.SyncJobParams) (*models.SyncJob, error) {
	if params.Count == 0 {
		params.Count = DefaultCompanyCount
	}
	if err := validateCount(params.Count, MaxCompanyCount); err != nil {
		return nil, err
	}
	if err := validateDays(params.Days); err != nil {
		return nil, err
	}

	info, err := s.lookup.LookupTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	job := &models.SyncJob{
		UserID:  userID,
		JobType: models.JobTypeSync,
		Status:  models.JobStatusQueued,
		Ticker:  info.Ticker,
		Params:  params,
	}
	if err := s.repo.CreateJob(job); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		err := s.publisher.PublishJobQueued(ctx, job)
		if err == nil {
			return job, nil
		}
		log.Printf("Failed to publish job %s, running it in process: %v", job.ID, err)
	}

	s.runDetached(job.ID)
	return job, nil
}

// Get returns a job by ID
func (s *JobService) Get(_ context.Context, id string) (*models.SyncJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	return s.repo.GetJob(id)
}

// Run executes a queued job. A job that is no longer queued has already been
// picked up and is skipped, so duplicate deliveries are harmless.
func (s *JobService) Run(ctx context.Context, jobID string) error {
	claimed, err := s.repo.MarkJobProcessing(jobID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("Job %s is not queued, skipping", jobID)
		return nil
	}

	job, err := s.repo.GetJob(jobID)
	if err != nil {
		return s.fail(jobID, fmt.Errorf("failed to load job: %w", err))
	}

	result, err := s.engine.GetTransactions(ctx, syncer.Request{
		Subject:     job.Ticker,
		WindowDays:  job.Params.Days,
		Target:      job.Params.Count,
		HidePlanned: job.Params.HidePlanned,
	})
	if err != nil {
		return s.fail(jobID, fmt.Errorf("sync failed: %w", err))
	}

	if err := s.repo.UpdateJobProgress(jobID, 70, "storing transactions"); err != nil {
		log.Printf("Failed to update progress for job %s: %v", jobID, err)
	}

	stored := 0
	if s.transactions != nil && len(result.Transactions) > 0 {
		stored, err = s.transactions.CreateTransactions(result.Transactions)
		if err != nil {
			return s.fail(jobID, err)
		}
	}

	summary := models.SyncJobResult{
		Transactions:    len(result.Transactions),
		NewTransactions: result.NewCount,
		Stored:          stored,
		Mode:            result.Mode,
		FailedFilings:   result.FailedFilings,
	}
	message := fmt.Sprintf("%d transactions (%d new) via %s sync", summary.Transactions, summary.NewTransactions, summary.Mode)
	if err := s.repo.CompleteJob(jobID, summary, message); err != nil {
		return err
	}
	log.Printf("Completed job %s for %s: %s", jobID, job.Ticker, message)

	if s.publisher != nil {
		if err := s.publisher.PublishSyncCompleted(ctx, jobID, job.Ticker, summary); err != nil {
			log.Printf("Failed to publish sync completed for job %s: %v", jobID, err)
		}
	}
	return nil
}

// Wait blocks until every background job has finished
func (s *JobService) Wait() {
	s.wg.Wait()
}

func (s *JobService) runDetached(jobID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), DetachedJobTimeout)
		defer cancel()
		if err := s.Run(ctx, jobID); err != nil {
			log.Printf("Job %s failed: %v", jobID, err)
		}
	}()
}

func (s *JobService) fail(jobID string, cause error) error {
	if err := s.repo.FailJob(jobID, cause.Error()); err != nil {
		log.Printf("Failed to mark job %s failed: %v", jobID, err)
	}
	return cause
}
