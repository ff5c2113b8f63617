package workflow

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"carelane/internal/domain"
	models "carelane/internal/domain/models/contract"
)

// errNoChange signals from a mutate callback that the document is
// already in the desired state; the write is skipped.
var errNoChange = errors.New("no state change")

// errStaleStage signals that another actor moved the document past the
// stage the caller computed results for; the results are discarded.
var errStaleStage = errors.New("stage result is stale")

// mutate runs a bounded optimistic-concurrency read-modify-write loop:
// read the document, apply fn, write conditionally on the read version.
// A version conflict means a concurrent writer won; re-read and retry
// up to the configured bound, then surface ConcurrentUpdateError.
func (s *Service) mutate(ctx context.Context, id string, fn func(*models.Document) error) (*models.Document, error) {
	attempts := s.cfg.ConflictMaxAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		doc, err := s.docs.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := fn(doc); err != nil {
			if errors.Is(err, errNoChange) || errors.Is(err, errStaleStage) {
				if errors.Is(err, errStaleStage) {
					s.logger.Info("discarding stale stage result",
						"document_id", id, "current_state", doc.State)
				}
				return doc, nil
			}
			return nil, err
		}

		err = s.docs.Update(ctx, doc)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		s.logger.Debug("version conflict, retrying update",
			"document_id", id, "attempt", attempt)
	}
	return nil, &domain.ConcurrentUpdateError{DocumentID: id, Attempts: attempts}
}

// retry runs fn with exponential backoff and jitter. Input errors
// (caller's fault) and context cancellation abort immediately; any
// other error is treated as transient. Exhaustion returns
// RetriesExhaustedError wrapping the last cause.
func (s *Service) retry(ctx context.Context, op string, attempts int, fn func(context.Context) error) error {
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		last = err

		if attempt == attempts {
			break
		}
		delay := s.backoff(attempt)
		s.logger.Debug("transient failure, backing off",
			"operation", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &domain.RetriesExhaustedError{Operation: op, Attempts: attempts, Cause: last}
}

// backoff computes base * 2^(attempt-1) capped at the maximum, plus up
// to 50% jitter to spread retry storms.
func (s *Service) backoff(attempt int) time.Duration {
	delay := s.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.RetryMaxDelay {
			delay = s.cfg.RetryMaxDelay
			break
		}
	}
	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}
