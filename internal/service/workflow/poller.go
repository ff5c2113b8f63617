package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	models "carelane/internal/domain/models/contract"
)

// Poller periodically sweeps documents awaiting signature and
// reconciles their envelope status. Poll calls run with bounded
// concurrency so a large SENT backlog cannot overwhelm the signature
// provider. Transient poll failures leave the document untouched; the
// next sweep retries.
type Poller struct {
	svc         *Service
	interval    time.Duration
	concurrency int
	batchSize   int
	logger      *slog.Logger
}

// NewPoller creates a status poller.
func NewPoller(svc *Service, interval time.Duration, concurrency, batchSize int, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Poller{
		svc:         svc,
		interval:    interval,
		concurrency: concurrency,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Run sweeps until the context is cancelled. Blocking; callers start it
// in its own goroutine.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("status poller started",
		"interval", p.interval,
		"concurrency", p.concurrency,
	)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("status poller stopped")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep runs one poll pass over documents in SENT state.
func (p *Poller) Sweep(ctx context.Context) {
	docs, err := p.svc.docs.ListByState(ctx, models.StateSent, p.batchSize)
	if err != nil {
		p.logger.Error("poll sweep could not list documents", "error", err)
		return
	}
	if len(docs) == 0 {
		return
	}
	p.logger.Debug("polling envelope status", "documents", len(docs))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for i := range docs {
		doc := docs[i]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.pollOne(ctx, &doc)
		}()
	}
	wg.Wait()
}

func (p *Poller) pollOne(ctx context.Context, doc *models.Document) {
	status, err := p.svc.signatures.EnvelopeStatus(ctx, doc.EnvelopeID)
	if err != nil {
		// Transient by policy: SENT stays SENT, the next sweep retries.
		p.logger.Debug("envelope status poll failed",
			"document_id", doc.ID, "envelope_id", doc.EnvelopeID, "error", err)
		return
	}

	if _, err := p.svc.ApplyEnvelopeStatus(ctx, doc.ID, status); err != nil {
		p.logger.Warn("could not reconcile polled status",
			"document_id", doc.ID, "status", status, "error", err)
	}
}
