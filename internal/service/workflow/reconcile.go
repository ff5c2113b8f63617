package workflow

import (
	"context"

	models "carelane/internal/domain/models/contract"
	contractSvc "carelane/internal/domain/services/contract"
)

// ApplyEnvelopeStatus merges one asynchronously received envelope
// status (poll result or webhook event) into the document's lifecycle.
// The event stream is unordered and possibly duplicated, so the merge
// is idempotent and never regresses: re-applying a recorded status is a
// no-op, and a status older than the current state is logged and
// ignored. A transition to SIGNED triggers comparison indexing.
func (s *Service) ApplyEnvelopeStatus(ctx context.Context, docID string, status contractSvc.EnvelopeStatus) (*models.Document, error) {
	target, terminal := statusTransition(status)
	if !terminal {
		// created/sent/delivered: the document is already SENT, nothing
		// to record.
		s.logger.Debug("envelope status carries no transition",
			"document_id", docID, "status", status)
		return s.docs.GetByID(ctx, docID)
	}

	doc, err := s.mutate(ctx, docID, func(d *models.Document) error {
		switch {
		case d.State == target:
			// Duplicate delivery of the status we already recorded.
			return errNoChange
		case d.State.IsTerminal():
			// Terminal states never move; covers declined-after-signed
			// and results arriving after an administrative fail.
			s.logger.Info("ignoring envelope status for terminal document",
				"document_id", docID, "state", d.State, "status", status)
			return errNoChange
		case target == models.StateSigned && d.State == models.StateIndexed:
			// Late duplicate of a status we already acted on.
			return errNoChange
		case d.State != models.StateSent:
			// The envelope exists but the SENT transition has not been
			// recorded yet (webhook racing the pipeline). Leave the
			// document alone; the poll sweep re-delivers the status.
			s.logger.Info("ignoring envelope status for document not yet SENT",
				"document_id", docID, "state", d.State, "status", status)
			return errNoChange
		}
		return d.Transition(target)
	})
	if err != nil {
		return nil, err
	}

	if doc.State == target {
		s.logger.Info("envelope status reconciled",
			"document_id", docID, "status", status, "state", doc.State)
	}

	// Completing the signature flow hands the document to the
	// comparison index. Indexing failures leave the document SIGNED;
	// a reindex pass picks it up later.
	if target == models.StateSigned && doc.State == models.StateSigned {
		indexed, err := s.IndexDocument(ctx, docID)
		if err != nil {
			s.logger.Warn("indexing deferred after signature",
				"document_id", docID, "error", err)
			return doc, nil
		}
		return indexed, nil
	}
	return doc, nil
}

// ReconcileEnvelope resolves an envelope id to its document and applies
// the status. Used by the webhook ingress path.
func (s *Service) ReconcileEnvelope(ctx context.Context, envelopeID string, status contractSvc.EnvelopeStatus) (*models.Document, error) {
	doc, err := s.docs.GetByEnvelopeID(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	return s.ApplyEnvelopeStatus(ctx, doc.ID, status)
}

// statusTransition maps an envelope status to the document state it
// implies. Only signed and declined/voided change the document;
// everything else leaves it SENT.
func statusTransition(status contractSvc.EnvelopeStatus) (models.State, bool) {
	switch status {
	case contractSvc.EnvelopeSigned:
		return models.StateSigned, true
	case contractSvc.EnvelopeDeclined, contractSvc.EnvelopeVoided:
		return models.StateDeclined, true
	}
	return "", false
}
