package analysis

import (
	"context"
	"sync"

	"github.com/techpress/core/internal/models"
	"go.uber.org/zap"
)

// OutcomeKind tags how a field's value was obtained.
type OutcomeKind int

const (
	// OutcomeExisting means the store already held the value; no write needed.
	OutcomeExisting OutcomeKind = iota
	// OutcomeGenerated means the value was freshly produced and must be
	// persisted exactly once.
	OutcomeGenerated
	// OutcomeFailure means generation failed; the field keeps no value.
	OutcomeFailure
)

// FieldOutcome is the terminal result of one field's generation attempt.
type FieldOutcome struct {
	Kind   OutcomeKind
	Value  FieldValue
	Reason string // set on failure
}

// Dispatcher launches generation for one field. Implementations are expected
// to do the work asynchronously and report back via HandleFieldResult.
type Dispatcher interface {
	Dispatch(ctx context.Context, field models.Field)
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, field models.Field)

func (f DispatchFunc) Dispatch(ctx context.Context, field models.Field) { f(ctx, field) }

// Session coordinates the five analysis fields for one document: it decides
// which fields need generation, dispatches exactly the right work, and keeps
// per-field status consistent. Statuses live only for the session; they are
// never persisted.
type Session struct {
	documentID string
	store      *Store
	dispatcher Dispatcher
	log        *zap.Logger

	mu          sync.Mutex
	status      map[models.Field]models.FieldStatus
	info        models.AnalyzedInfo
	initialized bool
}

// NewSession creates a session for one document. Initialize must run before
// any dispatch decision.
func NewSession(documentID string, store *Store, dispatcher Dispatcher, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	status := make(map[models.Field]models.FieldStatus, len(models.AllFields))
	for _, f := range models.AllFields {
		status[f] = models.StatusPending
	}
	return &Session{
		documentID: documentID,
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		status:     status,
	}
}

// Initialize reads the persisted record once and marks present fields as
// completed. A failed read leaves every field pending (fail-open: the system
// still generates missing content rather than blocking) and is logged as
// non-fatal. Dispatch is gated on this having run, so a fresh generation can
// never race an existing persisted value.
func (s *Session) Initialize(ctx context.Context) {
	res := s.store.GetAnalyzedInfo(ctx, s.documentID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !res.OK {
		s.log.Warn("initial analysis read failed, treating all fields as pending",
			zap.String("document_id", s.documentID),
			zap.Error(res.Err),
		)
		s.initialized = true
		return
	}

	if res.Exists {
		s.info = *res.Info
		for _, f := range models.AllFields {
			if res.Info.FieldPresent(f) {
				s.status[f] = models.StatusCompleted
			}
		}
	}
	s.initialized = true
}

// DispatchEligible dispatches generation for every field that needs it. The
// four independent fields go out immediately; summary waits for toc and
// programming_keywords to complete. Status flips to loading before the
// dispatcher is invoked, so a second call cannot double-dispatch.
func (s *Session) DispatchEligible(ctx context.Context) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}

	var toDispatch []models.Field
	for _, f := range models.IndependentFields {
		if s.status[f] == models.StatusPending {
			s.status[f] = models.StatusLoading
			toDispatch = append(toDispatch, f)
		}
	}
	if s.status[models.FieldSummary] == models.StatusPending &&
		s.status[models.FieldToc] == models.StatusCompleted &&
		s.status[models.FieldKeywords] == models.StatusCompleted {
		s.status[models.FieldSummary] = models.StatusLoading
		toDispatch = append(toDispatch, models.FieldSummary)
	}
	s.mu.Unlock()

	// The dispatcher may call back into the session synchronously; never hold
	// the lock across it.
	for _, f := range toDispatch {
		s.dispatcher.Dispatch(ctx, f)
	}
}

// HandleFieldResult records a field's terminal outcome. A generated value is
// merge-written exactly once; the write is fire-and-forget in the sense that
// its failure does not revert the completed status (generation succeeded,
// only durability failed) and is logged rather than surfaced. Completion
// re-checks eligibility so summary fires as soon as both dependencies land.
func (s *Session) HandleFieldResult(ctx context.Context, field models.Field, outcome FieldOutcome) {
	s.mu.Lock()
	needsWrite := false
	switch outcome.Kind {
	case OutcomeExisting:
		s.setValueLocked(field, outcome.Value)
		s.status[field] = models.StatusCompleted
	case OutcomeGenerated:
		s.setValueLocked(field, outcome.Value)
		s.status[field] = models.StatusCompleted
		needsWrite = true
	case OutcomeFailure:
		s.status[field] = models.StatusError
		s.log.Warn("field generation failed",
			zap.String("document_id", s.documentID),
			zap.String("field", string(field)),
			zap.String("reason", outcome.Reason),
		)
	}
	s.mu.Unlock()

	if needsWrite {
		if _, err := s.store.UpdateAnalyzedInfo(ctx, s.documentID, patchFor(field, outcome.Value)); err != nil {
			s.log.Warn("failed to persist generated field, keeping in-memory value",
				zap.String("document_id", s.documentID),
				zap.String("field", string(field)),
				zap.Error(err),
			)
		}
	}

	if outcome.Kind != OutcomeFailure {
		s.DispatchEligible(ctx)
	}
}

// Status returns the current status of one field.
func (s *Session) Status(field models.Field) models.FieldStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[field]
}

// Snapshot returns a copy of the in-memory accumulated record.
func (s *Session) Snapshot() models.AnalyzedInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Done reports whether every field reached a terminal status. A summary stuck
// pending behind a failed dependency also counts as terminal, since its
// dependencies can no longer complete within this session.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range models.AllFields {
		switch s.status[f] {
		case models.StatusCompleted, models.StatusError:
			continue
		case models.StatusPending:
			if f == models.FieldSummary && s.dependencyFailedLocked() {
				continue
			}
			return false
		default:
			return false
		}
	}
	return true
}

func (s *Session) dependencyFailedLocked() bool {
	return s.status[models.FieldToc] == models.StatusError ||
		s.status[models.FieldKeywords] == models.StatusError
}

func (s *Session) setValueLocked(field models.Field, v FieldValue) {
	switch field {
	case models.FieldInsight:
		s.info.Insight = v.Text
	case models.FieldQnA:
		s.info.QnA = v.QnA
	case models.FieldToc:
		s.info.Toc = v.Toc
	case models.FieldKeywords:
		s.info.Keywords = v.Keywords
	case models.FieldSummary:
		s.info.Summary = v.Text
	}
}

func patchFor(field models.Field, v FieldValue) models.AnalyzedInfoPatch {
	switch field {
	case models.FieldInsight:
		return models.AnalyzedInfoPatch{Insight: &v.Text}
	case models.FieldQnA:
		return models.AnalyzedInfoPatch{QnA: v.QnA}
	case models.FieldToc:
		return models.AnalyzedInfoPatch{Toc: v.Toc}
	case models.FieldKeywords:
		return models.AnalyzedInfoPatch{Keywords: v.Keywords}
	case models.FieldSummary:
		return models.AnalyzedInfoPatch{Summary: &v.Text}
	}
	return models.AnalyzedInfoPatch{}
}
