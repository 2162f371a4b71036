package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/techpress/core/internal/models"
	"go.uber.org/zap"
)

// Collection is the fixed collection path for analysis records.
const Collection = "post_analyses"

// DocumentStore is the external document-store collaborator. The mongo
// implementation lives in internal/database; tests use an in-memory fake.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string, out interface{}) (bool, error)
	MergeSet(ctx context.Context, collection, id string, set, setOnInsert map[string]interface{}) error
}

// FieldValue carries the value of exactly one analysis field. Which member is
// meaningful follows from the field: Text for insight/summary, QnA, Toc and
// Keywords for the list fields.
type FieldValue struct {
	Text     string
	QnA      []models.QnAItem
	Toc      []string
	Keywords []models.KeywordItem
}

// GetResult is the tri-state outcome of a store read: success-with-data,
// success-absent, or failure. Callers branch on the flags instead of
// unwrapping errors.
type GetResult struct {
	OK     bool // the read itself succeeded
	Exists bool
	Info   *models.AnalyzedInfo
	Err    error
}

// Store is the persistence façade over the document store for AnalyzedInfo
// records, keyed by document id at the fixed collection path.
type Store struct {
	docs DocumentStore
	log  *zap.Logger
}

func NewStore(docs DocumentStore, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{docs: docs, log: log}
}

// GetAnalyzedInfo performs a single read of the full record.
func (s *Store) GetAnalyzedInfo(ctx context.Context, documentID string) GetResult {
	if strings.TrimSpace(documentID) == "" {
		return GetResult{Err: errors.New("document id is required")}
	}

	var info models.AnalyzedInfo
	found, err := s.docs.Get(ctx, Collection, documentID, &info)
	if err != nil {
		return GetResult{Err: err}
	}
	if !found {
		return GetResult{OK: true}
	}
	return GetResult{OK: true, Exists: true, Info: &info}
}

// CheckFieldExists reports whether the stored record holds a usable value for
// the field, applying the presence rules (non-null, non-empty, non-blank).
// A failed read counts as not-exists; the caller regenerates.
func (s *Store) CheckFieldExists(ctx context.Context, documentID string, field models.Field) (bool, FieldValue) {
	res := s.GetAnalyzedInfo(ctx, documentID)
	if !res.OK || !res.Exists || !res.Info.FieldPresent(field) {
		return false, FieldValue{}
	}

	switch field {
	case models.FieldInsight:
		return true, FieldValue{Text: res.Info.Insight}
	case models.FieldQnA:
		return true, FieldValue{QnA: res.Info.QnA}
	case models.FieldToc:
		return true, FieldValue{Toc: res.Info.Toc}
	case models.FieldKeywords:
		return true, FieldValue{Keywords: res.Info.Keywords}
	case models.FieldSummary:
		return true, FieldValue{Text: res.Info.Summary}
	}
	return false, FieldValue{}
}

// UpdateAnalyzedInfo merge-writes the non-nil patch members. It never
// replaces the whole document, so writing one field cannot clear a sibling.
// updated_at is set on every write; created_at only when the record is first
// created (handled atomically by the upsert, so concurrent first-writes
// cannot disagree). Returns the written document path.
func (s *Store) UpdateAnalyzedInfo(ctx context.Context, documentID string, patch models.AnalyzedInfoPatch) (string, error) {
	if strings.TrimSpace(documentID) == "" {
		return "", errors.New("document id is required")
	}
	if patch.IsEmpty() {
		return "", errors.New("no fields to update")
	}

	set := map[string]interface{}{}
	if patch.Insight != nil {
		if strings.TrimSpace(*patch.Insight) == "" {
			return "", errors.New("insight must be a non-blank string")
		}
		set["insight"] = *patch.Insight
	}
	if patch.QnA != nil {
		if len(patch.QnA) == 0 {
			return "", errors.New("qna must be a non-empty array")
		}
		set["qna"] = patch.QnA
	}
	if patch.Toc != nil {
		if len(patch.Toc) == 0 {
			return "", errors.New("toc must be a non-empty array")
		}
		set["toc"] = patch.Toc
	}
	if patch.Keywords != nil {
		if len(patch.Keywords) == 0 {
			return "", errors.New("programming_keywords must be a non-empty array")
		}
		set["programming_keywords"] = patch.Keywords
	}
	if patch.Summary != nil {
		if strings.TrimSpace(*patch.Summary) == "" {
			return "", errors.New("summary must be a non-blank string")
		}
		set["summary"] = *patch.Summary
	}

	now := time.Now()
	set["updated_at"] = now

	if err := s.docs.MergeSet(ctx, Collection, documentID, set, map[string]interface{}{
		"created_at": now,
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", Collection, documentID), nil
}
