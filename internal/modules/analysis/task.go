package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/techpress/core/internal/models"
	"github.com/techpress/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

// TaskTypeDocument is the task type for whole-document analysis.
const TaskTypeDocument = "analysis:document"

// DocumentPayload is the task payload for whole-document analysis.
type DocumentPayload struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// TaskRunner executes whole-document analysis through the orchestrator,
// optionally behind the redis task queue for deduped background runs.
type TaskRunner struct {
	svc   *Service
	tasks *taskqueue.Service
	log   *zap.Logger
}

func NewTaskRunner(svc *Service, tasks *taskqueue.Service, log *zap.Logger) *TaskRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskRunner{svc: svc, tasks: tasks, log: log}
}

// Enqueue creates a deduped analysis task (one live task per document) and
// starts executing it in the background when freshly created.
func (r *TaskRunner) Enqueue(ctx context.Context, payload DocumentPayload) (*taskqueue.Task, error) {
	if strings.TrimSpace(payload.DocumentID) == "" {
		return nil, errors.New("documentId is required")
	}
	if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Text) == "" {
		return nil, errors.New("title and text are required")
	}

	task, err := r.tasks.Enqueue(ctx, TaskTypeDocument, payload, payload.DocumentID, payload.DocumentID)
	if err != nil {
		return nil, err
	}
	if task.Status == taskqueue.TaskPending {
		go r.execute(context.WithoutCancel(ctx), task.ID, payload)
	}
	return task, nil
}

func (r *TaskRunner) execute(ctx context.Context, taskID string, payload DocumentPayload) {
	if err := r.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, ""); err != nil {
		r.log.Warn("failed to mark analysis task running", zap.String("task_id", taskID), zap.Error(err))
	}

	info, statuses := r.RunDocument(ctx, payload)

	failedAll := true
	fields := map[string]string{}
	for f, st := range statuses {
		fields[string(f)] = string(st)
		if st == models.StatusCompleted {
			failedAll = false
		}
	}

	result := map[string]interface{}{"fields": fields, "data": info}
	if failedAll {
		r.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, result, "all fields failed")
		return
	}
	r.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, result, "")
}

// RunDocument drives one orchestration session to completion: missing fields
// generate concurrently, summary waits for its two dependencies, and every
// generated value is persisted exactly once by the session. Returns the
// accumulated record and each field's terminal status.
func (r *TaskRunner) RunDocument(ctx context.Context, payload DocumentPayload) (models.AnalyzedInfo, map[models.Field]models.FieldStatus) {
	var (
		wg      sync.WaitGroup
		session *Session
	)

	dispatcher := DispatchFunc(func(ctx context.Context, field models.Field) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session.HandleFieldResult(ctx, field, r.generateField(ctx, field, payload, session))
		}()
	})

	session = NewSession(payload.DocumentID, r.svc.store, dispatcher, r.log)
	session.Initialize(ctx)
	session.DispatchEligible(ctx)
	wg.Wait()

	statuses := make(map[models.Field]models.FieldStatus, len(models.AllFields))
	for _, f := range models.AllFields {
		statuses[f] = session.Status(f)
	}
	return session.Snapshot(), statuses
}

func (r *TaskRunner) generateField(ctx context.Context, field models.Field, payload DocumentPayload, session *Session) FieldOutcome {
	switch field {
	case models.FieldInsight:
		text, err := r.svc.GenerateInsight(ctx, payload.Title, payload.Text, nil)
		if err != nil {
			return FieldOutcome{Kind: OutcomeFailure, Reason: err.Error()}
		}
		return FieldOutcome{Kind: OutcomeGenerated, Value: FieldValue{Text: text}}

	case models.FieldQnA:
		records, err := r.svc.GenerateQuestions(ctx, payload.Title, payload.Text, nil)
		if err != nil {
			return FieldOutcome{Kind: OutcomeFailure, Reason: err.Error()}
		}
		return FieldOutcome{Kind: OutcomeGenerated, Value: FieldValue{QnA: records}}

	case models.FieldToc:
		toc, err := r.svc.GenerateToc(ctx, payload.Title, payload.Text)
		if err != nil {
			return FieldOutcome{Kind: OutcomeFailure, Reason: err.Error()}
		}
		return FieldOutcome{Kind: OutcomeGenerated, Value: FieldValue{Toc: toc}}

	case models.FieldKeywords:
		keywords, err := r.svc.GenerateKeywords(ctx, payload.Title, payload.Text)
		if err != nil {
			return FieldOutcome{Kind: OutcomeFailure, Reason: err.Error()}
		}
		return FieldOutcome{Kind: OutcomeGenerated, Value: FieldValue{Keywords: keywords}}

	case models.FieldSummary:
		snap := session.Snapshot()
		summary, err := r.svc.GenerateSummary(ctx, payload.Title, payload.Text, snap.Toc, snap.Keywords, nil)
		if err != nil {
			return FieldOutcome{Kind: OutcomeFailure, Reason: err.Error()}
		}
		return FieldOutcome{Kind: OutcomeGenerated, Value: FieldValue{Text: summary}}
	}
	return FieldOutcome{Kind: OutcomeFailure, Reason: "unknown field"}
}
