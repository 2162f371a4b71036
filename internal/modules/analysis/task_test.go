package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techpress/core/internal/models"
	"github.com/techpress/core/internal/pkg/genai"
)

// The single-shot fake answers both toc and keywords prompts; each caller
// unmarshals only the key it asked for.
func pipelineFake() *fakeGenClient {
	return &fakeGenClient{
		generate: func(_ context.Context, _ genai.Request) genai.CallResult {
			return genai.CallResult{
				Kind: genai.CallOK,
				Text: `{"toc": ["Intro"], "keywords": [{"keyword": "go", "description": "a language"}]}`,
			}
		},
		stream: func(_ context.Context, _ genai.Request, onToken func(string)) genai.CallResult {
			onToken(qnaRecord("q1", "a1"))
			return genai.CallResult{Kind: genai.CallOK, Text: "generated text"}
		},
	}
}

func newTestRunner(docs *fakeDocs, fake *fakeGenClient) *TaskRunner {
	svc := newTestService(fake)
	svc.store = NewStore(docs, nil)
	return NewTaskRunner(svc, nil, nil)
}

func TestRunDocumentGeneratesEverything(t *testing.T) {
	docs := newFakeDocs()
	runner := newTestRunner(docs, pipelineFake())

	info, statuses := runner.RunDocument(context.Background(), DocumentPayload{
		DocumentID: "doc1", Title: "t", Text: "x",
	})

	for _, f := range models.AllFields {
		assert.Equal(t, models.StatusCompleted, statuses[f], "field %s", f)
	}
	assert.Equal(t, "generated text", info.Insight)
	assert.Equal(t, "generated text", info.Summary)
	assert.Equal(t, []string{"Intro"}, info.Toc)
	require.Len(t, info.QnA, 1)
	require.Len(t, info.Keywords, 1)

	// One merge-write per generated field.
	assert.Equal(t, len(models.AllFields), docs.mergeCount())
}

func TestRunDocumentSkipsStoredFields(t *testing.T) {
	docs := newFakeDocs()
	docs.records["doc1"] = models.AnalyzedInfo{
		Insight: "stored take",
		QnA:     []models.QnAItem{{Question: "q", Answer: "a"}},
	}
	runner := newTestRunner(docs, pipelineFake())

	info, statuses := runner.RunDocument(context.Background(), DocumentPayload{
		DocumentID: "doc1", Title: "t", Text: "x",
	})

	for _, f := range models.AllFields {
		assert.Equal(t, models.StatusCompleted, statuses[f], "field %s", f)
	}
	// Stored values survive untouched; only toc, keywords and summary write.
	assert.Equal(t, "stored take", info.Insight)
	assert.Equal(t, 3, docs.mergeCount())
}

func TestRunDocumentSummaryStrandedByFailedDependency(t *testing.T) {
	docs := newFakeDocs()
	fake := pipelineFake()
	fake.generate = func(_ context.Context, req genai.Request) genai.CallResult {
		return genai.CallResult{Kind: genai.CallFailed, Err: errors.New("provider down")}
	}
	runner := newTestRunner(docs, fake)

	_, statuses := runner.RunDocument(context.Background(), DocumentPayload{
		DocumentID: "doc1", Title: "t", Text: "x",
	})

	assert.Equal(t, models.StatusError, statuses[models.FieldToc])
	assert.Equal(t, models.StatusError, statuses[models.FieldKeywords])
	assert.Equal(t, models.StatusPending, statuses[models.FieldSummary])
	assert.Equal(t, models.StatusCompleted, statuses[models.FieldInsight])
}

func TestEnqueueValidatesPayload(t *testing.T) {
	runner := newTestRunner(newFakeDocs(), pipelineFake())

	_, err := runner.Enqueue(context.Background(), DocumentPayload{Title: "t", Text: "x"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "documentId"))

	_, err = runner.Enqueue(context.Background(), DocumentPayload{DocumentID: "doc1"})
	require.Error(t, err)
}
