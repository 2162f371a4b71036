package analysis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techpress/core/internal/config"
	"github.com/techpress/core/internal/models"
	"github.com/techpress/core/internal/pkg/genai"
)

type fakeGenClient struct {
	generate func(ctx context.Context, req genai.Request) genai.CallResult
	stream   func(ctx context.Context, req genai.Request, onToken func(string)) genai.CallResult
}

func (f *fakeGenClient) Generate(ctx context.Context, req genai.Request) genai.CallResult {
	return f.generate(ctx, req)
}

func (f *fakeGenClient) GenerateStream(ctx context.Context, req genai.Request, onToken func(string)) genai.CallResult {
	return f.stream(ctx, req, onToken)
}

func newTestService(fake *fakeGenClient) *Service {
	ai := config.AIConfig{
		Providers: []config.AIProvider{{ID: "test", Type: "openai", Enabled: true}},
		Retry:     config.RetryConfig{BaseDelayMS: 1, MaxAttempts: 2},
	}
	svc := NewService(ai, NewStore(newFakeDocs(), nil), nil)
	svc.newClient = func(*config.AIProvider) GenerationClient { return fake }
	return svc
}

func qnaRecord(q, a string) string {
	return "```json\n{\"question\": \"" + q + "\", \"answer\": \"" + a + "\"}\n```\n"
}

func TestGenerateQuestionsCapsAndStopsStream(t *testing.T) {
	var sent atomic.Int32
	fake := &fakeGenClient{
		stream: func(ctx context.Context, _ genai.Request, onToken func(string)) genai.CallResult {
			records := []string{
				qnaRecord("q1", "a1"), qnaRecord("q2", "a2"), qnaRecord("q3", "a3"),
				qnaRecord("q4", "a4"), qnaRecord("q5", "a5"), qnaRecord("q6", "a6"),
				qnaRecord("q7", "a7"),
			}
			for _, rec := range records {
				if ctx.Err() != nil {
					return genai.CallResult{Kind: genai.CallCanceled}
				}
				sent.Add(1)
				onToken(rec)
			}
			return genai.CallResult{Kind: genai.CallOK}
		},
	}
	svc := newTestService(fake)

	var received []models.QnAItem
	items, err := svc.GenerateQuestions(context.Background(), "title", "content", func(item models.QnAItem) {
		received = append(received, item)
	})
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Len(t, received, 5)
	assert.Equal(t, "q5", items[4].Question)
	// The sixth record triggers no further reads.
	assert.LessOrEqual(t, sent.Load(), int32(6))
}

func TestGenerateQuestionsDeduplicatesRecords(t *testing.T) {
	fake := &fakeGenClient{
		stream: func(_ context.Context, _ genai.Request, onToken func(string)) genai.CallResult {
			rec := qnaRecord("q1", "a1")
			onToken(rec)
			onToken(rec)
			onToken(qnaRecord("q2", "a2"))
			return genai.CallResult{Kind: genai.CallOK}
		},
	}
	svc := newTestService(fake)

	items, err := svc.GenerateQuestions(context.Background(), "title", "content", nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestGenerateQuestionsNoRecordsIsError(t *testing.T) {
	fake := &fakeGenClient{
		stream: func(_ context.Context, _ genai.Request, onToken func(string)) genai.CallResult {
			onToken("I could not produce structured output, sorry.")
			return genai.CallResult{Kind: genai.CallOK}
		},
	}
	svc := newTestService(fake)

	_, err := svc.GenerateQuestions(context.Background(), "title", "content", nil)
	assert.Error(t, err)
}

func TestGenerateQuestionsRateLimitExhaustion(t *testing.T) {
	calls := 0
	fake := &fakeGenClient{
		stream: func(_ context.Context, _ genai.Request, _ func(string)) genai.CallResult {
			calls++
			return genai.CallResult{Kind: genai.CallRateLimited, Err: errors.New("429")}
		},
	}
	svc := newTestService(fake)

	_, err := svc.GenerateQuestions(context.Background(), "title", "content", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	// Initial call plus two retries.
	assert.Equal(t, 3, calls)
}

func TestMidStreamRateLimitIsNotRetried(t *testing.T) {
	calls := 0
	fake := &fakeGenClient{
		stream: func(_ context.Context, _ genai.Request, onToken func(string)) genai.CallResult {
			calls++
			onToken(qnaRecord("q1", "a1"))
			return genai.CallResult{Kind: genai.CallRateLimited, Err: errors.New("429")}
		},
	}
	svc := newTestService(fake)

	_, err := svc.GenerateQuestions(context.Background(), "title", "content", nil)
	require.Error(t, err)
	// Tokens were already delivered; replaying the stream would duplicate
	// them, so the result degrades to a plain failure.
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, calls)
}

func TestGenerateInsightStreamsTokens(t *testing.T) {
	fake := &fakeGenClient{
		stream: func(_ context.Context, _ genai.Request, onToken func(string)) genai.CallResult {
			onToken("a sharp ")
			onToken("take")
			return genai.CallResult{Kind: genai.CallOK, Text: "a sharp take"}
		},
	}
	svc := newTestService(fake)

	var streamed string
	text, err := svc.GenerateInsight(context.Background(), "title", "text", func(token string) {
		streamed += token
	})
	require.NoError(t, err)
	assert.Equal(t, "a sharp take", text)
	assert.Equal(t, "a sharp take", streamed)
}

func TestGenerateTocParsesFencedJSON(t *testing.T) {
	fake := &fakeGenClient{
		generate: func(_ context.Context, _ genai.Request) genai.CallResult {
			return genai.CallResult{
				Kind: genai.CallOK,
				Text: "```json\n{\"toc\": [\" Introduction \", \"\", \"The Body\"]}\n```",
			}
		},
	}
	svc := newTestService(fake)

	toc, err := svc.GenerateToc(context.Background(), "title", "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"Introduction", "The Body"}, toc)
}

func TestGenerateTocWithoutJSONIsFatal(t *testing.T) {
	calls := 0
	fake := &fakeGenClient{
		generate: func(_ context.Context, _ genai.Request) genai.CallResult {
			calls++
			return genai.CallResult{Kind: genai.CallOK, Text: "no structure here"}
		},
	}
	svc := newTestService(fake)

	_, err := svc.GenerateToc(context.Background(), "title", "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, genai.ErrNoJSON)
	// Malformed output is fatal for the call, never retried.
	assert.Equal(t, 1, calls)
}

func TestGenerateKeywordsSkipsBlankEntries(t *testing.T) {
	fake := &fakeGenClient{
		generate: func(_ context.Context, _ genai.Request) genai.CallResult {
			return genai.CallResult{
				Kind: genai.CallOK,
				Text: `{"keywords": [{"keyword": "goroutine", "description": " lightweight thread "}, {"keyword": "  ", "description": "dropped"}]}`,
			}
		},
	}
	svc := newTestService(fake)

	keywords, err := svc.GenerateKeywords(context.Background(), "title", "text")
	require.NoError(t, err)
	require.Len(t, keywords, 1)
	assert.Equal(t, "goroutine", keywords[0].Keyword)
	assert.Equal(t, "lightweight thread", keywords[0].Description)
}

func TestGenerateSummaryRequiresDependencies(t *testing.T) {
	called := false
	fake := &fakeGenClient{
		stream: func(_ context.Context, _ genai.Request, _ func(string)) genai.CallResult {
			called = true
			return genai.CallResult{Kind: genai.CallOK}
		},
	}
	svc := newTestService(fake)
	ctx := context.Background()

	_, err := svc.GenerateSummary(ctx, "title", "text", nil, []models.KeywordItem{{Keyword: "go"}}, nil)
	assert.Error(t, err)
	_, err = svc.GenerateSummary(ctx, "title", "text", []string{"Intro"}, nil, nil)
	assert.Error(t, err)
	assert.False(t, called)
}

func TestGenerateOnceRetriesRateLimit(t *testing.T) {
	calls := 0
	fake := &fakeGenClient{
		generate: func(_ context.Context, _ genai.Request) genai.CallResult {
			calls++
			if calls <= 2 {
				return genai.CallResult{Kind: genai.CallRateLimited, Err: errors.New("429")}
			}
			return genai.CallResult{Kind: genai.CallOK, Text: `{"toc": ["Intro"]}`}
		},
	}
	svc := newTestService(fake)

	toc, err := svc.GenerateToc(context.Background(), "title", "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"Intro"}, toc)
	assert.Equal(t, 3, calls)
}
