package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/techpress/core/internal/config"
	"github.com/techpress/core/internal/models"
	"github.com/techpress/core/internal/pkg/genai"
	"github.com/techpress/core/internal/pkg/streamdec"
	"go.uber.org/zap"
)

// ErrRateLimited is surfaced after the backoff policy is exhausted. It is
// distinguishable from generic failure so callers can show "try again later".
var ErrRateLimited = errors.New("generation provider rate limited, try again later")

// errStopped marks a deliberately abandoned stream (caller cancellation).
var errStopped = errors.New("generation stopped")

// GenerationClient is the slice of the genai client the service needs;
// tests substitute a scripted fake.
type GenerationClient interface {
	Generate(ctx context.Context, req genai.Request) genai.CallResult
	GenerateStream(ctx context.Context, req genai.Request, onToken func(string)) genai.CallResult
}

// Service produces analysis field values by orchestrating provider calls.
type Service struct {
	ai     config.AIConfig
	store  *Store
	log    *zap.Logger
	policy genai.RetryPolicy

	// newClient builds a client for a resolved provider; injectable for tests.
	newClient func(p *config.AIProvider) GenerationClient
}

func NewService(ai config.AIConfig, store *Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		ai:     ai,
		store:  store,
		log:    log,
		policy: genai.PolicyFromConfig(ai.Retry),
	}
	s.newClient = func(p *config.AIProvider) GenerationClient {
		return genai.NewClient(p, ai.Generation, log)
	}
	return s
}

// Store exposes the persistence façade the service writes through.
func (s *Service) Store() *Store { return s.store }

// GenerateInsight streams a short narrative insight, invoking onToken per
// fragment, and returns the full text.
func (s *Service) GenerateInsight(ctx context.Context, title, text string, onToken func(string)) (string, error) {
	system, prompt := buildInsightPrompt(title, text)
	return s.streamText(ctx, s.ai.InsightModel, system, prompt, onToken)
}

// GenerateSummary streams a sectioned markdown summary. Toc and keywords are
// required inputs; the dependency edge is enforced here as well as in the
// orchestrator, so no caller path can reach the provider without them.
func (s *Service) GenerateSummary(ctx context.Context, title, text string, toc []string, keywords []models.KeywordItem, onToken func(string)) (string, error) {
	if len(toc) == 0 || len(keywords) == 0 {
		return "", errors.New("summary requires toc and programming keywords")
	}
	system, prompt := buildSummaryPrompt(title, text, toc, keywords)
	return s.streamText(ctx, s.ai.SummaryModel, system, prompt, onToken)
}

// GenerateQuestions streams interview Q&A pairs, invoking onRecord for each
// complete pair as it becomes identifiable. The stream read stops early once
// the record cap is reached; no further provider data is consumed.
func (s *Service) GenerateQuestions(ctx context.Context, title, content string, onRecord func(models.QnAItem)) ([]models.QnAItem, error) {
	provider := s.ai.SelectProvider(s.ai.QnAModel)
	if provider == nil {
		return nil, errors.New("no enabled AI provider")
	}

	system, prompt := buildQuestionsPrompt(title, content)
	dec := streamdec.New(parseQnARecord, maxQnARecords, s.log)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var collected []models.QnAItem
	client := s.newClient(provider)
	emitted := false
	res := genai.WithRetry(streamCtx, s.policy, func(callCtx context.Context) genai.CallResult {
		r := client.GenerateStream(callCtx, genai.Request{System: system, Prompt: prompt}, func(token string) {
			emitted = true
			for _, rec := range dec.Feed(token) {
				collected = append(collected, rec)
				if onRecord != nil {
					onRecord(rec)
				}
			}
			if dec.Done() {
				cancel()
			}
		})
		if r.Kind == genai.CallRateLimited && emitted {
			// A half-delivered stream cannot be replayed transparently.
			return genai.CallResult{Kind: genai.CallFailed, Err: r.Err}
		}
		return r
	})

	switch res.Kind {
	case genai.CallOK:
		if len(collected) == 0 {
			return nil, errors.New("no question/answer records in AI response")
		}
		return collected, nil
	case genai.CallCanceled:
		if dec.Done() {
			// Cap reached; the early stop is ours, not the caller's.
			return collected, nil
		}
		return collected, errStopped
	case genai.CallRateLimited:
		return collected, fmt.Errorf("%w: %v", ErrRateLimited, res.Err)
	default:
		return collected, res.Err
	}
}

// GenerateToc performs a single-shot call returning the ordered section
// titles. A response without a parseable JSON object is fatal for the call.
func (s *Service) GenerateToc(ctx context.Context, title, text string) ([]string, error) {
	system, prompt := buildTocPrompt(title, text)
	raw, err := s.generateOnce(ctx, s.ai.TocModel, system, prompt)
	if err != nil {
		return nil, err
	}

	var out struct {
		Toc []string `json:"toc"`
	}
	if err := genai.UnmarshalJSONResponse(raw, &out); err != nil {
		return nil, err
	}
	toc := make([]string, 0, len(out.Toc))
	for _, entry := range out.Toc {
		if strings.TrimSpace(entry) != "" {
			toc = append(toc, strings.TrimSpace(entry))
		}
	}
	if len(toc) == 0 {
		return nil, errors.New("toc is empty in AI response")
	}
	return toc, nil
}

// GenerateKeywords performs a single-shot call returning the keyword glossary.
func (s *Service) GenerateKeywords(ctx context.Context, title, text string) ([]models.KeywordItem, error) {
	system, prompt := buildKeywordsPrompt(title, text)
	raw, err := s.generateOnce(ctx, s.ai.KeywordsModel, system, prompt)
	if err != nil {
		return nil, err
	}

	var out struct {
		Keywords []models.KeywordItem `json:"keywords"`
	}
	if err := genai.UnmarshalJSONResponse(raw, &out); err != nil {
		return nil, err
	}
	keywords := make([]models.KeywordItem, 0, len(out.Keywords))
	for _, k := range out.Keywords {
		if strings.TrimSpace(k.Keyword) == "" {
			continue
		}
		keywords = append(keywords, models.KeywordItem{
			Keyword:     strings.TrimSpace(k.Keyword),
			Description: strings.TrimSpace(k.Description),
		})
	}
	if len(keywords) == 0 {
		return nil, errors.New("keywords are empty in AI response")
	}
	return keywords, nil
}

func (s *Service) streamText(ctx context.Context, assignment *config.AIModelAssignment, system, prompt string, onToken func(string)) (string, error) {
	provider := s.ai.SelectProvider(assignment)
	if provider == nil {
		return "", errors.New("no enabled AI provider")
	}

	client := s.newClient(provider)
	emitted := false
	res := genai.WithRetry(ctx, s.policy, func(callCtx context.Context) genai.CallResult {
		r := client.GenerateStream(callCtx, genai.Request{System: system, Prompt: prompt}, func(token string) {
			emitted = true
			if onToken != nil {
				onToken(token)
			}
		})
		if r.Kind == genai.CallRateLimited && emitted {
			return genai.CallResult{Kind: genai.CallFailed, Err: r.Err}
		}
		return r
	})

	switch res.Kind {
	case genai.CallOK:
		return res.Text, nil
	case genai.CallCanceled:
		return res.Text, errStopped
	case genai.CallRateLimited:
		return "", fmt.Errorf("%w: %v", ErrRateLimited, res.Err)
	default:
		return "", res.Err
	}
}

func (s *Service) generateOnce(ctx context.Context, assignment *config.AIModelAssignment, system, prompt string) (string, error) {
	provider := s.ai.SelectProvider(assignment)
	if provider == nil {
		return "", errors.New("no enabled AI provider")
	}

	client := s.newClient(provider)
	res := genai.WithRetry(ctx, s.policy, func(callCtx context.Context) genai.CallResult {
		return client.Generate(callCtx, genai.Request{System: system, Prompt: prompt})
	})

	switch res.Kind {
	case genai.CallOK:
		return res.Text, nil
	case genai.CallCanceled:
		return "", errStopped
	case genai.CallRateLimited:
		return "", fmt.Errorf("%w: %v", ErrRateLimited, res.Err)
	default:
		return "", res.Err
	}
}

// parseQnARecord validates one decoded stream record. Both fields must be
// non-empty strings; anything else is dropped by the decoder.
func parseQnARecord(raw []byte) (models.QnAItem, error) {
	var item models.QnAItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return models.QnAItem{}, err
	}
	if strings.TrimSpace(item.Question) == "" || strings.TrimSpace(item.Answer) == "" {
		return models.QnAItem{}, errors.New("question and answer must be non-empty")
	}
	return item, nil
}
