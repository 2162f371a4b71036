package models

import (
	"strings"
	"time"
)

// QnAItem is one generated interview question/answer pair.
type QnAItem struct {
	Question string `bson:"question" json:"question"`
	Answer   string `bson:"answer"   json:"answer"`
}

// KeywordItem is one glossary entry for a programming keyword.
// Keywords are not guaranteed unique; lookups treat them as a set.
type KeywordItem struct {
	Keyword     string `bson:"keyword"     json:"keyword"`
	Description string `bson:"description" json:"description"`
}

// AnalyzedInfo is the aggregate analysis record persisted per article.
// Collection: post_analyses, keyed by the article's document id.
type AnalyzedInfo struct {
	Insight   string        `bson:"insight,omitempty"              json:"insight,omitempty"`
	QnA       []QnAItem     `bson:"qna,omitempty"                  json:"qna,omitempty"`
	Toc       []string      `bson:"toc,omitempty"                  json:"toc,omitempty"`
	Keywords  []KeywordItem `bson:"programming_keywords,omitempty" json:"programming_keywords,omitempty"`
	Summary   string        `bson:"summary,omitempty"              json:"summary,omitempty"`
	CreatedAt time.Time     `bson:"created_at,omitempty"           json:"created_at,omitempty"`
	UpdatedAt time.Time     `bson:"updated_at,omitempty"           json:"updated_at,omitempty"`
}

// FieldPresent reports whether a field holds a usable value: strings must be
// non-blank after trimming, slices must be non-empty.
func (a *AnalyzedInfo) FieldPresent(f Field) bool {
	if a == nil {
		return false
	}
	switch f {
	case FieldInsight:
		return strings.TrimSpace(a.Insight) != ""
	case FieldQnA:
		return len(a.QnA) > 0
	case FieldToc:
		return len(a.Toc) > 0
	case FieldKeywords:
		return len(a.Keywords) > 0
	case FieldSummary:
		return strings.TrimSpace(a.Summary) != ""
	}
	return false
}

// AnalyzedInfoPatch is a partial update to an AnalyzedInfo record. Nil members
// are left untouched by the merge-write.
type AnalyzedInfoPatch struct {
	Insight  *string
	QnA      []QnAItem
	Toc      []string
	Keywords []KeywordItem
	Summary  *string
}

// IsEmpty reports whether the patch carries no field at all.
func (p AnalyzedInfoPatch) IsEmpty() bool {
	return p.Insight == nil && p.QnA == nil && p.Toc == nil && p.Keywords == nil && p.Summary == nil
}
