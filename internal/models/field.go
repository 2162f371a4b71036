package models

// Field identifies one of the five independently-generated analysis outputs.
type Field string

const (
	FieldInsight  Field = "insight"
	FieldQnA      Field = "qna"
	FieldToc      Field = "toc"
	FieldKeywords Field = "programming_keywords"
	FieldSummary  Field = "summary"
)

// AllFields lists every analysis field in a stable order.
var AllFields = []Field{FieldInsight, FieldQnA, FieldToc, FieldKeywords, FieldSummary}

// IndependentFields are the fields with no data dependency; they may be
// generated concurrently. Summary depends on toc + programming_keywords.
var IndependentFields = []Field{FieldInsight, FieldQnA, FieldToc, FieldKeywords}

// FieldStatus is the in-memory lifecycle of a field during one orchestration
// session. It is never persisted.
type FieldStatus string

const (
	StatusPending   FieldStatus = "pending"
	StatusLoading   FieldStatus = "loading"
	StatusCompleted FieldStatus = "completed"
	StatusError     FieldStatus = "error"
)
