package analysis

import "github.com/techpress/core/internal/models"

type insightDTO struct {
	Title      string `json:"title" binding:"required"`
	Text       string `json:"text"  binding:"required"`
	DocumentID string `json:"documentId"`
}

type questionsDTO struct {
	Title      string `json:"title"   binding:"required"`
	Content    string `json:"content" binding:"required"`
	DocumentID string `json:"documentId"`
}

type tocDTO struct {
	Title string `json:"title" binding:"required"`
	Text  string `json:"text"  binding:"required"`
}

type keywordsDTO struct {
	Title string `json:"title" binding:"required"`
	Text  string `json:"text"  binding:"required"`
}

type summaryDTO struct {
	Title      string               `json:"title"    binding:"required"`
	Text       string               `json:"text"     binding:"required"`
	Toc        []string             `json:"toc"      binding:"required"`
	Keywords   []models.KeywordItem `json:"keywords" binding:"required"`
	DocumentID string               `json:"documentId"`
}

type generateDTO struct {
	DocumentID string `json:"documentId" binding:"required"`
	Title      string `json:"title"      binding:"required"`
	Text       string `json:"text"       binding:"required"`
}

type keywordView struct {
	Keyword     string `json:"keyword"`
	Display     string `json:"display"`
	Description string `json:"description"`
}
