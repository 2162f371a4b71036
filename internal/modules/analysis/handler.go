package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/techpress/core/internal/models"
	"github.com/techpress/core/internal/modules/techset"
	"github.com/techpress/core/internal/pkg/response"
)

// Handler exposes the analysis endpoints.
type Handler struct {
	svc    *Service
	runner *TaskRunner
	techs  *techset.Cache
	log    *zap.Logger
}

func NewHandler(svc *Service, runner *TaskRunner, techs *techset.Cache, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, runner: runner, techs: techs, log: log.Named("analysis.handler")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/analysis")
	g.POST("/insight", h.PostInsight)
	g.POST("/questions", h.PostQuestions)
	g.POST("/toc", h.PostToc)
	g.POST("/keywords", h.PostKeywords)
	g.POST("/summary", h.PostSummary)
	g.POST("/generate", h.PostGenerate)
	g.GET("/tasks/:id", h.GetTask)
	g.GET("/:documentId", h.GetDocument)
}

// PostInsight streams the insight as plain text tokens. When the document
// already carries an insight the stored value is returned without calling
// the model.
func (h *Handler) PostInsight(c *gin.Context) {
	var dto insightDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if dto.DocumentID != "" {
		if ok, existing := h.svc.store.CheckFieldExists(c.Request.Context(), dto.DocumentID, models.FieldInsight); ok {
			response.OK(c, gin.H{"useExisting": true, "data": existing.Text})
			return
		}
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	wrote := false
	text, err := h.svc.GenerateInsight(c.Request.Context(), dto.Title, dto.Text, func(token string) {
		wrote = true
		_, _ = c.Writer.WriteString(token)
		c.Writer.Flush()
	})
	if err != nil {
		h.streamError(c, wrote, err)
		return
	}

	h.persist(c, dto.DocumentID, models.AnalyzedInfoPatch{Insight: &text})
}

// PostQuestions streams question/answer records as server-sent events and
// terminates the stream with a [DONE] sentinel.
func (h *Handler) PostQuestions(c *gin.Context) {
	var dto questionsDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if dto.DocumentID != "" {
		if ok, existing := h.svc.store.CheckFieldExists(c.Request.Context(), dto.DocumentID, models.FieldQnA); ok {
			response.OK(c, gin.H{"useExisting": true, "data": existing.QnA})
			return
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	wrote := false
	items, err := h.svc.GenerateQuestions(c.Request.Context(), dto.Title, dto.Content, func(item models.QnAItem) {
		wrote = true
		payload, merr := json.Marshal(item)
		if merr != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
	})
	if err != nil {
		h.streamError(c, wrote, err)
		return
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()

	h.persist(c, dto.DocumentID, models.AnalyzedInfoPatch{QnA: items})
}

// PostToc returns the table of contents as a single JSON response.
func (h *Handler) PostToc(c *gin.Context) {
	var dto tocDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	toc, err := h.svc.GenerateToc(c.Request.Context(), dto.Title, dto.Text)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	response.OK(c, gin.H{"toc": toc})
}

// PostKeywords returns the extracted keywords, each decorated with its
// display name from the tech-set catalog.
func (h *Handler) PostKeywords(c *gin.Context) {
	var dto keywordsDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	keywords, err := h.svc.GenerateKeywords(c.Request.Context(), dto.Title, dto.Text)
	if err != nil {
		h.jsonError(c, err)
		return
	}

	views := make([]keywordView, 0, len(keywords))
	for _, k := range keywords {
		views = append(views, keywordView{
			Keyword:     k.Keyword,
			Display:     h.techs.Lookup(c.Request.Context(), k.Keyword),
			Description: k.Description,
		})
	}
	response.OK(c, gin.H{"keywords": views})
}

// PostSummary streams the markdown summary. The table of contents and the
// keywords are required inputs, the summary is sectioned by them.
func (h *Handler) PostSummary(c *gin.Context) {
	var dto summaryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if len(dto.Toc) == 0 || len(dto.Keywords) == 0 {
		response.BadRequest(c, "toc and keywords must be non-empty")
		return
	}

	if dto.DocumentID != "" {
		if ok, existing := h.svc.store.CheckFieldExists(c.Request.Context(), dto.DocumentID, models.FieldSummary); ok {
			response.OK(c, gin.H{"useExisting": true, "summary": existing.Text})
			return
		}
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	wrote := false
	text, err := h.svc.GenerateSummary(c.Request.Context(), dto.Title, dto.Text, dto.Toc, dto.Keywords, func(token string) {
		wrote = true
		_, _ = c.Writer.WriteString(token)
		c.Writer.Flush()
	})
	if err != nil {
		h.streamError(c, wrote, err)
		return
	}

	h.persist(c, dto.DocumentID, models.AnalyzedInfoPatch{Summary: &text})
}

// GetDocument returns the stored analysis for a document.
func (h *Handler) GetDocument(c *gin.Context) {
	documentID := c.Param("documentId")
	if documentID == "" {
		response.BadRequest(c, "documentId is required")
		return
	}

	res := h.svc.store.GetAnalyzedInfo(c.Request.Context(), documentID)
	if !res.OK {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"exists":  false,
			"error":   res.Err.Error(),
		})
		return
	}
	if !res.Exists {
		c.JSON(http.StatusOK, gin.H{"success": true, "exists": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "exists": true, "data": res.Info})
}

// PostGenerate enqueues a full document analysis as a background task.
func (h *Handler) PostGenerate(c *gin.Context) {
	var dto generateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := h.runner.Enqueue(c.Request.Context(), DocumentPayload{
		DocumentID: dto.DocumentID,
		Title:      dto.Title,
		Text:       dto.Text,
	})
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Accepted(c, gin.H{"message": "analysis scheduled", "task_id": task.ID})
}

// GetTask returns the state of a background analysis task.
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.runner.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFoundMsg(c, "task not found")
		return
	}
	response.OK(c, task)
}

// persist merge-writes a generated field when the request names a document.
// Persistence failures do not fail the request.
func (h *Handler) persist(c *gin.Context, documentID string, patch models.AnalyzedInfoPatch) {
	if documentID == "" || patch.IsEmpty() {
		return
	}
	if _, err := h.svc.store.UpdateAnalyzedInfo(c.Request.Context(), documentID, patch); err != nil {
		h.log.Warn("persist failed", zap.String("document_id", documentID), zap.Error(err))
	}
}

// streamError reports a generation failure on a streaming endpoint. Once
// tokens have been written the status line is gone, so the error is only
// logged and the stream ends.
func (h *Handler) streamError(c *gin.Context, wrote bool, err error) {
	if errors.Is(err, c.Request.Context().Err()) && c.Request.Context().Err() != nil {
		return
	}
	if wrote {
		h.log.Warn("stream aborted", zap.String("path", c.FullPath()), zap.Error(err))
		return
	}
	h.jsonError(c, err)
}

func (h *Handler) jsonError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRateLimited):
		response.TooManyRequests(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
