package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/ut-course-advisor/internal/advisor"
	"github.com/garyellow/ut-course-advisor/internal/catalog"
	"github.com/garyellow/ut-course-advisor/internal/config"
	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/genai"
	"github.com/garyellow/ut-course-advisor/internal/langdetect"
	"github.com/garyellow/ut-course-advisor/internal/pipeline"
)

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) features() map[string]bool {
	return map[string]bool{
		"catalog":   a.catalog != nil && a.catalog.IsReady(),
		"embedding": a.embedder != nil && a.embedder.IsReady(),
		"reranker":  a.scorer != nil && a.scorer.IsReady(),
		"chat":      a.chat != nil,
	}
}

func (a *Application) readinessCheck(c *gin.Context) {
	if a.cfg.WaitForWarmup && !a.readinessState.IsReady() {
		status := a.readinessState.Status()
		a.logger.WithField("elapsed_seconds", status.ElapsedSeconds).
			WithField("timeout_seconds", status.TimeoutSeconds).
			Debug("Readiness check: warmup in progress")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not ready",
			"reason":     status.Reason,
			"last_error": status.LastError,
			"progress": gin.H{
				"elapsed_seconds": status.ElapsedSeconds,
				"timeout_seconds": status.TimeoutSeconds,
			},
		})
		return
	}

	body := gin.H{
		"status":   "ready",
		"features": a.features(),
	}
	if a.catalog != nil && a.catalog.IsReady() {
		ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
		defer cancel()
		if snap, err := a.catalog.Load(ctx); err == nil {
			body["courses"] = snap.Len()
			body["catalog_loaded_at"] = snap.LoadedAt()
		}
	}
	c.JSON(http.StatusOK, body)
}

type topKBounds struct {
	Default int `json:"default"`
	Max     int `json:"max"`
}

type facetsResponse struct {
	Courses int            `json:"courses"`
	Facets  catalog.Facets `json:"facets"`
	TopK    topKBounds     `json:"top_k"`
}

func (a *Application) getFacets(c *gin.Context) {
	snap, err := a.catalog.Load(c.Request.Context())
	if err != nil {
		locale := langdetect.Default
		if l, perr := langdetect.ParseLocale(c.Query("locale")); perr == nil {
			locale = l
		}
		a.respondError(c, domerrors.NewWrapper("app", "facets").Wrap(err, dataUnavailableMessage(locale)))
		return
	}
	c.JSON(http.StatusOK, facetsResponse{
		Courses: snap.Len(),
		Facets:  snap.Facets(),
		TopK:    topKBounds{Default: a.cfg.Pipeline.DefaultTopK, Max: a.cfg.Pipeline.MaxTopK},
	})
}

func dataUnavailableMessage(locale langdetect.Locale) string {
	if locale == langdetect.Estonian {
		return "Kursuste andmed pole laaditud."
	}
	return "Course data is not loaded."
}

func (a *Application) recommend(c *gin.Context) {
	var req advisor.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondBadRequest(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), a.cfg.TurnTimeout)
	defer cancel()

	res, err := a.advisor.Recommend(ctx, req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResultView(res))
}

func (a *Application) createSession(c *gin.Context) {
	id := a.sessions.Create()
	a.metrics.SetActiveSessions(a.sessions.Len())
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

type historyResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []genai.Message `json:"messages"`
}

func (a *Application) getMessages(c *gin.Context) {
	id := c.Param("id")
	history, err := a.sessions.History(id)
	if err != nil {
		a.respondError(c, err)
		return
	}
	if history == nil {
		history = []genai.Message{}
	}
	c.JSON(http.StatusOK, historyResponse{SessionID: id, Messages: history})
}

func (a *Application) resetSession(c *gin.Context) {
	if err := a.sessions.Reset(c.Param("id")); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type turnRequest struct {
	advisor.Request
	Stream bool `json:"stream"`
}

func (a *Application) postMessage(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondBadRequest(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), a.cfg.TurnTimeout)
	defer cancel()

	id := c.Param("id")
	if !req.Stream {
		reply, err := a.advisor.Turn(ctx, id, req.Request)
		if err != nil {
			a.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, newReplyView(reply))
		return
	}
	a.streamTurn(ctx, c, id, req.Request)
}

// streamTurn answers with Server-Sent Events: "delta" events carry answer
// text, then a single "done" or "error" event closes the stream. Failures
// before the first delta get a plain JSON error response instead.
func (a *Application) streamTurn(ctx context.Context, c *gin.Context, id string, req advisor.Request) {
	started := false
	onDelta := func(text string) error {
		if !started {
			started = true
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
		}
		c.SSEvent("delta", gin.H{"text": text})
		c.Writer.Flush()
		return c.Request.Context().Err()
	}

	reply, err := a.advisor.TurnStream(ctx, id, req, onDelta)
	if err != nil {
		if !started {
			a.respondError(c, err)
			return
		}
		status, errorType := errorStatus(err)
		a.metrics.RecordHTTPError(errorType, "api")
		c.SSEvent("error", gin.H{"error": domerrors.GetUserMessage(err), "status": status})
		c.Writer.Flush()
		return
	}
	if !started {
		// Replies without deltas still use the event stream shape.
		_ = onDelta(reply.Content)
	}
	c.SSEvent("done", newReplyView(reply))
	c.Writer.Flush()
}

func (a *Application) respondBadRequest(c *gin.Context, err error) {
	a.metrics.RecordHTTPError("bad_request", "api")
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

func (a *Application) respondError(c *gin.Context, err error) {
	status, errorType := errorStatus(err)
	a.metrics.RecordHTTPError(errorType, "api")
	_ = c.Error(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "30")
	}
	c.JSON(status, gin.H{"error": domerrors.GetUserMessage(err)})
}

// errorStatus maps the error taxonomy to an HTTP status and a metrics label.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domerrors.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, domerrors.ErrSessionBusy):
		return http.StatusConflict, "session_busy"
	case errors.Is(err, domerrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domerrors.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domerrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, domerrors.ErrDataUnavailable), errors.Is(err, domerrors.ErrConsistency):
		return http.StatusServiceUnavailable, "data_unavailable"
	case errors.Is(err, domerrors.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

type courseView struct {
	Rank           int      `json:"rank"`
	Code           string   `json:"code"`
	NameET         string   `json:"name_et,omitempty"`
	NameEN         string   `json:"name_en,omitempty"`
	Credits        *float64 `json:"credits,omitempty"`
	Semester       string   `json:"semester,omitempty"`
	Grading        string   `json:"grading,omitempty"`
	Languages      []string `json:"languages,omitempty"`
	Cities         []string `json:"cities,omitempty"`
	StudyLevels    []string `json:"study_levels,omitempty"`
	Score          float64  `json:"score"`
	RetrievalScore float64  `json:"retrieval_score"`
}

type resultView struct {
	Status        pipeline.Status   `json:"status"`
	Stage         pipeline.Stage    `json:"stage,omitempty"`
	Locale        langdetect.Locale `json:"locale"`
	Instruction   string            `json:"instruction,omitempty"`
	FilteredCount int               `json:"filtered_count"`
	PoolSize      int               `json:"pool_size"`
	TopK          int               `json:"top_k"`
	DroppedFacets []catalog.Facet   `json:"dropped_facets,omitempty"`
	Courses       []courseView      `json:"courses"`
}

type replyView struct {
	SessionID string            `json:"session_id"`
	Status    advisor.Status    `json:"status"`
	Locale    langdetect.Locale `json:"locale"`
	Content   string            `json:"content"`
	Result    resultView        `json:"result"`
}

func newResultView(res *pipeline.Result) resultView {
	v := resultView{
		Status:        res.Status,
		Stage:         res.Stage,
		Locale:        res.Locale,
		Instruction:   res.Instruction,
		FilteredCount: res.FilteredCount,
		PoolSize:      res.PoolSize,
		TopK:          res.TopK,
		DroppedFacets: res.DroppedFacets,
		Courses:       make([]courseView, 0, len(res.Ranked)),
	}
	for i, r := range res.Ranked {
		course := r.Course
		cv := courseView{
			Rank:           i + 1,
			Code:           course.Code,
			NameET:         course.NameET.String(),
			NameEN:         course.NameEN.String(),
			Semester:       course.Semester.String(),
			Grading:        course.Grading.String(),
			Languages:      course.Languages,
			Cities:         course.Cities,
			StudyLevels:    course.StudyLevels,
			Score:          r.Score,
			RetrievalScore: r.RetrievalScore,
		}
		if credits, ok := course.Credits.Get(); ok {
			cv.Credits = &credits
		}
		v.Courses = append(v.Courses, cv)
	}
	return v
}

func newReplyView(reply *advisor.Reply) replyView {
	v := replyView{
		SessionID: reply.SessionID,
		Status:    reply.Status,
		Locale:    reply.Locale,
		Content:   reply.Content,
	}
	if reply.Result != nil {
		v.Result = newResultView(reply.Result)
		// The instruction is internal to the chat call.
		v.Result.Instruction = ""
	}
	return v
}
