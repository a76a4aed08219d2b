package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	appinstruments "historysync/internal/application/service/instruments"
	"historysync/internal/application/service/records"
	"historysync/internal/application/service/syncer"
	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/syncrun"
	"historysync/internal/domain/entity/timeseries"
	"historysync/internal/infrastructure/broker"
	"historysync/internal/infrastructure/cache"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	apiBasePath      = "/api/v1"
	defaultLastLimit = 30
	maxLastLimit     = 5000
)

var (
	errMissingCode  = errors.New("code query param required")
	errMissingRange = errors.New("from/to query params required")
)

// Runner is the part of the sync runner the API drives.
type Runner interface {
	Run(ctx context.Context, req syncer.Request) (syncrun.Summary, error)
	Running() bool
	LastRun(ctx context.Context) (*syncrun.Summary, error)
	Plan(ctx context.Context, req syncer.Request) (syncer.Plan, error)
}

type Handler struct {
	router      *gin.Engine
	runner      Runner
	instruments *appinstruments.Service
	records     *records.Service
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      *logrus.Entry
	// background bounds asynchronous runs started over HTTP.
	background context.Context
	runs       sync.WaitGroup
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(ctx context.Context, runner Runner, inst *appinstruments.Service, rec *records.Service, responses *redis.Client, cacheTTL time.Duration, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:      router,
		runner:      runner,
		instruments: inst,
		records:     rec,
		cache:       responses,
		cacheTTL:    cacheTTL,
		logger:      logger.WithField("component", "http"),
		background:  ctx,
	}
	h.registerRoutes()
	return h
}

// Wait blocks until every background run started over HTTP has returned, or
// ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	api := h.router.Group(apiBasePath)
	api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api.GET("/status", h.getStatus)
	api.POST("/sync", h.triggerSync)
	api.GET("/plan", h.getPlan)
	api.GET("/instruments", h.getInstruments)

	rec := api.Group("/records")
	if h.cache != nil {
		rec.Use(h.cacheMiddleware())
	}
	{
		rec.GET("", h.getRecordsRange)
		rec.GET("/last", h.getRecordsLast)
		rec.GET("/codes", h.getCodes)
		rec.GET("/coverage", h.getCoverage)
	}
}

// Sync handlers

func (h *Handler) getStatus(c *gin.Context) {
	last, err := h.runner.LastRun(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"running":  h.runner.Running(),
		"last_run": last,
	})
}

// triggerSync starts a run in the background, or runs it in the request when
// wait=true and answers with the summary.
func (h *Handler) triggerSync(c *gin.Context) {
	var payload broker.SyncRequestMessage
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
	}
	req, err := toRequest(payload)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if h.runner.Running() {
		writeError(c, http.StatusConflict, syncer.ErrRunInProgress)
		return
	}

	if c.Query("wait") == "true" {
		summary, err := h.runner.Run(c.Request.Context(), req)
		switch {
		case errors.Is(err, syncer.ErrRunInProgress):
			writeError(c, http.StatusConflict, err)
		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		default:
			c.JSON(http.StatusOK, summary)
		}
		return
	}

	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		summary, err := h.runner.Run(h.background, req)
		if err != nil {
			h.logger.WithError(err).Warn("background sync ended with error")
			return
		}
		h.logger.WithFields(logrus.Fields{
			"run_id": summary.RunID.String(),
			"status": summary.Status,
		}).Info("background sync done")
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *Handler) getPlan(c *gin.Context) {
	payload := broker.SyncRequestMessage{
		From: c.Query("from"),
		To:   c.Query("to"),
	}
	if codes := c.Query("codes"); codes != "" {
		payload.Codes = strings.Split(codes, ",")
	}
	req, err := toRequest(payload)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	plan, err := h.runner.Plan(c.Request.Context(), req)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}

	chunks := make([]chunkView, 0, len(plan.Tasks))
	for _, task := range plan.Tasks {
		chunks = append(chunks, chunkView{
			Code: task.Instrument.Code,
			From: task.Chunk.Start.String(),
			To:   task.Chunk.End.String(),
			Days: task.Chunk.Days(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"from":    plan.Target.Start.String(),
		"to":      plan.Target.End.String(),
		"kept":    plan.Kept,
		"skipped": plan.Skipped,
		"chunks":  chunks,
	})
}

func (h *Handler) getInstruments(c *gin.Context) {
	list, err := h.instruments.ListRemote(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Records handlers

func (h *Handler) getRecordsRange(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		writeError(c, http.StatusBadRequest, errMissingCode)
		return
	}
	from, to, err := parseDateRange(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	out, err := h.records.GetRecordsBetween(c.Request.Context(), code, from, to)
	if err != nil {
		writeRecordsError(c, err)
		return
	}
	c.JSON(http.StatusOK, toViews(out))
}

func (h *Handler) getRecordsLast(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		writeError(c, http.StatusBadRequest, errMissingCode)
		return
	}
	limit := defaultLastLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, fmt.Errorf("limit: %w", err))
			return
		}
		limit = min(parsed, maxLastLimit)
	}
	out, err := h.records.GetLastRecords(c.Request.Context(), code, limit)
	if err != nil {
		writeRecordsError(c, err)
		return
	}
	c.JSON(http.StatusOK, toViews(out))
}

func (h *Handler) getCodes(c *gin.Context) {
	codes, err := h.records.Codes(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	if codes == nil {
		codes = []string{}
	}
	c.JSON(http.StatusOK, codes)
}

func (h *Handler) getCoverage(c *gin.Context) {
	cov, err := h.records.Coverage(c.Request.Context(), c.Query("code"))
	if err != nil {
		writeRecordsError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from": cov.Start.String(),
		"to":   cov.End.String(),
		"days": cov.Days(),
	})
}

type chunkView struct {
	Code string `json:"code"`
	From string `json:"from"`
	To   string `json:"to"`
	Days int    `json:"days"`
}

type recordView struct {
	Code          string `json:"code"`
	Date          string `json:"date"`
	LastPrice     string `json:"last_price"`
	Max           string `json:"max"`
	Min           string `json:"min"`
	AvgPrice      string `json:"avg_price"`
	PercentChange string `json:"percent_change"`
	Volume        string `json:"volume"`
	TurnoverBest  string `json:"turnover_best"`
	TurnoverTotal string `json:"turnover_total"`
}

func toViews(recs []timeseries.Record) []recordView {
	out := make([]recordView, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordView{
			Code:          r.Code,
			Date:          r.Date.String(),
			LastPrice:     r.LastPrice.String(),
			Max:           r.Max.String(),
			Min:           r.Min.String(),
			AvgPrice:      r.AvgPrice.String(),
			PercentChange: r.PercentChange.String(),
			Volume:        r.Volume.String(),
			TurnoverBest:  r.TurnoverBest.String(),
			TurnoverTotal: r.TurnoverTotal.String(),
		})
	}
	return out
}

func toRequest(payload broker.SyncRequestMessage) (syncer.Request, error) {
	target, _, err := payload.Target()
	if err != nil {
		return syncer.Request{}, err
	}
	var codes []string
	for _, code := range payload.Codes {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	return syncer.Request{Codes: codes, Target: target}, nil
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func writeRecordsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, records.ErrInvalidLimit), errors.Is(err, records.ErrEmptyCode):
		writeError(c, http.StatusBadRequest, err)
	case errors.Is(err, records.ErrUnknownCode):
		writeError(c, http.StatusNotFound, err)
	default:
		writeError(c, http.StatusInternalServerError, err)
	}
}

func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			_ = h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err()
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("%s:%s:%s?%s", cache.ResponseKeyPrefix, c.Request.Method, c.FullPath(), c.Request.URL.RawQuery)
}

// parseDateRange reads from/to as ISO dates.
func parseDateRange(c *gin.Context) (calendar.Date, calendar.Date, error) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return calendar.Date{}, calendar.Date{}, errMissingRange
	}
	from, err := calendar.ParseDate(calendar.ISOLayout, fromStr)
	if err != nil {
		return calendar.Date{}, calendar.Date{}, fmt.Errorf("from: %w", err)
	}
	to, err := calendar.ParseDate(calendar.ISOLayout, toStr)
	if err != nil {
		return calendar.Date{}, calendar.Date{}, fmt.Errorf("to: %w", err)
	}
	return from, to, nil
}
