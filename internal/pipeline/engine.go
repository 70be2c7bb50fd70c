// Package pipeline orchestrates the question-to-result flow: schema
// slicing, intent analysis, prompt assembly, generation, validation
// and plan-gated execution.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	rediscache "github.com/askdb/backend/internal/cache/redis"
	"github.com/askdb/backend/internal/exec"
	"github.com/askdb/backend/internal/extract"
	"github.com/askdb/backend/internal/history"
	"github.com/askdb/backend/internal/intent"
	"github.com/askdb/backend/internal/llm"
	"github.com/askdb/backend/internal/metrics"
	"github.com/askdb/backend/internal/progress"
	"github.com/askdb/backend/internal/prompt"
	"github.com/askdb/backend/internal/ranker/milvus"
	"github.com/askdb/backend/internal/safety"
	"github.com/askdb/backend/internal/schema"
	"github.com/askdb/backend/pkg/config"
	"github.com/askdb/backend/pkg/logger"
)

type Request struct {
	Question     string
	ConnURL      string
	RowCap       int
	TimeoutMS    int
	IntentChecks bool
}

type Response struct {
	ID        string          `json:"id"`
	Backend   string          `json:"backend"`
	Intent    intent.Analysis `json:"intent"`
	Query     string          `json:"query"`
	Columns   []string        `json:"columns"`
	Rows      [][]any         `json:"rows"`
	RowCount  int             `json:"row_count"`
	Plan      string          `json:"plan,omitempty"`
	Cached    bool            `json:"cached"`
	LatencyMS int             `json:"latency_ms"`
}

// Engine holds the pipeline dependencies. Cache, history, ranker and
// progress are optional; a nil value disables that concern.
type Engine struct {
	llm      *llm.Client
	cfg      config.PipelineConfig
	slicer   *schema.Slicer
	cache    *rediscache.Client
	history  *history.Client
	ranker   *milvus.Client
	progress *progress.Store
}

func NewEngine(llmClient *llm.Client, cfg config.PipelineConfig, cache *rediscache.Client, hist *history.Client, ranker *milvus.Client, prog *progress.Store) *Engine {
	return &Engine{
		llm:      llmClient,
		cfg:      cfg,
		slicer:   schema.NewSlicer(cfg.MaxTables, cfg.MaxFields),
		cache:    cache,
		history:  hist,
		ranker:   ranker,
		progress: prog,
	}
}

// Ask runs the full pipeline for one question. The returned error,
// when non-nil, is always a *Error carrying the failure kind.
func (e *Engine) Ask(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	id := uuid.NewString()
	report := func(string, int, string) {}
	if e.progress != nil {
		report = e.progress.Reporter(id)
	}

	rowCap := req.RowCap
	if rowCap <= 0 || rowCap > e.cfg.RowCap {
		rowCap = e.cfg.RowCap
	}
	timeoutMS := req.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = e.cfg.StatementTimeout
	}

	backend := "postgres"
	if strings.HasPrefix(req.ConnURL, "mongodb") {
		backend = "mongodb"
	}

	cacheKey := rediscache.ResultKey(req.ConnURL, req.Question, rowCap)
	if e.cache != nil {
		var cached Response
		if hit, err := e.cache.GetResult(ctx, cacheKey, &cached); err == nil && hit {
			metrics.CacheHits.WithLabelValues("result").Inc()
			cached.ID = id
			cached.Cached = true
			report(progress.StageDone, 100, "served from cache")
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("result").Inc()
	}

	var out *Response
	var err error
	if backend == "mongodb" {
		out, err = e.askDocument(ctx, req, rowCap, timeoutMS, report)
	} else {
		out, err = e.askSQL(ctx, req, rowCap, timeoutMS, report)
	}

	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		e.record(id, req, backend, nil, err, latency)
		metrics.QueryTotal.WithLabelValues("failed").Inc()
		report(progress.StageFailed, 100, err.Error())
		return nil, err
	}

	out.ID = id
	out.Backend = backend
	out.LatencyMS = latency
	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	metrics.RowsReturned.Observe(float64(out.RowCount))
	metrics.IntentConfidence.Observe(out.Intent.Confidence)

	if e.cache != nil {
		ttl := time.Duration(e.cfg.CacheTTLSec) * time.Second
		if cerr := e.cache.SetResult(ctx, cacheKey, out, ttl); cerr != nil {
			logger.Warn("failed to cache result", zap.Error(cerr))
		}
	}

	e.record(id, req, backend, out, nil, latency)
	report(progress.StageDone, 100, "")
	return out, nil
}

func (e *Engine) askSQL(ctx context.Context, req Request, rowCap, timeoutMS int, report func(string, int, string)) (*Response, error) {
	if !e.llm.Configured() {
		return nil, failf(KindNotConfigured, llm.ErrNotConfigured, "%s", llm.ErrNotConfigured.Error())
	}

	report(progress.StageSchema, 10, "loading schema")
	db, err := exec.OpenPostgres(req.ConnURL)
	if err != nil {
		return nil, failf(KindUpstream, err, "cannot open database: %v", err)
	}
	defer db.Close()

	source := schema.NewPostgresSource(db)
	full, err := source.Load(ctx)
	if err != nil {
		return nil, failf(KindUpstream, err, "cannot load schema: %v", err)
	}

	slice := e.slice(ctx, full, req.Question)
	if slice.Empty() {
		return nil, failf(KindSafety, nil, "no schema elements matched the question")
	}

	report(progress.StageIntent, 25, "")
	analysis := intent.Analyze(req.Question, slice)

	report(progress.StageGenerate, 40, "")
	user := prompt.User(req.Question, slice)
	if req.IntentChecks {
		user = prompt.UserWithIntent(req.Question, slice, analysis)
	}
	if fks, ferr := source.LoadForeignKeys(ctx); ferr == nil && len(fks) > 0 {
		user = user + "\n" + prompt.RenderForeignKeys(fks)
	}

	raw, usage, err := e.llm.Complete(ctx, prompt.SQLSystem, user)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, failf(KindNotConfigured, err, "%s", err.Error())
		}
		return nil, failf(KindUpstream, err, "llm request failed: %v", err)
	}
	e.countTokens(usage)

	candidate := extract.SQL(raw)

	report(progress.StageValidate, 60, "")
	var guard *intent.Analysis
	if req.IntentChecks {
		guard = &analysis
	}
	finalized, err := safety.ValidateSQL(candidate, slice, rowCap, guard)
	if err != nil {
		return nil, safetyFailure(err, candidate)
	}

	report(progress.StagePlan, 75, "")
	gate := exec.NewPostgresGate(db, e.cfg.PlanRowCeiling, timeoutMS)
	result, err := gate.Run(ctx, finalized)
	if err != nil {
		var capErr *exec.CapacityError
		if errors.As(err, &capErr) {
			metrics.PlanRejections.Inc()
			fail := failf(KindCapacity, err, "%s", capErr.Error())
			fail.Query = finalized
			return nil, fail
		}
		fail := failf(KindExecution, err, "query execution failed: %v", err)
		fail.Query = finalized
		return nil, fail
	}
	report(progress.StageExecute, 90, "")

	return &Response{
		Intent:   analysis,
		Query:    finalized,
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: result.RowCount,
		Plan:     result.Plan,
	}, nil
}

func (e *Engine) askDocument(ctx context.Context, req Request, rowCap, timeoutMS int, report func(string, int, string)) (*Response, error) {
	if !e.llm.Configured() {
		return nil, failf(KindNotConfigured, llm.ErrNotConfigured, "%s", llm.ErrNotConfigured.Error())
	}

	u, err := url.Parse(req.ConnURL)
	if err != nil {
		return nil, failf(KindUpstream, err, "invalid connection URL: %v", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return nil, failf(KindUpstream, nil, "connection URL must name a database")
	}

	report(progress.StageSchema, 10, "loading schema")
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(req.ConnURL))
	if err != nil {
		return nil, failf(KindUpstream, err, "cannot connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	database := client.Database(dbName)
	source := schema.NewMongoSource(database, 0)
	full, err := source.Load(ctx)
	if err != nil {
		return nil, failf(KindUpstream, err, "cannot load schema: %v", err)
	}

	slice := e.slice(ctx, full, req.Question)
	if slice.Empty() {
		return nil, failf(KindSafety, nil, "no schema elements matched the question")
	}

	report(progress.StageIntent, 25, "")
	analysis := intent.Analyze(req.Question, slice)

	report(progress.StageGenerate, 40, "")
	raw, usage, err := e.llm.Complete(ctx, prompt.DocumentSystem, prompt.UserDocument(req.Question, slice))
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, failf(KindNotConfigured, err, "%s", err.Error())
		}
		return nil, failf(KindUpstream, err, "llm request failed: %v", err)
	}
	e.countTokens(usage)

	doc, err := extract.Document(raw)
	if err != nil {
		return nil, failf(KindParse, err, "%v", err)
	}

	report(progress.StageValidate, 60, "")
	validated, err := safety.ValidateDocument(doc, slice, rowCap)
	if err != nil {
		return nil, safetyFailure(err, string(doc))
	}

	finalized, err := json.Marshal(validated)
	if err != nil {
		return nil, failf(KindParse, err, "cannot render validated query: %v", err)
	}

	report(progress.StageExecute, 80, "")
	gate := exec.NewMongoGate(database, timeoutMS)
	result, err := gate.Run(ctx, &exec.DocumentQuery{
		Collection: validated.Collection,
		Pipeline:   validated.Pipeline,
		Find:       validated.Find,
		Projection: validated.Projection,
		Sort:       validated.Sort,
		Limit:      validated.Limit,
	})
	if err != nil {
		fail := failf(KindExecution, err, "query execution failed: %v", err)
		fail.Query = string(finalized)
		return nil, fail
	}

	return &Response{
		Intent:   analysis,
		Query:    string(finalized),
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: result.RowCount,
		Plan:     result.Plan,
	}, nil
}

// slice picks the relevant schema elements, preferring the vector
// ranker and falling back to fuzzy matching in the same request when
// ranking fails for any reason.
func (e *Engine) slice(ctx context.Context, full schema.Schema, question string) schema.Slice {
	if e.ranker != nil {
		ranked, err := e.rank(ctx, full, question)
		if err == nil && len(ranked) > 0 {
			return e.slicer.FromRanked(full, ranked, question)
		}
		if err != nil {
			logger.Warn("schema ranker unavailable, using fuzzy matching", zap.Error(err))
		}
	}
	return e.slicer.Select(full, question)
}

func (e *Engine) rank(ctx context.Context, full schema.Schema, question string) ([]string, error) {
	embedding, err := e.questionEmbedding(ctx, question)
	if err != nil {
		return nil, err
	}

	hash := milvus.SchemaHash(full)
	matches, err := e.ranker.Rank(ctx, hash, embedding, e.cfg.MaxTables)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Element)
	}
	return names, nil
}

// questionEmbedding embeds one question, served from the cache when the
// same text was embedded recently so repeated questions skip an LLM
// round-trip.
func (e *Engine) questionEmbedding(ctx context.Context, question string) ([]float32, error) {
	var key string
	if e.cache != nil {
		key = rediscache.TextHash(question)
		if vec, ok, err := e.cache.GetEmbedding(ctx, key); err == nil && ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return vec, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embeddings, err := e.llm.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	if e.cache != nil {
		ttl := time.Duration(e.cfg.CacheTTLSec) * time.Second
		if cerr := e.cache.SetEmbedding(ctx, key, embeddings[0], ttl); cerr != nil {
			logger.Warn("failed to cache question embedding", zap.Error(cerr))
		}
	}
	return embeddings[0], nil
}

// IndexSchema embeds every element of a schema into the ranker. No-op
// when the ranker is disabled.
func (e *Engine) IndexSchema(ctx context.Context, full schema.Schema) error {
	if e.ranker == nil {
		return nil
	}

	elements := make([]string, len(full))
	texts := make([]string, len(full))
	for i, el := range full {
		elements[i] = el.Name
		texts[i] = milvus.ElementText(el)
	}

	embeddings, err := e.llm.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed schema elements: %w", err)
	}

	return e.ranker.Index(ctx, milvus.SchemaHash(full), elements, embeddings)
}

func (e *Engine) countTokens(usage llm.Usage) {
	model := e.llm.Model()
	metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
}

func (e *Engine) record(id string, req Request, backend string, out *Response, failure error, latencyMS int) {
	if e.history == nil {
		return
	}

	rec := &history.Record{
		ID:        id,
		Question:  req.Question,
		Backend:   backend,
		Status:    "success",
		LatencyMS: latencyMS,
		CreatedAt: time.Now(),
	}
	if out != nil {
		rec.Intent = string(out.Intent.Intent)
		rec.Confidence = out.Intent.Confidence
		rec.Query = out.Query
		rec.RowCount = out.RowCount
	}
	if failure != nil {
		rec.Status = "failed"
		rec.Error = failure.Error()
		var perr *Error
		if errors.As(failure, &perr) {
			rec.Status = string(perr.Kind)
			rec.Query = perr.Query
		}
	}

	if err := e.history.Insert(rec); err != nil {
		logger.Warn("failed to record history", zap.Error(err))
	}
}

func safetyFailure(err error, candidate string) *Error {
	var serr *safety.Error
	if errors.As(err, &serr) {
		metrics.SafetyRejections.WithLabelValues(serr.Rule).Inc()
		kind := KindSafety
		if serr.Rule == safety.RuleParse {
			kind = KindParse
		}
		fail := failf(kind, err, "%s", serr.Message)
		fail.Query = candidate
		return fail
	}
	return failf(KindSafety, err, "%v", err)
}
