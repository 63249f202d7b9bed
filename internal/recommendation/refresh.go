package recommendation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vectorindex"
)

// maxRefreshBatchSize bounds texts per embedding call.
const maxRefreshBatchSize = 256

type refreshItem struct {
	product catalog.Product
	text    string
	hash    string
	vector  []float32 // reused when only metadata changed
}

// refreshTracker accumulates outcomes from concurrent workers.
type refreshTracker struct {
	mu       sync.Mutex
	report   *RefreshReport
	total    int
	done     int
	progress func(done, total int)
}

func (t *refreshTracker) settle(update func(r *RefreshReport)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	update(t.report)
	t.done++
	if t.progress != nil {
		t.progress(t.done, t.total)
	}
}

func (t *refreshTracker) success() {
	t.settle(func(r *RefreshReport) { r.Successful++ })
}

func (t *refreshTracker) skip() {
	t.settle(func(r *RefreshReport) { r.Skipped++ })
}

func (t *refreshTracker) fail(productID, reason string) {
	t.settle(func(r *RefreshReport) {
		r.Failed++
		r.Failures = append(r.Failures, RefreshFailure{ProductID: productID, Reason: reason})
	})
}

// RefreshEmbeddings re-embeds products whose embedding is missing or stale
// and upserts them. It is idempotent: unchanged products are skipped. Item
// failures are counted; only a dimension mismatch or cancellation aborts the
// run, in which case the partial report is returned with the error.
func (e *Engine) RefreshEmbeddings(ctx context.Context, req RefreshRequest) (report *RefreshReport, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveRequest(OpRefresh, err, time.Since(start)) }()

	batchSize := req.BatchSize
	if batchSize < 0 || batchSize > maxRefreshBatchSize {
		return nil, domain.ValidationError("batchSize must be between 1 and 256", nil)
	}
	if batchSize == 0 {
		batchSize = e.config.RefreshBatchSize
	}

	logger := e.logger.WithContext(ctx).WithOperation(OpRefresh)
	report = &RefreshReport{}
	defer func() {
		if report != nil {
			report.Duration = time.Since(start)
			report.DurationMs = report.Duration.Milliseconds()
		}
	}()

	products, stale, err := e.refreshScope(ctx, req.ProductIDs)
	if err != nil {
		logger.Warn().Stack().Err(err).Msg("Embedding refresh could not resolve products")
		return nil, err
	}
	logger.Info().
		Int("products", len(products)).
		Int("batch_size", batchSize).
		Bool("force", req.Force).
		Msg("Embedding refresh started")

	report.Processed = len(products)
	tracker := &refreshTracker{report: report, total: len(products), progress: req.Progress}
	model := e.embedder.Model()

	var (
		pending   = make([]refreshItem, 0, len(products))
		relabeled []refreshItem
	)
	for _, p := range products {
		if err := p.Validate(); err != nil {
			logger.Warn().Err(err).Str("product_id", p.ID).Msg("Skipping invalid product")
			tracker.fail(p.ID, err.Error())
			continue
		}
		text := catalog.SourceText(p)
		hash := catalog.ContentHash(model, text)
		item := refreshItem{product: p, text: text, hash: hash}
		if !req.Force {
			if entry := e.currentEntry(ctx, p.ID, model, hash); entry != nil {
				if entry.Metadata.Equal(vectorindex.MetadataFromProduct(p)) {
					tracker.skip()
				} else {
					item.vector = entry.Vector
					relabeled = append(relabeled, item)
				}
				continue
			}
		}
		pending = append(pending, item)
	}

	limiter := rate.NewLimiter(rate.Limit(e.config.RefreshRequestsPerSecond), 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.RefreshConcurrency)
	if len(relabeled) > 0 {
		g.Go(func() error {
			return e.relabelItems(gctx, relabeled, tracker)
		})
	}
	for i := 0; i < len(pending); i += batchSize {
		chunk := pending[i:min(i+batchSize, len(pending))]
		g.Go(func() error {
			return e.refreshChunk(gctx, limiter, chunk, tracker)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).
			Int("successful", report.Successful).
			Int("failed", report.Failed).
			Msg("Embedding refresh aborted")
		e.finishRefresh(ctx, report)
		return report, err
	}

	e.removeStale(ctx, stale, report)
	e.finishRefresh(ctx, report)

	logger.Info().
		Int("processed", report.Processed).
		Int("successful", report.Successful).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("removed", report.Removed).
		Dur("duration", time.Since(start)).
		Msg("Embedding refresh completed")
	return report, nil
}

// refreshScope resolves the products to refresh and the index entries to
// remove. A full run removes every indexed id that is no longer active; an
// explicit run removes the requested ids that are gone or inactive.
func (e *Engine) refreshScope(ctx context.Context, ids []string) ([]catalog.Product, []string, error) {
	if len(ids) == 0 {
		products, err := e.store.ListActiveProducts(ctx)
		if err != nil {
			return nil, nil, domain.DependencyError("list active products", err)
		}
		indexed, err := e.index.IDs(ctx)
		if err != nil {
			return nil, nil, domain.DependencyError("list indexed products", err)
		}
		active := make(map[string]bool, len(products))
		for _, p := range products {
			active[p.ID] = true
		}
		var stale []string
		for _, id := range indexed {
			if !active[id] {
				stale = append(stale, id)
			}
		}
		return products, stale, nil
	}

	var (
		products []catalog.Product
		stale    []string
		seen     = make(map[string]bool, len(ids))
	)
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		p, err := e.store.GetProduct(ctx, id)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			stale = append(stale, id)
		case err != nil:
			return nil, nil, domain.DependencyError("load product "+id, err)
		case !p.Active:
			stale = append(stale, id)
		default:
			products = append(products, *p)
		}
	}
	if len(products) == 0 && len(stale) == 0 {
		return nil, nil, domain.ValidationError("productIds must contain at least one id", nil)
	}
	return products, stale, nil
}

// currentEntry returns the indexed entry when its vector was produced by model
// from text with the given hash, or nil when the product must be re-embedded.
func (e *Engine) currentEntry(ctx context.Context, productID, model, hash string) *vectorindex.Entry {
	entry, err := e.index.Get(ctx, productID)
	if err != nil {
		if !errors.Is(err, vectorindex.ErrNotFound) {
			e.logger.WithContext(ctx).Debug().Err(err).Str("product_id", productID).
				Msg("Could not read current embedding, re-embedding")
		}
		return nil
	}
	if entry.ContentHash != hash || entry.Model != model || len(entry.Vector) == 0 {
		return nil
	}
	return entry
}

// relabelItems rewrites the metadata of entries whose embedded text is
// unchanged, keeping their vectors. Search filters read this metadata.
func (e *Engine) relabelItems(ctx context.Context, items []refreshItem, tracker *refreshTracker) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.WithContext(ctx).Debug().Str("product_id", item.product.ID).
			Msg("Metadata changed, reusing embedding")
		if err := e.indexItem(ctx, item, item.vector, tracker); err != nil {
			return err
		}
	}
	return nil
}

// refreshChunk embeds one chunk in a single call and falls back to per-item
// calls when the batch call fails.
func (e *Engine) refreshChunk(ctx context.Context, limiter *rate.Limiter, chunk []refreshItem, tracker *refreshTracker) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	texts := make([]string, len(chunk))
	for i, item := range chunk {
		texts[i] = item.text
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) == len(chunk) {
		for i, item := range chunk {
			if err := e.indexItem(ctx, item, vectors[i], tracker); err != nil {
				return err
			}
		}
		return nil
	}
	if err == nil {
		err = fmt.Errorf("%w: got %d vectors for %d texts",
			embedding.ErrProviderUnavailable, len(vectors), len(chunk))
	}
	if errors.Is(err, embedding.ErrUnexpectedDimension) {
		return domain.FatalError("embedding provider returned unexpected dimension", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	e.logger.WithContext(ctx).Warn().Err(err).
		Int("chunk", len(chunk)).
		Msg("Batch embedding failed, retrying items individually")

	for _, item := range chunk {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		vector, err := e.embedder.EmbedSingle(ctx, item.text)
		if err != nil {
			if errors.Is(err, embedding.ErrUnexpectedDimension) {
				return domain.FatalError("embedding provider returned unexpected dimension", err)
			}
			e.logger.WithContext(ctx).Warn().Err(err).
				Str("product_id", item.product.ID).
				Str("reason", "embedding_unavailable").
				Msg("Product embedding failed")
			tracker.fail(item.product.ID, "embedding failed: "+err.Error())
			continue
		}
		if err := e.indexItem(ctx, item, vector, tracker); err != nil {
			return err
		}
	}
	return nil
}

// indexItem upserts one embedding. Only a dimension mismatch is returned;
// other failures are recorded on the tracker.
func (e *Engine) indexItem(ctx context.Context, item refreshItem, vector []float32, tracker *refreshTracker) error {
	id := item.product.ID
	if isZeroVector(vector) {
		e.logger.WithContext(ctx).Warn().Str("product_id", id).Msg("Embedding is a zero vector, not indexing")
		tracker.fail(id, "empty embedding")
		return nil
	}

	err := e.index.Upsert(ctx, vectorindex.Entry{
		ProductID:   id,
		Vector:      vector,
		Metadata:    vectorindex.MetadataFromProduct(item.product),
		SourceText:  item.text,
		ContentHash: item.hash,
		Model:       e.embedder.Model(),
		UpdatedAt:   time.Now().UTC(),
	})
	switch {
	case errors.Is(err, vectorindex.ErrDimensionMismatch):
		return domain.FatalError("embedding does not match index dimension", err)
	case err != nil:
		e.logger.WithContext(ctx).Warn().Stack().Err(err).Str("product_id", id).Msg("Index upsert failed")
		tracker.fail(id, "index upsert failed: "+err.Error())
	default:
		tracker.success()
	}
	return nil
}

func (e *Engine) removeStale(ctx context.Context, ids []string, report *RefreshReport) {
	for _, id := range ids {
		if _, err := e.index.Get(ctx, id); err != nil {
			continue
		}
		if err := e.index.Delete(ctx, id); err != nil {
			e.logger.WithContext(ctx).Warn().Stack().Err(err).Str("product_id", id).Msg("Failed to remove stale embedding")
			continue
		}
		report.Removed++
	}
}

func (e *Engine) finishRefresh(ctx context.Context, report *RefreshReport) {
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].ProductID < report.Failures[j].ProductID
	})
	e.metrics.ObserveRefresh(report.Successful, report.Skipped, report.Failed, report.Removed)
	if count, err := e.index.Count(ctx); err == nil {
		e.metrics.SetIndexedProducts(count)
	}
	if report.Successful > 0 || report.Removed > 0 {
		e.invalidateSearchCache(ctx)
	}
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
