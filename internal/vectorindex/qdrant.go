package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
)

// pointNamespace derives stable Qdrant point ids from product ids.
var pointNamespace = uuid.MustParse("6f1c2a4e-8d0b-4a8e-9c35-2b7f0d6e9a11")

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	Host       string
	Port       int // Default: 6334 (gRPC)
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

// QdrantIndex stores embeddings in a Qdrant collection with cosine distance.
// Qdrant cannot store zero-norm vectors under cosine distance, so upserting one fails.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantIndex connects to Qdrant.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}, nil
}

// EnsureCollection creates the collection when missing and verifies the vector size otherwise.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection: %w", err)
	}

	if !exists {
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create qdrant collection: %w", err)
		}
		return nil
	}

	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("get qdrant collection info: %w", err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != uint64(q.dimension) {
		return fmt.Errorf("%w: collection %s stores %d-dimensional vectors, configured %d",
			ErrDimensionMismatch, q.collection, size, q.dimension)
	}
	return nil
}

// PointID maps a product id onto a deterministic UUID point id.
func PointID(productID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(productID)).String()
}

// Upsert stores or replaces a product's point.
func (q *QdrantIndex) Upsert(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != q.dimension {
		return fmt.Errorf("%w: expected %d, got %d for product %s",
			ErrDimensionMismatch, q.dimension, len(entry.Vector), entry.ProductID)
	}
	if isZeroNorm(entry.Vector) {
		return fmt.Errorf("qdrant upsert: product %s has a zero-norm vector", entry.ProductID)
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	tags := make([]any, len(entry.Metadata.Tags))
	for i, t := range entry.Metadata.Tags {
		tags[i] = t
	}
	payload, err := qdrant.TryValueMap(map[string]any{
		"product_id":   entry.ProductID,
		"name":         entry.Metadata.Name,
		"description":  entry.Metadata.Description,
		"category":     entry.Metadata.Category,
		"category_key": categoryKey(entry.Metadata.Category),
		"brand":        entry.Metadata.Brand,
		"brand_key":    categoryKey(entry.Metadata.Brand),
		"price":        entry.Metadata.Price,
		"tags":         tags,
		"source_text":  entry.SourceText,
		"content_hash": entry.ContentHash,
		"model":        entry.Model,
		"updated_at":   entry.UpdatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("build qdrant payload: %w", err)
	}

	wait := true
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(PointID(entry.ProductID)),
			Vectors: qdrant.NewVectors(entry.Vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// Delete removes a product's point.
func (q *QdrantIndex) Delete(ctx context.Context, productID string) error {
	wait := true
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(PointID(productID))),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

// Get returns a product's stored entry including its vector.
func (q *QdrantIndex) Get(ctx context.Context, productID string) (*Entry, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(PointID(productID))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get failed: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}

	point := points[0]
	id, m := decodePayload(point.GetPayload())
	entry := &Entry{
		ProductID:   id,
		Vector:      denseVector(point.GetVectors()),
		Metadata:    m,
		SourceText:  point.GetPayload()["source_text"].GetStringValue(),
		ContentHash: point.GetPayload()["content_hash"].GetStringValue(),
		Model:       point.GetPayload()["model"].GetStringValue(),
		UpdatedAt:   time.Unix(point.GetPayload()["updated_at"].GetIntegerValue(), 0).UTC(),
	}
	return entry, nil
}

// SearchByVector queries Qdrant with payload filters applied before scoring.
func (q *QdrantIndex) SearchByVector(ctx context.Context, query Query) ([]Result, error) {
	if len(query.Vector) != q.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d",
			ErrDimensionMismatch, len(query.Vector), q.dimension)
	}

	filter := buildFilter(query.Category, "", query.PriceRange, nil, query.ExcludeIDs)

	// A zero-norm query scores 0 against everything.
	if isZeroNorm(query.Vector) {
		if query.MinSimilarity > 0 {
			return []Result{}, nil
		}
		products, err := q.scroll(ctx, filter)
		if err != nil {
			return nil, err
		}
		results := make([]Result, 0, len(products))
		for _, p := range products {
			results = append(results, Result{ProductID: p.ID, Metadata: MetadataFromProduct(p)})
		}
		SortResults(results)
		if query.K > 0 && len(results) > query.K {
			results = results[:query.K]
		}
		return results, nil
	}

	limit := uint64(query.K)
	if query.K <= 0 {
		n, err := q.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return []Result{}, nil
		}
		limit = uint64(n)
	}
	threshold := float32(query.MinSimilarity)

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query.Vector...),
		Filter:         filter,
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, point := range points {
		if float64(point.GetScore()) < query.MinSimilarity {
			continue
		}
		id, m := decodePayload(point.GetPayload())
		results = append(results, Result{ProductID: id, Metadata: m, Similarity: float64(point.GetScore())})
	}
	SortResults(results)
	return results, nil
}

// SearchByMetadata scrolls points matching an exact payload filter.
func (q *QdrantIndex) SearchByMetadata(ctx context.Context, f MetadataFilter) ([]catalog.Product, error) {
	products, err := q.scroll(ctx, buildFilter(f.Category, f.Brand, f.PriceRange, f.ProductIDs, nil))
	if err != nil {
		return nil, err
	}
	if f.Limit > 0 && len(products) > f.Limit {
		products = products[:f.Limit]
	}
	return products, nil
}

// IDs returns every indexed product id.
func (q *QdrantIndex) IDs(ctx context.Context) ([]string, error) {
	products, err := q.scroll(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids, nil
}

// Count returns the number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int64, error) {
	exact := true
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count failed: %w", err)
	}
	return int64(n), nil
}

// Dimension returns the index dimension.
func (q *QdrantIndex) Dimension() int {
	return q.dimension
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func (q *QdrantIndex) scroll(ctx context.Context, filter *qdrant.Filter) ([]catalog.Product, error) {
	exact := true
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant count failed: %w", err)
	}
	if n == 0 {
		return []catalog.Product{}, nil
	}

	limit := uint32(n)
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll failed: %w", err)
	}

	products := make([]catalog.Product, 0, len(points))
	for _, point := range points {
		id, m := decodePayload(point.GetPayload())
		products = append(products, m.Product(id))
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// buildFilter converts predicates to a Qdrant payload filter, or nil when empty.
func buildFilter(category, brand string, pr *catalog.PriceRange, include, exclude []string) *qdrant.Filter {
	var must, mustNot []*qdrant.Condition

	if category != "" {
		must = append(must, qdrant.NewMatch("category_key", categoryKey(category)))
	}
	if brand != "" {
		must = append(must, qdrant.NewMatch("brand_key", categoryKey(brand)))
	}
	if pr != nil {
		lo, hi := pr.Min, pr.Max
		must = append(must, qdrant.NewRange("price", &qdrant.Range{Gte: &lo, Lte: &hi}))
	}
	if len(include) > 0 {
		ids := make([]*qdrant.PointId, len(include))
		for i, id := range include {
			ids[i] = qdrant.NewID(PointID(id))
		}
		must = append(must, qdrant.NewHasID(ids...))
	}
	if len(exclude) > 0 {
		ids := make([]*qdrant.PointId, len(exclude))
		for i, id := range exclude {
			ids[i] = qdrant.NewID(PointID(id))
		}
		mustNot = append(mustNot, qdrant.NewHasID(ids...))
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}
}

func decodePayload(payload map[string]*qdrant.Value) (string, Metadata) {
	m := Metadata{
		Name:        payload["name"].GetStringValue(),
		Description: payload["description"].GetStringValue(),
		Category:    payload["category"].GetStringValue(),
		Brand:       payload["brand"].GetStringValue(),
		Price:       numberValue(payload["price"]),
	}
	for _, v := range payload["tags"].GetListValue().GetValues() {
		m.Tags = append(m.Tags, v.GetStringValue())
	}
	return payload["product_id"].GetStringValue(), m
}

// numberValue reads a payload number stored as either double or integer.
func numberValue(v *qdrant.Value) float64 {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_IntegerValue:
		return float64(val.IntegerValue)
	case *qdrant.Value_StringValue:
		f, _ := strconv.ParseFloat(val.StringValue, 64)
		return f
	default:
		return 0
	}
}

func denseVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData()
}

var _ Index = (*QdrantIndex)(nil)
