package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/pkg/resilience"
)

// Defaults for case retrieval, matching the cache invalidation contract:
// StoreCase drops the history entry cached under DefaultHistoryLimit.
const (
	DefaultSearchLimit    = 5
	DefaultScoreThreshold = 0.7
	DefaultHistoryLimit   = 10
)

// Cache pool sizing. Similarity searches are hot and short-lived; history
// changes only when a new case lands, so it keeps longer.
const (
	searchCacheCapacity  = 500
	searchCacheTTL       = 5 * time.Minute
	historyCacheCapacity = 200
	historyCacheTTL      = 10 * time.Minute
)

// caseNamespace is the UUID namespace for deterministic case point IDs,
// so re-storing the same run overwrites rather than duplicates.
var caseNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// CaseRecord is what the storage stage persists for a completed run.
type CaseRecord struct {
	PatientID      string
	RunID          string
	ChiefComplaint string
	Symptoms       []string
	MedicalHistory []string
	Assessment     string
	Timestamp      time.Time
	SearchableText string
	Vector         []float32
}

// PointID derives the deterministic store ID for this record.
func (r CaseRecord) PointID() string {
	return uuid.NewSHA1(caseNamespace, []byte(r.PatientID+"/"+r.RunID)).String()
}

// CaseStore is the vector-store gateway the stages depend on.
type CaseStore interface {
	// SearchSimilar returns cases whose vectors score at or above
	// threshold, best first, at most limit.
	SearchSimilar(ctx context.Context, vector []float32, limit int, threshold float64) ([]schema.SimilarCase, error)

	// FetchHistory returns the patient's prior visits, most recent first.
	FetchHistory(ctx context.Context, patientID string, limit int) ([]schema.Visit, error)

	// StoreCase persists a completed case. Idempotent by PointID.
	StoreCase(ctx context.Context, rec CaseRecord) error
}

// QdrantConfig locates the vector store.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
	// Collection defaults to "patient_cases".
	Collection string
	// VectorDim defaults to DefaultEmbeddingDim.
	VectorDim int
	// Retry policy for store calls. Defaults to resilience.SearchRetry
	// with the transient predicate.
	Retry *resilience.RetryConfig

	Logger *slog.Logger
}

// QdrantStore is the Qdrant-backed CaseStore, with read-through cache
// pools in front of both query paths.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	vectorDim  int
	retry      resilience.RetryConfig
	logger     *slog.Logger

	searchCache  *resilience.Cache[[]schema.SimilarCase]
	historyCache *resilience.Cache[[]schema.Visit]
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "patient_cases"
	}
	dim := cfg.VectorDim
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	retry := resilience.SearchRetry
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	if retry.Retryable == nil {
		retry.Retryable = IsTransient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &QdrantStore{
		client:       client,
		collection:   collection,
		vectorDim:    dim,
		retry:        retry,
		logger:       logger,
		searchCache:  resilience.NewCache[[]schema.SimilarCase](searchCacheCapacity, searchCacheTTL),
		historyCache: resilience.NewCache[[]schema.Visit](historyCacheCapacity, historyCacheTTL),
	}

	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.vectorDim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	s.logger.Info("created case collection", slog.String("collection", s.collection))
	return nil
}

// SearchSimilar implements CaseStore with a read-through search cache.
func (s *QdrantStore) SearchSimilar(ctx context.Context, vector []float32, limit int, threshold float64) ([]schema.SimilarCase, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	key := resilience.Key("search_similar", vector, limit, threshold)
	return s.searchCache.GetOr(key, func() ([]schema.SimilarCase, error) {
		res := resilience.Do(ctx, s.retry, func(ctx context.Context) ([]schema.SimilarCase, error) {
			return s.querySimilar(ctx, vector, limit, threshold)
		})
		return res.Value, res.Err
	})
}

func (s *QdrantStore) querySimilar(ctx context.Context, vector []float32, limit int, threshold float64) ([]schema.SimilarCase, error) {
	start := time.Now()
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(float32(threshold)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify("search_similar", time.Since(start), err)
	}

	cases := make([]schema.SimilarCase, 0, len(points))
	for _, p := range points {
		cases = append(cases, schema.SimilarCase{
			ID:             p.GetId().GetUuid(),
			Score:          float64(p.GetScore()),
			ChiefComplaint: payloadString(p.GetPayload(), "chief_complaint"),
			Symptoms:       payloadStrings(p.GetPayload(), "symptoms"),
			Assessment:     payloadString(p.GetPayload(), "assessment"),
		})
	}
	return cases, nil
}

// FetchHistory implements CaseStore with a read-through history cache.
func (s *QdrantStore) FetchHistory(ctx context.Context, patientID string, limit int) ([]schema.Visit, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	key := resilience.Key("fetch_history", patientID, limit)
	return s.historyCache.GetOr(key, func() ([]schema.Visit, error) {
		res := resilience.Do(ctx, s.retry, func(ctx context.Context) ([]schema.Visit, error) {
			return s.scrollHistory(ctx, patientID, limit)
		})
		return res.Value, res.Err
	})
}

func (s *QdrantStore) scrollHistory(ctx context.Context, patientID string, limit int) ([]schema.Visit, error) {
	start := time.Now()
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("patient_id", patientID),
			},
		},
		Limit:       qdrant.PtrOf(uint32(limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify("fetch_history", time.Since(start), err)
	}

	visits := make([]schema.Visit, 0, len(points))
	for _, p := range points {
		ts, _ := time.Parse(time.RFC3339, payloadString(p.GetPayload(), "timestamp"))
		visits = append(visits, schema.Visit{
			ChiefComplaint: payloadString(p.GetPayload(), "chief_complaint"),
			Symptoms:       payloadStrings(p.GetPayload(), "symptoms"),
			MedicalHistory: payloadStrings(p.GetPayload(), "medical_history"),
			Assessment:     payloadString(p.GetPayload(), "assessment"),
			Timestamp:      ts,
		})
	}

	// Scroll order is not guaranteed; most recent first.
	sort.Slice(visits, func(i, j int) bool {
		return visits[i].Timestamp.After(visits[j].Timestamp)
	})
	return visits, nil
}

// StoreCase implements CaseStore and invalidates the patient's cached
// history entry for the default lookup limit.
func (s *QdrantStore) StoreCase(ctx context.Context, rec CaseRecord) error {
	payload := map[string]any{
		"patient_id":      rec.PatientID,
		"chief_complaint": rec.ChiefComplaint,
		"symptoms":        toAnySlice(rec.Symptoms),
		"medical_history": toAnySlice(rec.MedicalHistory),
		"assessment":      rec.Assessment,
		"timestamp":       rec.Timestamp.UTC().Format(time.RFC3339),
		"searchable_text": rec.SearchableText,
	}

	res := resilience.Do(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
		start := time.Now()
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points: []*qdrant.PointStruct{
				{
					Id:      qdrant.NewID(rec.PointID()),
					Vectors: qdrant.NewVectors(rec.Vector...),
					Payload: qdrant.NewValueMap(payload),
				},
			},
			Wait: qdrant.PtrOf(true),
		})
		if err != nil {
			return struct{}{}, classify("store_case", time.Since(start), err)
		}
		return struct{}{}, nil
	})
	if res.Err != nil {
		return res.Err
	}

	s.historyCache.Delete(resilience.Key("fetch_history", rec.PatientID, DefaultHistoryLimit))
	return nil
}

// CacheStats reports (hits, misses, live entries) per pool for logging.
func (s *QdrantStore) CacheStats() (search, history [3]int64) {
	h, m := s.searchCache.Stats()
	search = [3]int64{h, m, int64(s.searchCache.Len())}
	h, m = s.historyCache.Stats()
	history = [3]int64{h, m, int64(s.historyCache.Len())}
	return search, history
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadStrings(payload map[string]*qdrant.Value, key string) []string {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
