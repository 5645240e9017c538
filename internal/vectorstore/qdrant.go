package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/evidara/paperqa-go/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Qdrant implements rag.VectorStore backed by a Qdrant instance. Chunk text,
// paper id, and ordinal index travel in the point payload so search results
// can be reassembled without a second lookup.
type Qdrant struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrant creates a Qdrant-backed store, ensuring the target collection
// exists (creating it with cosine distance if necessary).
func NewQdrant(ctx context.Context, cfg *QdrantConfig) (*Qdrant, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
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
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &Qdrant{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *Qdrant) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores a batch of chunks with their pre-computed embeddings.
func (s *Qdrant) Upsert(ctx context.Context, chunks []rag.Chunk) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"text":        c.Text,
				"paper_id":    c.PaperID,
				"chunk_index": int64(c.Index),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search with a score threshold and
// returns the top-k results. Note that Qdrant applies the threshold
// inclusively.
func (s *Qdrant) Search(ctx context.Context, queryVector []float32, minScore float64, topK int) ([]rag.ScoredChunk, error) {
	limit := uint64(topK)
	threshold := float32(minScore)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	scored := make([]rag.ScoredChunk, 0, len(results))
	for _, r := range results {
		sc := rag.ScoredChunk{
			Chunk: rag.Chunk{ID: r.Id.GetUuid()},
			Score: float64(r.Score),
		}
		if p := r.Payload; p != nil {
			if v, ok := p["text"]; ok {
				sc.Text = v.GetStringValue()
			}
			if v, ok := p["paper_id"]; ok {
				sc.PaperID = v.GetStringValue()
			}
			if v, ok := p["chunk_index"]; ok {
				sc.Index = int(v.GetIntegerValue())
			}
		}
		scored = append(scored, sc)
	}

	return scored, nil
}

// DeleteByPaper removes every point whose paper_id payload field equals
// paperID, so a paper and its chunks disappear together.
func (s *Qdrant) DeleteByPaper(ctx context.Context, paperID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("paper_id", paperID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete by paper failed: %w", err)
	}

	return nil
}

// Client exposes the underlying gRPC client for health probes.
func (s *Qdrant) Client() *qdrant.Client { return s.client }

// Close closes the underlying Qdrant gRPC connection.
func (s *Qdrant) Close() error {
	return s.client.Close()
}
