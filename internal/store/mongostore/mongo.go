package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/store"
)

const collectionPatterns = "patterns"

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ store.Repository = (*Store)(nil)

type document struct {
	ID            string         `bson:"_id"`
	Concept       string         `bson:"concept"`
	Content       []byte         `bson:"content"`
	Entities      []store.Entity `bson:"entities"`
	Sentiment     float64        `bson:"sentiment"`
	Confidence    float64        `bson:"confidence"`
	FeedbackScore float64        `bson:"feedbackScore"`
	Source        string         `bson:"source"`
	Title         string         `bson:"title,omitempty"`
	URL           string         `bson:"url,omitempty"`
	OutputID      string         `bson:"outputId,omitempty"`
	Embedding     []float64      `bson:"embedding,omitempty"`
	CreatedAt     time.Time      `bson:"createdAt"`
	UpdatedAt     time.Time      `bson:"updatedAt"`
}

// Open connects to uri, pings the primary and ensures indexes on the
// patterns collection of database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &Store{client: client, coll: client.Database(database).Collection(collectionPatterns)}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "concept", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "source", Value: 1}}},
		{Keys: bson.D{{Key: "entities.value", Value: 1}}},
		{
			Keys:    bson.D{{Key: "outputId", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Insert(ctx context.Context, p store.Pattern) (string, error) {
	doc := document{
		ID:            p.ID,
		Concept:       p.Concept,
		Content:       p.Content,
		Entities:      p.Entities,
		Sentiment:     p.Sentiment,
		Confidence:    store.ClampConfidence(p.Confidence, 1),
		FeedbackScore: p.FeedbackScore,
		Source:        p.Source,
		Title:         p.Title,
		URL:           p.URL,
		OutputID:      p.OutputID,
		Embedding:     p.Embedding,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if doc.Entities == nil {
		doc.Entities = []store.Entity{}
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return p.ID, nil
		}
		return "", fmt.Errorf("insert pattern: %w", err)
	}
	return p.ID, nil
}

func (s *Store) FindByConceptOrKeywords(ctx context.Context, q store.Query) ([]store.Pattern, error) {
	filter := bson.M{"confidence": bson.M{"$gte": q.MinConfidence}}
	if terms := store.LowerTerms(q.Terms); len(terms) > 0 {
		or := make(bson.A, 0, len(terms)*2)
		for _, t := range terms {
			quoted := regexp.QuoteMeta(t)
			or = append(or,
				bson.M{"concept": bson.M{"$regex": quoted, "$options": "i"}},
				bson.M{"entities.value": bson.M{"$regex": "^" + quoted + "$", "$options": "i"}},
			)
		}
		filter["$or"] = or
	}

	opts := options.Find().SetSort(sortDoc(q.Sort))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find patterns: %w", err)
	}
	defer cur.Close(ctx)

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode patterns: %w", err)
	}
	out := make([]store.Pattern, 0, len(docs))
	for _, d := range docs {
		out = append(out, store.Pattern{
			ID:            d.ID,
			Concept:       d.Concept,
			Content:       d.Content,
			Entities:      d.Entities,
			Sentiment:     d.Sentiment,
			Confidence:    d.Confidence,
			FeedbackScore: d.FeedbackScore,
			Source:        d.Source,
			Title:         d.Title,
			URL:           d.URL,
			OutputID:      d.OutputID,
			Embedding:     d.Embedding,
			CreatedAt:     d.CreatedAt.UTC(),
			UpdatedAt:     d.UpdatedAt.UTC(),
		})
	}
	return out, nil
}

// UpdateFeedback clamps confidence server-side in an update pipeline.
func (s *Store) UpdateFeedback(ctx context.Context, outputID string, d store.FeedbackDelta) error {
	ceiling := d.Ceiling
	if ceiling <= 0 {
		ceiling = 1
	}
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "confidence", Value: bson.M{"$min": bson.A{
			bson.M{"$max": bson.A{bson.M{"$add": bson.A{"$confidence", d.Confidence}}, 0}},
			ceiling,
		}}},
		{Key: "feedbackScore", Value: bson.M{"$add": bson.A{"$feedbackScore", d.FeedbackScore}}},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}}}

	res, err := s.coll.UpdateOne(ctx, bson.M{"outputId": outputID}, update)
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("output %s: %w", outputID, casierr.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, filterDoc(f))
	if err != nil {
		return 0, fmt.Errorf("delete patterns: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) CountMatching(ctx context.Context, f store.Filter) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, filterDoc(f))
	if err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return n, nil
}

func filterDoc(f store.Filter) bson.M {
	m := bson.M{}
	if len(f.IDs) > 0 {
		m["_id"] = bson.M{"$in": f.IDs}
	}
	if f.ConfidenceBelow > 0 {
		m["confidence"] = bson.M{"$lt": f.ConfidenceBelow}
	}
	if !f.UpdatedBefore.IsZero() {
		m["updatedAt"] = bson.M{"$lt": f.UpdatedBefore}
	}
	if f.Source != "" {
		m["source"] = f.Source
	}
	return m
}

func sortDoc(keys []store.SortKey) bson.D {
	if len(keys) == 0 {
		keys = store.DefaultSort
	}
	d := make(bson.D, 0, len(keys)+1)
	for _, k := range keys {
		switch k {
		case store.ByFeedbackScore:
			d = append(d, bson.E{Key: "feedbackScore", Value: -1})
		case store.ByConfidence:
			d = append(d, bson.E{Key: "confidence", Value: -1})
		case store.ByUpdatedAt:
			d = append(d, bson.E{Key: "updatedAt", Value: -1})
		}
	}
	return append(d, bson.E{Key: "_id", Value: 1})
}
