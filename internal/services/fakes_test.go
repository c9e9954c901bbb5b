package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kenmurphy/anthropic-mastery/internal/models"
	"github.com/kenmurphy/anthropic-mastery/internal/providers/embedding"
	"github.com/kenmurphy/anthropic-mastery/internal/providers/llm"
	"github.com/kenmurphy/anthropic-mastery/internal/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// axisEmbedding builds a valid 1024-dim embedding pointing along one axis
// with a small per-conversation offset so groups stay well separated.
func axisEmbedding(axis int, offset float64) []float64 {
	v := make([]float64, embedding.Dimensions)
	v[axis%embedding.Dimensions] = 1.0
	v[(axis+100)%embedding.Dimensions] = offset
	return v
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	byID     map[string]*models.Message
	order    []string
	setCalls int
	failSet  bool
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{byID: map[string]*models.Message{}}
}

func (r *fakeMessageRepo) add(m models.Message) *models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.MessageID == "" {
		m.MessageID = primitive.NewObjectID().Hex()
	}
	cp := m
	r.byID[cp.MessageID] = &cp
	r.order = append(r.order, cp.MessageID)
	return &cp
}

func (r *fakeMessageRepo) Create(_ context.Context, m *models.Message) error {
	stored := r.add(*m)
	m.MessageID = stored.MessageID
	return nil
}

func (r *fakeMessageRepo) GetByMessageID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) listWhere(keep func(*models.Message) bool) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, id := range r.order {
		if m := r.byID[id]; keep(m) {
			out = append(out, *m)
		}
	}
	return out
}

func (r *fakeMessageRepo) ListByConversation(_ context.Context, conversationID string) ([]models.Message, error) {
	return r.listWhere(func(m *models.Message) bool { return m.ConversationID == conversationID }), nil
}

func (r *fakeMessageRepo) ListProcessed(_ context.Context, conversationID string) ([]models.Message, error) {
	return r.listWhere(func(m *models.Message) bool {
		return m.ConversationID == conversationID && m.ProcessedForClustering
	}), nil
}

func (r *fakeMessageRepo) ListUnprocessed(_ context.Context, conversationID string) ([]models.Message, error) {
	return r.listWhere(func(m *models.Message) bool {
		return m.ConversationID == conversationID && !m.ProcessedForClustering
	}), nil
}

func (r *fakeMessageRepo) CountUnprocessed(_ context.Context) (int64, error) {
	return int64(len(r.listWhere(func(m *models.Message) bool { return !m.ProcessedForClustering }))), nil
}

func (r *fakeMessageRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.order)), nil
}

func (r *fakeMessageRepo) SetAnalysis(_ context.Context, id string, concepts []string, emb []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSet {
		return errors.New("write failed")
	}
	m, ok := r.byID[id]
	if !ok {
		return utils.ErrNotFound
	}
	r.setCalls++
	m.TechnicalConcepts = concepts
	m.Embedding = emb
	m.ProcessedForClustering = true
	return nil
}

type fakeConversationRepo struct {
	mu    sync.Mutex
	convs []models.Conversation
}

func (r *fakeConversationRepo) add(title string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := models.Conversation{ID: primitive.NewObjectID(), Title: title, CreatedAt: time.Now().UTC()}
	r.convs = append(r.convs, c)
	return c.ConversationID()
}

func (r *fakeConversationRepo) Create(_ context.Context, c *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	r.convs = append(r.convs, *c)
	return nil
}

func (r *fakeConversationRepo) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.convs {
		if r.convs[i].ConversationID() == id {
			cp := r.convs[i]
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *fakeConversationRepo) ListAll(_ context.Context) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Conversation, len(r.convs))
	copy(out, r.convs)
	return out, nil
}

type fakeClusterRepo struct {
	mu          sync.Mutex
	clusters    []models.ConversationCluster
	failReplace bool
}

func (r *fakeClusterRepo) ReplaceAll(_ context.Context, clusters []models.ConversationCluster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReplace {
		return errors.New("replace failed")
	}
	r.clusters = make([]models.ConversationCluster, len(clusters))
	copy(r.clusters, clusters)
	return nil
}

func (r *fakeClusterRepo) ListAll(_ context.Context) ([]models.ConversationCluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ConversationCluster, len(r.clusters))
	copy(out, r.clusters)
	return out, nil
}

func (r *fakeClusterRepo) GetByClusterID(_ context.Context, id string) (*models.ConversationCluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.clusters {
		if r.clusters[i].ClusterID == id {
			cp := r.clusters[i]
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *fakeClusterRepo) GetByConversationID(_ context.Context, conversationID string) (*models.ConversationCluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.clusters {
		for _, id := range r.clusters[i].ConversationIDs {
			if id == conversationID {
				cp := r.clusters[i]
				return &cp, nil
			}
		}
	}
	return nil, utils.ErrNotFound
}

type fakeRunRepo struct {
	mu   sync.Mutex
	runs []models.ClusteringRun
}

func (r *fakeRunRepo) Insert(_ context.Context, run *models.ClusteringRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

func (r *fakeRunRepo) Latest(_ context.Context) (*models.ClusteringRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return nil, utils.ErrNotFound
	}
	cp := r.runs[len(r.runs)-1]
	return &cp, nil
}

type fakeLLM struct {
	mu             sync.Mutex
	extractFn      func(content string) ([]llm.Concept, error)
	summarizeFn    func(topConcepts []string) (*llm.ClusterSummary, error)
	extractCalls   int
	summarizeCalls int
}

func (f *fakeLLM) ExtractConcepts(_ context.Context, content string) ([]llm.Concept, error) {
	f.mu.Lock()
	f.extractCalls++
	fn := f.extractFn
	f.mu.Unlock()
	if fn == nil {
		return []llm.Concept{{Title: "general discussion", Summary: "A general discussion."}}, nil
	}
	return fn(content)
}

func (f *fakeLLM) SummarizeCluster(_ context.Context, topConcepts []string) (*llm.ClusterSummary, error) {
	f.mu.Lock()
	f.summarizeCalls++
	fn := f.summarizeFn
	f.mu.Unlock()
	if fn == nil {
		return &llm.ClusterSummary{Title: "Test Cluster", Description: "A test cluster. It has two sentences."}, nil
	}
	return fn(topConcepts)
}

func (f *fakeLLM) Close() error { return nil }

type fakeEmbedder struct {
	embedFn func(text string) ([]float64, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.embedFn == nil {
		return embedding.NewHashEmbedder().Embed(ctx, text)
	}
	return f.embedFn(text)
}

// memCache is an in-memory cache.Cache for exercising the cluster read cache.
type memCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemCache() *memCache { return &memCache{items: map[string][]byte{}} }

func (c *memCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = b
	c.mu.Unlock()
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}
