package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kenmurphy/anthropic-mastery/internal/cache"
	"github.com/kenmurphy/anthropic-mastery/internal/kmeans"
	"github.com/kenmurphy/anthropic-mastery/internal/models"
	"github.com/kenmurphy/anthropic-mastery/internal/providers/llm"
	mongorepo "github.com/kenmurphy/anthropic-mastery/internal/repositories/mongo"
	pgrepo "github.com/kenmurphy/anthropic-mastery/internal/repositories/postgres"
	"github.com/kenmurphy/anthropic-mastery/internal/utils"

	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	kmeansSeed     = 42
	kmeansRestarts = 10
	topConceptsN   = 10
	similarLimit   = 10

	clusterListCacheKey = "clusters:all"
	clusterListCacheTTL = 5 * time.Minute
)

// ClusteringConfig controls cluster-count selection. With AutoK set, k is
// swept over [max(2, MinK), min(MaxK, n-1)] and the candidate with the best
// cosine silhouette wins; otherwise FixedK is used as-is.
type ClusteringConfig struct {
	AutoK  bool
	FixedK int
	MinK   int
	MaxK   int
}

func DefaultClusteringConfig() ClusteringConfig {
	return ClusteringConfig{AutoK: true, FixedK: 5, MinK: 2, MaxK: 12}
}

// SimilarConversation is one FindSimilar result row.
type SimilarConversation struct {
	ConversationID string   `json:"conversation_id"`
	Title          string   `json:"title"`
	Similarity     float64  `json:"similarity"`
	Concepts       []string `json:"concepts"`
}

// ClusteringService partitions analyzed conversations into labeled semantic
// groups and serves the cluster read surface.
type ClusteringService interface {
	// ClusterAll runs one full clustering pass over the corpus. A false
	// return means the run was skipped or failed; the previously stored
	// cluster set is untouched in either case.
	ClusterAll(ctx context.Context) bool

	GetAllClusters(ctx context.Context) ([]models.ConversationCluster, error)
	GetClusterByID(ctx context.Context, clusterID string) (*models.ConversationCluster, error)
	GetConversationCluster(ctx context.Context, conversationID string) (*models.ConversationCluster, error)
	FindSimilar(ctx context.Context, conversationID string, threshold float64) ([]SimilarConversation, error)
}

type clusteringService struct {
	conversations mongorepo.ConversationRepository
	clusters      pgrepo.ClusterRepository
	runs          pgrepo.RunRepository
	analysis      AnalysisService
	llm           llm.Provider
	cache         cache.Cache
	cfg           ClusteringConfig
	logger        *logrus.Logger
}

func NewClusteringService(
	conversations mongorepo.ConversationRepository,
	clusters pgrepo.ClusterRepository,
	runs pgrepo.RunRepository,
	analysis AnalysisService,
	provider llm.Provider,
	c cache.Cache,
	cfg ClusteringConfig,
	logger *logrus.Logger,
) ClusteringService {
	return &clusteringService{
		conversations: conversations,
		clusters:      clusters,
		runs:          runs,
		analysis:      analysis,
		llm:           provider,
		cache:         c,
		cfg:           cfg,
		logger:        logger,
	}
}

// conversationData is one qualifying conversation: it has at least one
// analyzed message with a non-empty concept set and a valid embedding.
type conversationData struct {
	ConversationID string
	Title          string
	Embedding      []float64
	Concepts       []string
}

func (s *clusteringService) ClusterAll(ctx context.Context) bool {
	s.logger.Info("starting conversation clustering run")

	s.analyzeAllMessages(ctx)

	data, err := s.gatherConversationData(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to gather conversation data")
		return false
	}
	if len(data) < 2 {
		s.logger.WithField("conversations", len(data)).
			Warn("not enough conversations to form clusters")
		return false
	}

	vectors := make([][]float64, len(data))
	for i := range data {
		vectors[i] = data[i].Embedding
	}

	var (
		k       int
		kScores map[string]float64
	)
	if s.cfg.AutoK {
		selected, scores, ok := s.selectOptimalK(vectors)
		if !ok {
			s.logger.Warn("could not determine a suitable number of clusters")
			return false
		}
		k = selected
		kScores = scores
		s.logger.WithField("k", k).Info("auto-selected cluster count")
	} else {
		k = s.cfg.FixedK
		if len(data) < k {
			s.logger.WithFields(logrus.Fields{"conversations": len(data), "k": k}).
				Warn("not enough conversations for configured cluster count")
			return false
		}
	}

	res, err := kmeans.Run(vectors, k, kmeansSeed, kmeansRestarts)
	if err != nil {
		s.logger.WithError(err).Error("k-means clustering failed")
		return false
	}

	clusters := s.buildClusters(ctx, data, res)

	if err := s.clusters.ReplaceAll(ctx, clusters); err != nil {
		s.logger.WithError(err).Error("failed to replace cluster set")
		return false
	}
	if err := s.cache.Del(ctx, clusterListCacheKey); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate cluster cache")
	}

	run := &models.ClusteringRun{
		RunID:              fmt.Sprintf("run_%s", time.Now().UTC().Format("20060102_150405")),
		TotalConversations: len(data),
		ClustersCreated:    k,
		CreatedAt:          time.Now().UTC(),
	}
	if len(kScores) > 0 {
		if b, err := json.Marshal(kScores); err == nil {
			run.KScores = datatypes.JSON(b)
		}
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		s.logger.WithError(err).Error("failed to record clustering run")
		return false
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":        run.RunID,
		"conversations": len(data),
		"clusters":      k,
	}).Info("clustering run completed")
	return true
}

// analyzeAllMessages sweeps the analysis backlog before clustering. Failures
// only exclude the affected messages from this run.
func (s *clusteringService) analyzeAllMessages(ctx context.Context) {
	convos, err := s.conversations.ListAll(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to list conversations for analysis")
		return
	}

	total := 0
	for _, c := range convos {
		total += s.analysis.AnalyzeConversationMessages(ctx, c.ConversationID())
	}
	s.logger.WithField("analyzed", total).Debug("analysis backlog swept")
}

func (s *clusteringService) gatherConversationData(ctx context.Context) ([]conversationData, error) {
	convos, err := s.conversations.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var out []conversationData
	for _, c := range convos {
		id := c.ConversationID()
		emb := s.analysis.ConversationEmbedding(ctx, id)
		concepts := s.analysis.ConversationConcepts(ctx, id)
		if emb == nil || len(concepts) == 0 {
			continue
		}
		out = append(out, conversationData{
			ConversationID: id,
			Title:          c.Title,
			Embedding:      emb,
			Concepts:       concepts,
		})
	}
	return out, nil
}

// selectOptimalK sweeps candidate cluster counts and scores each partition
// with the cosine silhouette. Degenerate partitions (fewer than two distinct
// non-empty groups) are skipped. Returns ok=false when no candidate is valid.
func (s *clusteringService) selectOptimalK(vectors [][]float64) (int, map[string]float64, bool) {
	n := len(vectors)
	kMin := s.cfg.MinK
	if kMin < 2 {
		kMin = 2
	}
	kMax := s.cfg.MaxK
	if kMax > n-1 {
		kMax = n - 1
	}
	if kMax < 2 || kMin > kMax {
		return 0, nil, false
	}

	scores := make(map[string]float64)
	bestK, bestScore := 0, -1.0
	for k := kMin; k <= kMax; k++ {
		res, err := kmeans.Run(vectors, k, kmeansSeed, kmeansRestarts)
		if err != nil {
			s.logger.WithError(err).WithField("k", k).Warn("k-means failed during k sweep")
			continue
		}
		if kmeans.DistinctClusters(res.Labels) < 2 {
			continue
		}

		score := kmeans.Silhouette(vectors, res.Labels)
		scores[strconv.Itoa(k)] = score
		if score > bestScore {
			bestScore = score
			bestK = k
		}
	}
	if bestK == 0 {
		return 0, nil, false
	}
	return bestK, scores, true
}

func (s *clusteringService) buildClusters(ctx context.Context, data []conversationData, res *kmeans.Result) []models.ConversationCluster {
	now := time.Now().UTC()
	k := len(res.Centroids)
	out := make([]models.ConversationCluster, 0, k)

	for c := 0; c < k; c++ {
		var members []conversationData
		for i, label := range res.Labels {
			if label == c {
				members = append(members, data[i])
			}
		}

		cluster := models.ConversationCluster{
			ClusterID: fmt.Sprintf("cluster_%d", c),
			Centroid:  pgvector.NewVector(toFloat32(res.Centroids[c])),
			CreatedAt: now,
			UpdatedAt: now,
		}

		if len(members) == 0 {
			cluster.Label = fmt.Sprintf("Miscellaneous Topics %d", c+1)
			cluster.Description = "Various technical discussions and problem-solving conversations."
			cluster.ConversationIDs = []string{}
			cluster.KeyConcepts = []string{}
			out = append(out, cluster)
			continue
		}

		ids := make([]string, 0, len(members))
		var allConcepts []string
		for _, m := range members {
			ids = append(ids, m.ConversationID)
			allConcepts = append(allConcepts, m.Concepts...)
		}

		top := topConcepts(allConcepts, topConceptsN)
		label, description := s.labelCluster(ctx, top)

		cluster.Label = label
		cluster.Description = description
		cluster.ConversationIDs = ids
		cluster.KeyConcepts = top
		out = append(out, cluster)

		s.logger.WithFields(logrus.Fields{"cluster_id": cluster.ClusterID, "label": label}).
			Debug("labeled cluster")
	}
	return out
}

// labelCluster asks the LLM for a title and description, falling back to a
// deterministic label built from the most frequent concept. Labeling errors
// never fail the run.
func (s *clusteringService) labelCluster(ctx context.Context, top []string) (string, string) {
	summary, err := s.llm.SummarizeCluster(ctx, top)
	if err != nil {
		s.logger.WithError(err).Warn("cluster labeling failed, using fallback label")
		return fallbackLabel(top)
	}
	return summary.Title, summary.Description
}

func fallbackLabel(top []string) (string, string) {
	if len(top) == 0 {
		return "General Technical Topics",
			"Various technical discussions and professional problem-solving conversations."
	}

	main := titleCase(strings.ReplaceAll(top[0], "-", " "))
	label := main + " & Related Topics"
	description := fmt.Sprintf(
		"Professional discussions focused on %s and related technical concepts. Learn practical approaches to common challenges in this domain.",
		strings.ToLower(main),
	)
	return label, description
}

// topConcepts ranks concepts by frequency (ties broken alphabetically for
// determinism) and returns at most n of them.
func topConcepts(concepts []string, n int) []string {
	counts := map[string]int{}
	for _, c := range concepts {
		counts[c]++
	}

	names := make([]string, 0, len(counts))
	for c := range counts {
		names = append(names, c)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	if len(names) > n {
		names = names[:n]
	}
	return names
}

func (s *clusteringService) GetAllClusters(ctx context.Context) ([]models.ConversationCluster, error) {
	const op = "ClusteringService.GetAllClusters"

	var cached []models.ConversationCluster
	if hit, err := s.cache.GetJSON(ctx, clusterListCacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	rows, err := s.clusters.ListAll(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list clusters", err)
	}

	if err := s.cache.SetJSON(ctx, clusterListCacheKey, rows, clusterListCacheTTL); err != nil {
		s.logger.WithError(err).Warn("failed to cache cluster list")
	}
	return rows, nil
}

func (s *clusteringService) GetClusterByID(ctx context.Context, clusterID string) (*models.ConversationCluster, error) {
	const op = "ClusteringService.GetClusterByID"

	if clusterID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "cluster_id is required", nil)
	}

	row, err := s.clusters.GetByClusterID(ctx, clusterID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "cluster not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get cluster", err)
	}
	return row, nil
}

func (s *clusteringService) GetConversationCluster(ctx context.Context, conversationID string) (*models.ConversationCluster, error) {
	const op = "ClusteringService.GetConversationCluster"

	if conversationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}

	row, err := s.clusters.GetByConversationID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found in any cluster", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation cluster", err)
	}
	return row, nil
}

func (s *clusteringService) FindSimilar(ctx context.Context, conversationID string, threshold float64) ([]SimilarConversation, error) {
	const op = "ClusteringService.FindSimilar"

	if conversationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}

	target := s.analysis.ConversationEmbedding(ctx, conversationID)
	if target == nil {
		return []SimilarConversation{}, nil
	}

	data, err := s.gatherConversationData(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to gather conversation data", err)
	}

	out := []SimilarConversation{}
	for _, d := range data {
		if d.ConversationID == conversationID {
			continue
		}
		sim := kmeans.CosineSimilarity(target, d.Embedding)
		if sim >= threshold {
			out = append(out, SimilarConversation{
				ConversationID: d.ConversationID,
				Title:          d.Title,
				Similarity:     sim,
				Concepts:       d.Concepts,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > similarLimit {
		out = out[:similarLimit]
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
