package workers

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kenmurphy/anthropic-mastery/internal/models"
	"github.com/kenmurphy/anthropic-mastery/internal/services"
	"github.com/kenmurphy/anthropic-mastery/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessageRepo struct {
	mu          sync.Mutex
	msgs        map[string]*models.Message
	unprocessed int64
	total       int64
}

func newStubMessageRepo(unprocessed, total int64) *stubMessageRepo {
	return &stubMessageRepo{msgs: map[string]*models.Message{}, unprocessed: unprocessed, total: total}
}

func (r *stubMessageRepo) Create(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.msgs[m.MessageID] = &cp
	return nil
}

func (r *stubMessageRepo) GetByMessageID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *stubMessageRepo) ListByConversation(context.Context, string) ([]models.Message, error) {
	return nil, nil
}

func (r *stubMessageRepo) ListProcessed(context.Context, string) ([]models.Message, error) {
	return nil, nil
}

func (r *stubMessageRepo) ListUnprocessed(context.Context, string) ([]models.Message, error) {
	return nil, nil
}

func (r *stubMessageRepo) CountUnprocessed(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unprocessed, nil
}

func (r *stubMessageRepo) Count(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total, nil
}

func (r *stubMessageRepo) SetAnalysis(context.Context, string, []string, []float64) error {
	return nil
}

type stubRunRepo struct {
	mu     sync.Mutex
	latest *models.ClusteringRun
}

func (r *stubRunRepo) Insert(_ context.Context, run *models.ClusteringRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = run
	return nil
}

func (r *stubRunRepo) Latest(context.Context) (*models.ClusteringRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return nil, utils.ErrNotFound
	}
	cp := *r.latest
	return &cp, nil
}

type stubAnalysis struct {
	mu       sync.Mutex
	analyzed []string
}

func (a *stubAnalysis) AnalyzeMessage(_ context.Context, msg *models.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyzed = append(a.analyzed, msg.MessageID)
	return true
}

func (a *stubAnalysis) AnalyzeConversationMessages(context.Context, string) int { return 0 }

func (a *stubAnalysis) ConversationEmbedding(context.Context, string) []float64 { return nil }

func (a *stubAnalysis) ConversationConcepts(context.Context, string) []string { return nil }

func (a *stubAnalysis) analyzedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.analyzed))
	copy(out, a.analyzed)
	return out
}

// stubClustering counts ClusterAll calls and can block until released, to
// hold the worker's in-progress flag open during a test.
type stubClustering struct {
	mu      sync.Mutex
	runs    int
	blockCh chan struct{}
}

func (c *stubClustering) ClusterAll(context.Context) bool {
	c.mu.Lock()
	c.runs++
	ch := c.blockCh
	c.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return true
}

func (c *stubClustering) runCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

func (c *stubClustering) GetAllClusters(context.Context) ([]models.ConversationCluster, error) {
	return nil, nil
}

func (c *stubClustering) GetClusterByID(context.Context, string) (*models.ConversationCluster, error) {
	return nil, utils.ErrNotFound
}

func (c *stubClustering) GetConversationCluster(context.Context, string) (*models.ConversationCluster, error) {
	return nil, utils.ErrNotFound
}

func (c *stubClustering) FindSimilar(context.Context, string, float64) ([]services.SimilarConversation, error) {
	return nil, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestWorker(msgs *stubMessageRepo, runs *stubRunRepo, clustering *stubClustering, cfg ClusteringWorkerConfig) (*ClusteringWorker, *stubAnalysis) {
	analysis := &stubAnalysis{}
	w := NewClusteringWorker(msgs, runs, analysis, clustering, cfg, quietLogger())
	return w, analysis
}

func TestForceClusterRejectsConcurrentRun(t *testing.T) {
	clustering := &stubClustering{blockCh: make(chan struct{})}
	w, _ := newTestWorker(newStubMessageRepo(0, 0), &stubRunRepo{}, clustering, DefaultClusteringWorkerConfig())

	require.True(t, w.ForceCluster())
	require.Eventually(t, func() bool { return clustering.runCount() == 1 }, time.Second, 5*time.Millisecond)

	// Second call loses while the first run is still holding the flag.
	assert.True(t, w.IsInProgress())
	assert.False(t, w.ForceCluster())

	close(clustering.blockCh)
	require.Eventually(t, func() bool { return !w.IsInProgress() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, clustering.runCount())

	// After release a new run can start.
	clustering.mu.Lock()
	clustering.blockCh = nil
	clustering.mu.Unlock()
	assert.True(t, w.ForceCluster())
	require.Eventually(t, func() bool { return clustering.runCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestShouldTriggerDisabled(t *testing.T) {
	cfg := DefaultClusteringWorkerConfig()
	cfg.Enabled = false
	w, _ := newTestWorker(newStubMessageRepo(10, 10), &stubRunRepo{}, &stubClustering{}, cfg)

	should, reason := w.shouldTrigger(context.Background())
	assert.False(t, should)
	assert.Equal(t, "background clustering is disabled", reason)
}

func TestShouldTriggerMessageThresholdWinsOverBootstrap(t *testing.T) {
	// No runs exist, so the bootstrap rule would also fire; the message
	// threshold is checked first and its reason wins.
	w, _ := newTestWorker(newStubMessageRepo(3, 5), &stubRunRepo{}, &stubClustering{}, DefaultClusteringWorkerConfig())

	should, reason := w.shouldTrigger(context.Background())
	assert.True(t, should)
	assert.Equal(t, "3 unprocessed messages (threshold: 3)", reason)
}

func TestShouldTriggerTimeThreshold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	runs := &stubRunRepo{latest: &models.ClusteringRun{
		RunID:     "run_20250601_111500",
		CreatedAt: now.Add(-45 * time.Minute),
	}}
	w, _ := newTestWorker(newStubMessageRepo(1, 10), runs, &stubClustering{}, DefaultClusteringWorkerConfig())

	should, reason := w.shouldTrigger(context.Background())
	assert.True(t, should)
	assert.Equal(t, "45 minutes since last clustering (threshold: 30)", reason)
}

func TestShouldTriggerBootstrapWhenNoRunsExist(t *testing.T) {
	w, _ := newTestWorker(newStubMessageRepo(1, 2), &stubRunRepo{}, &stubClustering{}, DefaultClusteringWorkerConfig())

	should, reason := w.shouldTrigger(context.Background())
	assert.True(t, should)
	assert.Equal(t, "no clustering runs exist and message volume is sufficient", reason)
}

func TestShouldNotTriggerBootstrapWithTooFewMessages(t *testing.T) {
	w, _ := newTestWorker(newStubMessageRepo(1, 1), &stubRunRepo{}, &stubClustering{}, DefaultClusteringWorkerConfig())

	should, reason := w.shouldTrigger(context.Background())
	assert.False(t, should)
	assert.Contains(t, reason, "only 1 messages exist")
}

func TestShouldNotTriggerAfterRecentRun(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	runs := &stubRunRepo{latest: &models.ClusteringRun{
		RunID:     "run_20250601_115500",
		CreatedAt: now.Add(-5 * time.Minute),
	}}
	w, _ := newTestWorker(newStubMessageRepo(1, 10), runs, &stubClustering{}, DefaultClusteringWorkerConfig())

	should, reason := w.shouldTrigger(context.Background())
	assert.False(t, should)
	assert.Equal(t, "conditions not met (unprocessed: 1, minutes: 5)", reason)
}

func TestOnNewMessageAnalyzesAndTriggersClustering(t *testing.T) {
	msgs := newStubMessageRepo(3, 5)
	msg := &models.Message{MessageID: "msg-1", ConversationID: "conv-1", Content: "hello"}
	require.NoError(t, msgs.Create(context.Background(), msg))

	clustering := &stubClustering{}
	w, analysis := newTestWorker(msgs, &stubRunRepo{}, clustering, DefaultClusteringWorkerConfig())

	w.OnNewMessage("msg-1")

	require.Eventually(t, func() bool { return clustering.runCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"msg-1"}, analysis.analyzedIDs())
	require.Eventually(t, func() bool { return !w.IsInProgress() }, time.Second, 5*time.Millisecond)
}

func TestOnNewMessageDisabledDoesNothing(t *testing.T) {
	cfg := DefaultClusteringWorkerConfig()
	cfg.Enabled = false

	clustering := &stubClustering{}
	w, analysis := newTestWorker(newStubMessageRepo(10, 10), &stubRunRepo{}, clustering, cfg)

	w.OnNewMessage("msg-1")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, clustering.runCount())
	assert.Empty(t, analysis.analyzedIDs())
}

func TestOnNewMessageMissingMessageSkipsClustering(t *testing.T) {
	clustering := &stubClustering{}
	w, analysis := newTestWorker(newStubMessageRepo(10, 10), &stubRunRepo{}, clustering, DefaultClusteringWorkerConfig())

	w.OnNewMessage("msg-404")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, clustering.runCount())
	assert.Empty(t, analysis.analyzedIDs())
}

func TestStatusReportsTriggerStateAndLatestRun(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	runs := &stubRunRepo{latest: &models.ClusteringRun{
		RunID:              "run_20250601_111500",
		TotalConversations: 7,
		ClustersCreated:    3,
		CreatedAt:          now.Add(-45 * time.Minute),
	}}
	w, _ := newTestWorker(newStubMessageRepo(1, 10), runs, &stubClustering{}, DefaultClusteringWorkerConfig())

	st := w.Status(context.Background())
	assert.True(t, st.Enabled)
	assert.False(t, st.ClusteringInProgress)
	assert.Equal(t, int64(1), st.UnprocessedMessages)
	require.NotNil(t, st.MinutesSinceLastRun)
	assert.Equal(t, 45, *st.MinutesSinceLastRun)
	assert.True(t, st.ShouldTrigger)
	assert.Equal(t, DefaultClusteringWorkerConfig(), st.Configuration)
	require.NotNil(t, st.LatestRun)
	assert.Equal(t, "run_20250601_111500", st.LatestRun.RunID)
}

func TestStatusNoRunsYet(t *testing.T) {
	w, _ := newTestWorker(newStubMessageRepo(0, 1), &stubRunRepo{}, &stubClustering{}, DefaultClusteringWorkerConfig())

	st := w.Status(context.Background())
	assert.Nil(t, st.MinutesSinceLastRun)
	assert.Nil(t, st.LatestRun)
	assert.False(t, st.ShouldTrigger)
}
