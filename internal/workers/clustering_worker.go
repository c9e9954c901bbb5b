package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kenmurphy/anthropic-mastery/internal/models"
	mongorepo "github.com/kenmurphy/anthropic-mastery/internal/repositories/mongo"
	pgrepo "github.com/kenmurphy/anthropic-mastery/internal/repositories/postgres"
	"github.com/kenmurphy/anthropic-mastery/internal/services"
	"github.com/kenmurphy/anthropic-mastery/internal/utils"

	"github.com/sirupsen/logrus"
)

// nowFunc is a test seam for time-based trigger rules.
var nowFunc = time.Now

// ClusteringWorkerConfig holds the static trigger policy.
type ClusteringWorkerConfig struct {
	Enabled              bool `json:"enabled"`
	MessageThreshold     int  `json:"message_threshold"`
	TimeThresholdMinutes int  `json:"time_threshold_minutes"`
}

func DefaultClusteringWorkerConfig() ClusteringWorkerConfig {
	return ClusteringWorkerConfig{
		Enabled:              true,
		MessageThreshold:     3,
		TimeThresholdMinutes: 30,
	}
}

// Status is the observability snapshot of the worker.
type Status struct {
	Enabled              bool                   `json:"enabled"`
	ClusteringInProgress bool                   `json:"clustering_in_progress"`
	UnprocessedMessages  int64                  `json:"unprocessed_messages"`
	MinutesSinceLastRun  *int                   `json:"minutes_since_last_clustering"`
	ShouldTrigger        bool                   `json:"should_trigger_clustering"`
	TriggerReason        string                 `json:"trigger_reason"`
	Configuration        ClusteringWorkerConfig `json:"configuration"`
	LatestRun            *models.ClusteringRun  `json:"latest_clustering_run,omitempty"`
}

// ClusteringWorker schedules per-message analysis and decides when to run a
// full clustering pass. It is constructed once at the composition root; the
// in-process mutex is the only exclusion guard, so multi-process deployments
// need an external lock in front of ForceCluster and trigger evaluation.
type ClusteringWorker struct {
	messages   mongorepo.MessageRepository
	runs       pgrepo.RunRepository
	analysis   services.AnalysisService
	clustering services.ClusteringService
	cfg        ClusteringWorkerConfig
	logger     *logrus.Logger

	mu         sync.Mutex
	inProgress bool
}

func NewClusteringWorker(
	messages mongorepo.MessageRepository,
	runs pgrepo.RunRepository,
	analysis services.AnalysisService,
	clustering services.ClusteringService,
	cfg ClusteringWorkerConfig,
	logger *logrus.Logger,
) *ClusteringWorker {
	logger.WithFields(logrus.Fields{
		"enabled":           cfg.Enabled,
		"message_threshold": cfg.MessageThreshold,
		"time_threshold":    cfg.TimeThresholdMinutes,
	}).Info("clustering worker initialized")

	return &ClusteringWorker{
		messages:   messages,
		runs:       runs,
		analysis:   analysis,
		clustering: clustering,
		cfg:        cfg,
		logger:     logger,
	}
}

// OnNewMessage schedules analysis of one message and a trigger evaluation on
// a background goroutine. It never blocks the caller and never panics
// outward; all failures are logged.
func (w *ClusteringWorker) OnNewMessage(messageID string) {
	if !w.cfg.Enabled {
		w.logger.Debug("background clustering is disabled")
		return
	}

	go func() {
		defer w.recoverPanic("background analysis")
		w.analyzeAndMaybeCluster(context.Background(), messageID)
	}()
}

func (w *ClusteringWorker) analyzeAndMaybeCluster(ctx context.Context, messageID string) {
	log := w.logger.WithField("message_id", messageID)
	log.Debug("starting background analysis")

	msg, err := w.messages.GetByMessageID(ctx, messageID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			log.Warn("message not found for analysis")
		} else {
			log.WithError(err).Error("failed to load message for analysis")
		}
		return
	}

	if !w.analysis.AnalyzeMessage(ctx, msg) {
		log.Warn("message analysis failed; will retry on a later event")
	}

	should, reason := w.shouldTrigger(ctx)
	if !should {
		log.WithField("reason", reason).Debug("clustering not triggered")
		return
	}

	log.WithField("reason", reason).Info("triggering clustering run")
	if !w.tryAcquire() {
		log.Info("clustering already in progress, skipping")
		return
	}
	defer w.release()
	w.clustering.ClusterAll(ctx)
}

// ForceCluster starts a clustering run immediately, bypassing the trigger
// policy. The in-progress flag is acquired synchronously, so two rapid calls
// start at most one run; the loser returns false.
func (w *ClusteringWorker) ForceCluster() bool {
	if !w.tryAcquire() {
		return false
	}

	w.logger.Info("force clustering requested")
	go func() {
		defer w.release()
		defer w.recoverPanic("forced clustering")
		w.clustering.ClusterAll(context.Background())
	}()
	return true
}

func (w *ClusteringWorker) IsInProgress() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inProgress
}

func (w *ClusteringWorker) Status(ctx context.Context) Status {
	unprocessed, err := w.messages.CountUnprocessed(ctx)
	if err != nil {
		w.logger.WithError(err).Error("failed to count unprocessed messages")
	}

	var (
		minutes   *int
		latestRun *models.ClusteringRun
	)
	if run, err := w.runs.Latest(ctx); err == nil {
		latestRun = run
		m := w.minutesSince(run)
		minutes = &m
	} else if !errors.Is(err, utils.ErrNotFound) {
		w.logger.WithError(err).Error("failed to load latest clustering run")
	}

	should, reason := w.shouldTrigger(ctx)

	return Status{
		Enabled:              w.cfg.Enabled,
		ClusteringInProgress: w.IsInProgress(),
		UnprocessedMessages:  unprocessed,
		MinutesSinceLastRun:  minutes,
		ShouldTrigger:        should,
		TriggerReason:        reason,
		Configuration:        w.cfg,
		LatestRun:            latestRun,
	}
}

// shouldTrigger evaluates the trigger policy; the first matching rule wins.
// A missing last run does not satisfy the time rule, it only feeds the
// bootstrap rule.
func (w *ClusteringWorker) shouldTrigger(ctx context.Context) (bool, string) {
	if !w.cfg.Enabled {
		return false, "background clustering is disabled"
	}

	unprocessed, err := w.messages.CountUnprocessed(ctx)
	if err != nil {
		w.logger.WithError(err).Error("failed to count unprocessed messages")
		return false, "error counting unprocessed messages"
	}
	if unprocessed >= int64(w.cfg.MessageThreshold) {
		return true, fmt.Sprintf("%d unprocessed messages (threshold: %d)", unprocessed, w.cfg.MessageThreshold)
	}

	run, err := w.runs.Latest(ctx)
	switch {
	case err == nil:
		minutes := w.minutesSince(run)
		if minutes >= w.cfg.TimeThresholdMinutes {
			return true, fmt.Sprintf("%d minutes since last clustering (threshold: %d)", minutes, w.cfg.TimeThresholdMinutes)
		}
		return false, fmt.Sprintf("conditions not met (unprocessed: %d, minutes: %d)", unprocessed, minutes)
	case errors.Is(err, utils.ErrNotFound):
		total, err := w.messages.Count(ctx)
		if err != nil {
			w.logger.WithError(err).Error("failed to count messages")
			return false, "error counting messages"
		}
		if total >= 2 {
			return true, "no clustering runs exist and message volume is sufficient"
		}
		return false, fmt.Sprintf("no clustering runs yet and only %d messages exist", total)
	default:
		w.logger.WithError(err).Error("failed to load latest clustering run")
		return false, "error loading latest clustering run"
	}
}

func (w *ClusteringWorker) minutesSince(run *models.ClusteringRun) int {
	return int(nowFunc().Sub(run.CreatedAt).Minutes())
}

func (w *ClusteringWorker) tryAcquire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inProgress {
		return false
	}
	w.inProgress = true
	return true
}

func (w *ClusteringWorker) release() {
	w.mu.Lock()
	w.inProgress = false
	w.mu.Unlock()
}

func (w *ClusteringWorker) recoverPanic(unit string) {
	if r := recover(); r != nil {
		w.logger.WithField("panic", r).Errorf("%s panicked", unit)
	}
}
