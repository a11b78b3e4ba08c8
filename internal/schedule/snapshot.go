package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"privacymixer/internal/models"
	"privacymixer/internal/observability"
)

// DefaultSnapshotSpec runs every 15 minutes (cron with seconds field)
const DefaultSnapshotSpec = "0 */15 * * * *"

// PoolSource lists the current pool statistics
type PoolSource interface {
	AllPoolStats() []models.PoolStats
}

// SnapshotStore persists pool snapshots
type SnapshotStore interface {
	SaveSnapshots(ctx context.Context, pools []models.PoolStats, takenAt time.Time) error
}

// SnapshotJob records the pool statistics at a point in time
type SnapshotJob struct {
	pools   PoolSource
	store   SnapshotStore
	metrics *observability.Metrics
	now     func() time.Time
	log     *logrus.Entry
}

// NewSnapshotJob creates a job. store and metrics may be nil.
func NewSnapshotJob(pools PoolSource, store SnapshotStore, metrics *observability.Metrics) *SnapshotJob {
	return &SnapshotJob{
		pools:   pools,
		store:   store,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logrus.WithField("component", "snapshot"),
	}
}

// zeroSecond 获取当前时间的零秒时间戳
func zeroSecond(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// Run takes one snapshot
func (j *SnapshotJob) Run(ctx context.Context) error {
	takenAt := zeroSecond(j.now())
	pools := j.pools.AllPoolStats()
	j.log.Infof("> 开始记录池子快照, 共 %d 个池子", len(pools))

	for _, p := range pools {
		j.metrics.ObservePool(p)
	}

	if j.store != nil && len(pools) > 0 {
		if err := j.store.SaveSnapshots(ctx, pools, takenAt); err != nil {
			j.metrics.RecordMirrorFailure("snapshot")
			return fmt.Errorf("save snapshots: %w", err)
		}
	}

	j.metrics.RecordSnapshot(takenAt)
	return nil
}

// Start registers the job on a new cron scheduler and starts it. Stop the returned
// scheduler to end the schedule.
func (j *SnapshotJob) Start(ctx context.Context, spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultSnapshotSpec
	}

	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(spec, func() {
		if err := j.Run(ctx); err != nil {
			j.log.Errorf("> 记录池子快照失败: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("add snapshot job %q: %w", spec, err)
	}

	c.Start()
	j.log.WithField("spec", spec).Info("> 定时任务已启动")
	return c, nil
}
