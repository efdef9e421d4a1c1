package main

import (
	"context"
	"time"

	"RelayLane/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// QueueMaintenance 周期性补扫离线队列
// 正常情况下通道恢复会立即触发重放,该任务兜底处理错过的触发
// 实现 kratos transport.Server 接口,随应用一起启停
type QueueMaintenance struct {
	uc     *biz.BridgeUseCase
	helper *log.Helper
	cron   *cron.Cron
}

// newQueueMaintenance 创建队列维护定时任务
// 补扫每 5 分钟执行一次,队列深度报告每小时执行一次
func newQueueMaintenance(uc *biz.BridgeUseCase, logger log.Logger) (*QueueMaintenance, error) {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	qm := &QueueMaintenance{
		uc:     uc,
		helper: helper,
		cron:   c,
	}

	// 每 5 分钟整点执行
	// Cron 表达式：0 */5 * * * * （秒 分 时 日 月 周）
	if _, err := c.AddFunc("0 */5 * * * *", qm.sweep); err != nil {
		helper.Errorw("failed to register queue sweep cron job", "error", err)
		return nil, err
	}

	// 每小时整点报告队列深度,便于观察积压趋势
	if _, err := c.AddFunc("0 0 * * * *", qm.depthReport); err != nil {
		helper.Errorw("failed to register queue depth report cron job", "error", err)
		return nil, err
	}

	return qm, nil
}

// sweep 在存在活跃通道且队列非空时触发一次重放
func (qm *QueueMaintenance) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	status := qm.uc.Status(ctx)
	if status.QueueSize <= 0 || status.Draining {
		return
	}

	stats, err := qm.uc.TriggerDrain(ctx)
	if err != nil {
		// 无可用通道或并发重放均属正常,留给下一轮
		if biz.IsNotConnected(err) || biz.IsDrainInProgress(err) {
			qm.helper.Debugw("queue sweep skipped", "reason", err)
			return
		}
		qm.helper.Warnw("queue sweep failed", "error", err)
		return
	}

	qm.helper.Infow("queue sweep finished",
		"delivered", stats.Delivered,
		"requeued", stats.Requeued,
		"exhausted", stats.Exhausted,
		"dropped", stats.Dropped)
}

// depthReport 每小时记录一次队列深度与通道状态
func (qm *QueueMaintenance) depthReport() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status := qm.uc.Status(ctx)
	qm.helper.Infow("hourly queue depth report",
		"queue_size", status.QueueSize,
		"aggregate", string(status.Aggregate),
		"primary", string(status.Primary.Status),
		"secondary", string(status.Secondary.Status),
		"breaker", status.Breaker.StateName)
}

// Start 启动定时任务
func (qm *QueueMaintenance) Start(ctx context.Context) error {
	qm.cron.Start()
	qm.helper.Info("queue maintenance cron jobs started: sweep every 5 minutes, depth report hourly")
	return nil
}

// Stop 停止定时任务,等待进行中的补扫结束
func (qm *QueueMaintenance) Stop(ctx context.Context) error {
	stopCtx := qm.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}
