package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"marketpulse/internal/service"
)

// ==================== HarvestTask 采集任务 ====================

// HarvestTask 类目采集定时任务
// 策略：每 6 小时采一轮配置的全部类目页
type HarvestTask struct {
	harvester  *service.HarvestService
	categories []string
	cron       *cron.Cron
	timeout    time.Duration
}

// NewHarvestTask 创建采集任务
func NewHarvestTask(harvester *service.HarvestService, categories []string) *HarvestTask {
	return &HarvestTask{
		harvester:  harvester,
		categories: categories,
		cron:       cron.New(cron.WithSeconds()),
		timeout:    4 * time.Hour,
	}
}

// Start 启动定时任务
func (t *HarvestTask) Start() {
	// 每 6 小时
	_, _ = t.cron.AddFunc("0 0 */6 * * *", func() {
		t.RunOnce()
	})

	t.cron.Start()
	log.Printf("[HarvestTask] 已启动 (每6小时采集 %d 个类目)", len(t.categories))
}

// Stop 停止任务
func (t *HarvestTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("[HarvestTask] 已停止")
}

// RunOnce 立即执行一轮采集
func (t *HarvestTask) RunOnce() {
	if len(t.categories) == 0 {
		log.Println("[HarvestTask] 未配置类目，跳过")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	report := t.harvester.Harvest(ctx, t.categories)
	log.Printf("[HarvestTask] 采集完成: %s", report.Summary())
	if report.SystemicFailure() {
		log.Printf("[HarvestTask] 警告: 本轮全部写入失败，存储疑似不可用")
	}
}
