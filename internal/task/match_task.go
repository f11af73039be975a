package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"marketpulse/internal/service"
)

// ==================== MatchTask 身份匹配任务 ====================

// MatchTask 跨供应商身份匹配定时任务
// 策略：每日凌晨 2 点全量扫描一次（采集通常在夜间跑完之后）
type MatchTask struct {
	matcher *service.MatcherService
	cron    *cron.Cron
	timeout time.Duration
}

// NewMatchTask 创建身份匹配任务
func NewMatchTask(matcher *service.MatcherService) *MatchTask {
	return &MatchTask{
		matcher: matcher,
		cron:    cron.New(cron.WithSeconds()),
		timeout: 30 * time.Minute,
	}
}

// Start 启动定时任务
func (t *MatchTask) Start() {
	// 每日凌晨 2 点
	_, _ = t.cron.AddFunc("0 0 2 * * *", func() {
		t.RunOnce()
	})

	t.cron.Start()
	log.Println("[MatchTask] 已启动 (每日凌晨2点全量匹配)")
}

// Stop 停止任务
func (t *MatchTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("[MatchTask] 已停止")
}

// RunOnce 立即执行一轮匹配
// 失败整轮中止：已应用的合并各自独立无需回滚，下一轮重跑即可
func (t *MatchTask) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	log.Println("[MatchTask] 开始身份匹配扫描...")
	events, err := t.matcher.FindMatches(ctx)
	if err != nil {
		log.Printf("[MatchTask] 匹配扫描未完成: %v (已合并 %d 对，可安全重跑)", err, len(events))
		return
	}
	log.Printf("[MatchTask] 匹配扫描完成，合并 %d 对", len(events))
}
