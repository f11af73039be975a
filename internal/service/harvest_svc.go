package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketpulse/internal/scraper"
)

// ==================== 结果类型 ====================

// ItemStatus 单个商品页的处理结果标签
type ItemStatus string

const (
	ItemSaved         ItemStatus = "saved"          // 抓取成功并落库
	ItemEmpty         ItemStatus = "empty"          // 页面在但抓不出记录
	ItemExtractFailed ItemStatus = "extract_failed" // 抓取过程出错
	ItemInvalid       ItemStatus = "invalid"        // 记录缺字段，被存储层拒绝
	ItemStoreFailed   ItemStatus = "store_failed"   // 存储层不可用
)

// ItemOutcome 单条商品页的结果
type ItemOutcome struct {
	URL    string
	Status ItemStatus
	Err    error
}

// CategoryReport 单个类目（或批处理模式下单个供应商批次）的结果
type CategoryReport struct {
	CategoryURL  string
	Vendor       string
	Skipped      bool // 没有注册负责该地址的抓取器
	DiscoveryErr error
	Found        int
	Items        []ItemOutcome
}

// HarvestReport 一次采集运行的汇总
// 单条目/单类目失败从不中断整体运行，只计数；
// 仅当面向存储的写入全部失败时才算系统性失败
type HarvestReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Categories []CategoryReport
	Unmatched  []string

	Saved  int
	Failed int

	PersistAttempts int
	StoreFailures   int
}

// SystemicFailure 是否整轮存储不可用（唯一应当让进程以非零码退出的情形）
func (r *HarvestReport) SystemicFailure() bool {
	return r.PersistAttempts > 0 && r.StoreFailures == r.PersistAttempts
}

// Summary 一行人类可读的汇总
func (r *HarvestReport) Summary() string {
	return fmt.Sprintf("run=%s categories=%d saved=%d failed=%d unmatched=%d duration=%s",
		r.RunID, len(r.Categories), r.Saved, r.Failed, len(r.Unmatched),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
}

// ==================== 采集编排 ====================

// HarvestService 发现 -> 抓取 -> 落库 的采集编排器
// 同一供应商批次内严格串行（礼貌约束），类目与条目按输入顺序处理
type HarvestService struct {
	registry *scraper.Registry
	market   *MarketDataService
	log      *zap.SugaredLogger
}

// NewHarvestService 创建采集编排器
func NewHarvestService(registry *scraper.Registry, market *MarketDataService, log *zap.SugaredLogger) *HarvestService {
	return &HarvestService{
		registry: registry,
		market:   market,
		log:      log,
	}
}

func newReport() *HarvestReport {
	return &HarvestReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
}

// Harvest 类目采集模式：逐类目做发现 + 抓取
// 发现失败跳过整个类目（先释放供应商会话），继续下一个类目
func (s *HarvestService) Harvest(ctx context.Context, categories []string) *HarvestReport {
	report := newReport()
	s.log.Infow("开始类目采集", "run", report.RunID, "categories", len(categories))

	for _, catURL := range categories {
		report.Categories = append(report.Categories, s.harvestCategory(ctx, catURL, report))
	}

	report.FinishedAt = time.Now()
	s.log.Infow("类目采集完成", "summary", report.Summary())
	return report
}

func (s *HarvestService) harvestCategory(ctx context.Context, catURL string, report *HarvestReport) CategoryReport {
	cr := CategoryReport{CategoryURL: catURL}

	ext, ok := s.registry.Resolve(catURL)
	if !ok {
		s.log.Warnw("没有负责该类目的抓取器，跳过", "url", catURL)
		cr.Skipped = true
		return cr
	}
	cr.Vendor = ext.VendorName()

	// 无论发现失败、抓取中途出错还是正常走完，
	// 会话都在离开本类目前释放，不泄漏到下一个类目
	defer func() {
		if err := ext.Release(); err != nil {
			s.log.Warnw("释放供应商会话失败", "vendor", cr.Vendor, "err", err)
		}
	}()

	s.log.Infow("处理类目", "vendor", cr.Vendor, "url", catURL)

	links, err := ext.Discover(ctx, catURL)
	if err != nil {
		s.log.Errorw("类目发现失败，跳过", "vendor", cr.Vendor, "url", catURL, "err", err)
		cr.DiscoveryErr = err
		return cr
	}
	cr.Found = len(links)
	s.log.Infow("发现商品", "vendor", cr.Vendor, "count", len(links))

	for i, link := range links {
		s.log.Debugw("抓取条目", "vendor", cr.Vendor, "item", fmt.Sprintf("%d/%d", i+1, len(links)), "url", link)
		outcome := s.processItem(ctx, ext, link)
		cr.Items = append(cr.Items, outcome)
		s.tally(report, outcome)
	}
	return cr
}

// Batch 批处理模式：任意商品页地址列表先按供应商分组，再逐批串行抓取
// 分组保持供应商首次出现的顺序，组内保持输入顺序
func (s *HarvestService) Batch(ctx context.Context, urls []string) *HarvestReport {
	report := newReport()
	s.log.Infow("开始批处理采集", "run", report.RunID, "urls", len(urls))

	type vendorBatch struct {
		ext  scraper.Extractor
		urls []string
	}
	var order []string
	batches := make(map[string]*vendorBatch)

	for _, u := range urls {
		ext, ok := s.registry.Resolve(u)
		if !ok {
			s.log.Warnw("没有负责该地址的抓取器", "url", u)
			report.Unmatched = append(report.Unmatched, u)
			continue
		}
		name := ext.VendorName()
		b, seen := batches[name]
		if !seen {
			b = &vendorBatch{ext: ext}
			batches[name] = b
			order = append(order, name)
		}
		b.urls = append(b.urls, u)
	}

	for _, name := range order {
		b := batches[name]
		cr := CategoryReport{Vendor: name, Found: len(b.urls)}
		s.log.Infow("开始供应商批次", "vendor", name, "items", len(b.urls))

		func() {
			defer func() {
				if err := b.ext.Release(); err != nil {
					s.log.Warnw("释放供应商会话失败", "vendor", name, "err", err)
				}
			}()
			for _, u := range b.urls {
				outcome := s.processItem(ctx, b.ext, u)
				cr.Items = append(cr.Items, outcome)
				s.tally(report, outcome)
			}
		}()

		report.Categories = append(report.Categories, cr)
	}

	report.FinishedAt = time.Now()
	s.log.Infow("批处理采集完成", "summary", report.Summary())
	return report
}

// processItem 抓取单个商品页并落库，失败只打标签不向上抛
func (s *HarvestService) processItem(ctx context.Context, ext scraper.Extractor, link string) ItemOutcome {
	rec, err := ext.Extract(ctx, link)
	if err != nil {
		s.log.Warnw("抓取失败", "url", link, "err", err)
		return ItemOutcome{URL: link, Status: ItemExtractFailed, Err: err}
	}
	if rec == nil {
		s.log.Warnw("页面无有效数据", "url", link)
		return ItemOutcome{URL: link, Status: ItemEmpty}
	}

	err = s.market.ResolveAndRecord(ctx, rec)
	switch {
	case err == nil:
		s.log.Infow("已保存", "name", rec.Name, "vendor", rec.Vendor, "price", rec.Price.String())
		return ItemOutcome{URL: link, Status: ItemSaved}
	case errors.Is(err, ErrInvalidRecord):
		s.log.Warnw("记录无效，跳过", "url", link)
		return ItemOutcome{URL: link, Status: ItemInvalid, Err: err}
	default:
		s.log.Errorw("落库失败", "url", link, "err", err)
		return ItemOutcome{URL: link, Status: ItemStoreFailed, Err: err}
	}
}

func (s *HarvestService) tally(report *HarvestReport, outcome ItemOutcome) {
	switch outcome.Status {
	case ItemSaved:
		report.Saved++
		report.PersistAttempts++
	case ItemStoreFailed:
		report.Failed++
		report.PersistAttempts++
		report.StoreFailures++
	default:
		report.Failed++
	}
}
