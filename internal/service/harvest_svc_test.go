package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketpulse/internal/model"
	"marketpulse/internal/scraper"
	applog "marketpulse/pkg/logger"
)

// ==================== 测试替身 ====================

// fakeExtractor 内存抓取器：按预置表返回发现结果与商品记录
type fakeExtractor struct {
	vendor      string
	links       []string
	discoverErr error
	records     map[string]*model.ScrapedRecord
	extractErr  map[string]error
	released    int
}

func (f *fakeExtractor) VendorName() string { return f.vendor }

func (f *fakeExtractor) Discover(context.Context, string) ([]string, error) {
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.links, nil
}

func (f *fakeExtractor) Extract(_ context.Context, productURL string) (*model.ScrapedRecord, error) {
	if err, ok := f.extractErr[productURL]; ok {
		return nil, err
	}
	return f.records[productURL], nil
}

func (f *fakeExtractor) Release() error {
	f.released++
	return nil
}

func fakeRecord(name, vendor string, price float64) *model.ScrapedRecord {
	return &model.ScrapedRecord{
		Name:       name,
		Vendor:     vendor,
		Price:      decimal.NewFromFloat(price),
		IsInStock:  true,
		ObservedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newHarvestUnderTest(t *testing.T, extractors map[string]*fakeExtractor) (*HarvestService, *MarketDataService) {
	market, _, _, _ := newMarketTestService(t)
	registry := scraper.NewRegistry()
	for host, ext := range extractors {
		registry.Register(ext, host)
	}
	return NewHarvestService(registry, market, applog.Nop()), market
}

// ==================== 类目采集测试 ====================

// 单个类目发现失败只跳过该类目，其余类目照常处理
func TestHarvestService_Harvest_DiscoveryFailureIsolated(t *testing.T) {
	broken := &fakeExtractor{
		vendor:      "VendorA",
		discoverErr: errors.New("页面加载超时"),
	}
	healthy := &fakeExtractor{
		vendor: "VendorB",
		links:  []string{"https://b.example/product/1", "https://b.example/product/2"},
		records: map[string]*model.ScrapedRecord{
			"https://b.example/product/1": fakeRecord("Laptop B1", "VendorB", 100000),
			"https://b.example/product/2": fakeRecord("Laptop B2", "VendorB", 200000),
		},
	}
	svc, _ := newHarvestUnderTest(t, map[string]*fakeExtractor{
		"a.example": broken,
		"b.example": healthy,
	})

	report := svc.Harvest(context.Background(), []string{
		"https://a.example/category/laptops",
		"https://b.example/category/laptops",
	})

	if len(report.Categories) != 2 {
		t.Fatalf("类目报告数 = %d, want 2", len(report.Categories))
	}
	if report.Categories[0].DiscoveryErr == nil {
		t.Error("故障类目应记录发现错误")
	}
	if report.Categories[1].DiscoveryErr != nil {
		t.Errorf("健康类目不应受影响: %v", report.Categories[1].DiscoveryErr)
	}
	if report.Saved != 2 {
		t.Errorf("落库数 = %d, want 2", report.Saved)
	}
	if report.SystemicFailure() {
		t.Error("部分类目失败不构成系统性失败")
	}

	// 发现失败的路径也必须释放会话
	if broken.released != 1 {
		t.Errorf("故障抓取器释放次数 = %d, want 1", broken.released)
	}
	if healthy.released != 1 {
		t.Errorf("健康抓取器释放次数 = %d, want 1", healthy.released)
	}
}

// 没有注册抓取器的类目标记跳过，不报错
func TestHarvestService_Harvest_UnknownVendorSkipped(t *testing.T) {
	svc, _ := newHarvestUnderTest(t, map[string]*fakeExtractor{})

	report := svc.Harvest(context.Background(), []string{"https://unknown.example/category/x"})
	if len(report.Categories) != 1 {
		t.Fatalf("类目报告数 = %d, want 1", len(report.Categories))
	}
	if !report.Categories[0].Skipped {
		t.Error("未知供应商的类目应标记跳过")
	}
	if report.Saved != 0 || report.Failed != 0 {
		t.Error("跳过的类目不应计入成败")
	}
}

// 单条目失败只打标签，不影响同类目其余条目
func TestHarvestService_Harvest_ItemFailuresTagged(t *testing.T) {
	ext := &fakeExtractor{
		vendor: "VendorA",
		links: []string{
			"https://a.example/product/ok",
			"https://a.example/product/broken",
			"https://a.example/product/empty",
			"https://a.example/product/invalid",
		},
		records: map[string]*model.ScrapedRecord{
			"https://a.example/product/ok": fakeRecord("Laptop A", "VendorA", 100000),
			// empty: records 里没有条目 -> (nil, nil)
			"https://a.example/product/invalid": fakeRecord("", "VendorA", 100000),
		},
		extractErr: map[string]error{
			"https://a.example/product/broken": errors.New("选择器失效"),
		},
	}
	svc, _ := newHarvestUnderTest(t, map[string]*fakeExtractor{"a.example": ext})

	report := svc.Harvest(context.Background(), []string{"https://a.example/category/laptops"})
	if report.Saved != 1 {
		t.Errorf("落库数 = %d, want 1", report.Saved)
	}
	if report.Failed != 3 {
		t.Errorf("失败数 = %d, want 3", report.Failed)
	}

	wantStatus := map[string]ItemStatus{
		"https://a.example/product/ok":      ItemSaved,
		"https://a.example/product/broken":  ItemExtractFailed,
		"https://a.example/product/empty":   ItemEmpty,
		"https://a.example/product/invalid": ItemInvalid,
	}
	for _, item := range report.Categories[0].Items {
		if item.Status != wantStatus[item.URL] {
			t.Errorf("%s 状态 = %s, want %s", item.URL, item.Status, wantStatus[item.URL])
		}
	}
}

// ==================== 批处理测试 ====================

// 地址先按供应商分组（保持首见顺序），组内保持输入顺序；
// 无人认领的地址进 Unmatched
func TestHarvestService_Batch_GroupsByVendor(t *testing.T) {
	extA := &fakeExtractor{
		vendor: "VendorA",
		records: map[string]*model.ScrapedRecord{
			"https://a.example/product/1": fakeRecord("Laptop A1", "VendorA", 100000),
			"https://a.example/product/2": fakeRecord("Laptop A2", "VendorA", 200000),
		},
	}
	extB := &fakeExtractor{
		vendor: "VendorB",
		records: map[string]*model.ScrapedRecord{
			"https://b.example/product/1": fakeRecord("Laptop B1", "VendorB", 150000),
		},
	}
	svc, _ := newHarvestUnderTest(t, map[string]*fakeExtractor{
		"a.example": extA,
		"b.example": extB,
	})

	// 交错输入：A, B, A + 一个无人认领的地址
	report := svc.Batch(context.Background(), []string{
		"https://a.example/product/1",
		"https://b.example/product/1",
		"https://a.example/product/2",
		"https://nobody.example/product/9",
	})

	if len(report.Unmatched) != 1 {
		t.Fatalf("无人认领数 = %d, want 1", len(report.Unmatched))
	}
	if len(report.Categories) != 2 {
		t.Fatalf("批次数 = %d, want 2", len(report.Categories))
	}
	if report.Categories[0].Vendor != "VendorA" || report.Categories[0].Found != 2 {
		t.Errorf("首批 = %s/%d, want VendorA/2", report.Categories[0].Vendor, report.Categories[0].Found)
	}
	if report.Categories[1].Vendor != "VendorB" || report.Categories[1].Found != 1 {
		t.Errorf("次批 = %s/%d, want VendorB/1", report.Categories[1].Vendor, report.Categories[1].Found)
	}
	if report.Saved != 3 {
		t.Errorf("落库数 = %d, want 3", report.Saved)
	}

	// 每个供应商批次各释放一次会话
	if extA.released != 1 || extB.released != 1 {
		t.Errorf("释放次数 = %d/%d, want 1/1", extA.released, extB.released)
	}
}

// ==================== 系统性失败测试 ====================

// 面向存储的写入全部失败才算系统性失败
func TestHarvestService_SystemicFailure(t *testing.T) {
	ext := &fakeExtractor{
		vendor: "VendorA",
		links: []string{
			"https://a.example/product/1",
			"https://a.example/product/2",
		},
		records: map[string]*model.ScrapedRecord{
			"https://a.example/product/1": fakeRecord("Laptop A1", "VendorA", 100000),
			"https://a.example/product/2": fakeRecord("Laptop A2", "VendorA", 200000),
		},
	}

	market, _, _, db := newMarketTestService(t)
	registry := scraper.NewRegistry()
	registry.Register(ext, "a.example")
	svc := NewHarvestService(registry, market, applog.Nop())

	// 模拟存储整体不可用
	if err := db.Migrator().DropTable(&model.PriceObservation{}); err != nil {
		t.Fatal(err)
	}

	report := svc.Harvest(context.Background(), []string{"https://a.example/category/laptops"})
	if report.Saved != 0 {
		t.Errorf("落库数 = %d, want 0", report.Saved)
	}
	if report.PersistAttempts != 2 || report.StoreFailures != 2 {
		t.Errorf("写入尝试/失败 = %d/%d, want 2/2", report.PersistAttempts, report.StoreFailures)
	}
	if !report.SystemicFailure() {
		t.Error("全部写入失败应判定为系统性失败")
	}
}

// 没有任何写入尝试（比如全部类目跳过）不算系统性失败
func TestHarvestReport_NoAttemptsNotSystemic(t *testing.T) {
	report := &HarvestReport{}
	if report.SystemicFailure() {
		t.Error("零尝试不构成系统性失败")
	}
}
