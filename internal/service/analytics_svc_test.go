package service

import (
	"context"
	"testing"
	"time"

	applog "marketpulse/pkg/logger"
)

func newAnalyticsUnderTest(t *testing.T) (*AnalyticsService, *MarketDataService) {
	market, products, marketRepo, _ := newMarketTestService(t)
	svc := NewAnalyticsService(products, marketRepo, applog.Nop())
	return svc, market
}

func TestAnalyticsService_Stats(t *testing.T) {
	svc, market := newAnalyticsUnderTest(t)
	ctx := context.Background()
	now := time.Now()

	market.ResolveAndRecord(ctx, record("Laptop A", "VendorA", 100000, now.Add(-time.Hour)))
	market.ResolveAndRecord(ctx, record("Laptop B", "VendorB", 200000, now.Add(-time.Hour)))

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Products != 2 {
		t.Errorf("商品数 = %d, want 2", stats.Products)
	}
	if stats.Observations != 2 {
		t.Errorf("历史行数 = %d, want 2", stats.Observations)
	}
	if len(stats.Vendors) != 2 {
		t.Errorf("供应商数 = %d, want 2", len(stats.Vendors))
	}
}

func TestAnalyticsService_TopMovers(t *testing.T) {
	svc, market := newAnalyticsUnderTest(t)
	ctx := context.Background()
	now := time.Now()

	// 大幅异动的商品
	market.ResolveAndRecord(ctx, record("Laptop A", "VendorA", 100000, now.AddDate(0, 0, -1)))
	market.ResolveAndRecord(ctx, record("Laptop A", "VendorA", 110000, now))
	// 微小变化（<= 0.1%），不上榜
	market.ResolveAndRecord(ctx, record("Laptop B", "VendorA", 100000, now.AddDate(0, 0, -1)))
	market.ResolveAndRecord(ctx, record("Laptop B", "VendorA", 100050, now))
	// 只有一次观测，不上榜
	market.ResolveAndRecord(ctx, record("Laptop C", "VendorA", 50000, now))

	movers, err := svc.TopMovers(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(movers) != 1 {
		t.Fatalf("异动数 = %d, want 1", len(movers))
	}
	if movers[0].Name != "Laptop A" {
		t.Errorf("榜首 = %s, want Laptop A", movers[0].Name)
	}
	if movers[0].Trend != "up" {
		t.Errorf("趋势 = %s, want up", movers[0].Trend)
	}
	if movers[0].ChangePct != 10 {
		t.Errorf("变化 = %.2f%%, want 10", movers[0].ChangePct)
	}
}

func TestAnalyticsService_DiscoveryFeed(t *testing.T) {
	svc, market := newAnalyticsUnderTest(t)
	ctx := context.Background()
	now := time.Now()

	// 波动 5000
	market.ResolveAndRecord(ctx, record("Laptop A", "VendorA", 100000, now.AddDate(0, 0, -1)))
	market.ResolveAndRecord(ctx, record("Laptop A", "VendorA", 105000, now))
	// 波动 20000，应排在前面
	market.ResolveAndRecord(ctx, record("Laptop B", "VendorB", 200000, now.AddDate(0, 0, -1)))
	market.ResolveAndRecord(ctx, record("Laptop B", "VendorB", 180000, now))

	items, err := svc.DiscoveryFeed(ctx, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("条目数 = %d, want 2", len(items))
	}
	if items[0].Name != "Laptop B" {
		t.Errorf("榜首 = %s, want Laptop B", items[0].Name)
	}
	if items[0].Volatility != 20000 {
		t.Errorf("波动度 = %.2f, want 20000", items[0].Volatility)
	}
}

func TestAnalyticsService_SearchListings(t *testing.T) {
	svc, market := newAnalyticsUnderTest(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// 六个匹配商品，价格拉开，三档各两个
	prices := []float64{600000, 500000, 400000, 300000, 200000, 100000}
	names := []string{"Laptop P1", "Laptop P2", "Laptop S1", "Laptop S2", "Laptop V1", "Laptop V2"}
	for i := range names {
		market.ResolveAndRecord(ctx, record(names[i], "VendorA", prices[i], at))
	}
	// 同一商品的更低报价不影响去重后的最高价
	market.ResolveAndRecord(ctx, record("Laptop P1", "VendorA", 550000, at.AddDate(0, 0, 1)))
	// 不匹配检索词的商品
	market.ResolveAndRecord(ctx, record("Desktop X", "VendorA", 999999, at))

	result, err := svc.SearchListings(ctx, "laptop")
	if err != nil {
		t.Fatal(err)
	}
	if result.Count != 6 {
		t.Fatalf("命中数 = %d, want 6", result.Count)
	}
	if result.MaxPrice != 600000 || result.MinPrice != 100000 {
		t.Errorf("价格区间 = [%.0f, %.0f], want [100000, 600000]", result.MinPrice, result.MaxPrice)
	}
	if len(result.Premium.Listings) != 2 || len(result.Standard.Listings) != 2 || len(result.Value.Listings) != 2 {
		t.Errorf("分层 = %d/%d/%d, want 2/2/2",
			len(result.Premium.Listings), len(result.Standard.Listings), len(result.Value.Listings))
	}
	if result.Premium.Avg != 550000 {
		t.Errorf("高档均价 = %.2f, want 550000", result.Premium.Avg)
	}
	// 清单条目要带上登记时派生的品牌和标签
	for _, l := range result.Premium.Listings {
		if l.Brand != "Laptop" {
			t.Errorf("品牌 = %q, want Laptop", l.Brand)
		}
		if len(l.Tags) == 0 || l.Tags[0] != "laptop" {
			t.Errorf("标签 = %v, want 首项 laptop", l.Tags)
		}
	}
}

func TestAnalyticsService_SearchListings_NoHits(t *testing.T) {
	svc, _ := newAnalyticsUnderTest(t)

	result, err := svc.SearchListings(context.Background(), "不存在的商品")
	if err != nil {
		t.Fatal(err)
	}
	if result.Count != 0 {
		t.Errorf("命中数 = %d, want 0", result.Count)
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("Short", 15); got != "Short" {
		t.Errorf("shorten = %q, want Short", got)
	}
	if got := shorten("A Very Long Product Name Indeed", 15); got != "A Very Long Pro.." {
		t.Errorf("shorten = %q", got)
	}
	// 多字节名称按字符数截断，不能落在字节中间
	if got := shorten("联想拯救者游戏本高配版", 5); got != "联想拯救者.." {
		t.Errorf("shorten 多字节 = %q", got)
	}
}
