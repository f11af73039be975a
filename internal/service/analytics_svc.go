package service

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/repository"
)

// ==================== 类型 ====================

// MarketStats 总览统计
type MarketStats struct {
	Products       int64    `json:"products"`
	Observations   int64    `json:"observations"`
	StockAlerts24h int64    `json:"stock_alerts"`
	Vendors        []string `json:"vendors"`
}

// ChartPoint 按日均价曲线上的一个点
type ChartPoint struct {
	Day      string  `json:"day"`
	AvgPrice float64 `json:"avg_price"`
}

// Mover 价格异动商品
type Mover struct {
	ProductID int64   `json:"id"`
	Name      string  `json:"name"`
	ShortName string  `json:"short_name"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Trend     string  `json:"trend"` // up / down
}

// FeedItem 波动度排序的发现条目
type FeedItem struct {
	ProductID  int64   `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Vendor     string  `json:"vendor"`
	InStock    bool    `json:"stock"`
	Volatility float64 `json:"score"`
}

// Listing 检索结果里的一条商品报价
type Listing struct {
	ProductID int64    `json:"id"`
	Name      string   `json:"name"`
	Brand     string   `json:"brand"`
	Tags      []string `json:"tags"`
	Price     float64  `json:"price"`
	Vendor    string   `json:"vendor"`
	InStock   bool     `json:"stock"`
}

// Tier 一个价格分层
type Tier struct {
	Listings []Listing `json:"listings"`
	Avg      float64   `json:"avg"`
}

// TieredSearch 检索 + 三档价格分层
type TieredSearch struct {
	Query    string  `json:"query"`
	Count    int     `json:"count"`
	MinPrice float64 `json:"min"`
	MaxPrice float64 `json:"max"`
	Premium  Tier    `json:"premium"`
	Standard Tier    `json:"standard"`
	Value    Tier    `json:"value"`
}

// ==================== 分析服务 ====================

// AnalyticsService 看板/检索消费的聚合读取口
// 本服务只读，写入一律走 MarketDataService
type AnalyticsService struct {
	products repository.ProductRepository
	market   repository.MarketDataRepository
	log      *zap.SugaredLogger
}

// NewAnalyticsService 创建分析服务
func NewAnalyticsService(
	products repository.ProductRepository,
	market repository.MarketDataRepository,
	log *zap.SugaredLogger,
) *AnalyticsService {
	return &AnalyticsService{products: products, market: market, log: log}
}

// Stats 总览统计：商品数、历史行数、24 小时缺货告警、供应商
func (s *AnalyticsService) Stats(ctx context.Context) (*MarketStats, error) {
	products, err := s.products.Count(ctx)
	if err != nil {
		return nil, err
	}
	observations, err := s.market.Count(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := s.market.CountOutOfStockSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	vendors, err := s.market.DistinctVendors(ctx, 5)
	if err != nil {
		return nil, err
	}
	return &MarketStats{
		Products:       products,
		Observations:   observations,
		StockAlerts24h: alerts,
		Vendors:        vendors,
	}, nil
}

// RecentDailyAverages 最近 7 天的按日均价曲线
func (s *AnalyticsService) RecentDailyAverages(ctx context.Context) ([]ChartPoint, error) {
	rows, err := s.market.HistorySince(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	points := DailyAverage(rows)
	if len(points) > 7 {
		points = points[len(points)-7:]
	}
	chart := make([]ChartPoint, 0, len(points))
	for _, p := range points {
		chart = append(chart, ChartPoint{Day: p.At.Format("Jan 02"), AvgPrice: p.Price})
	}
	return chart, nil
}

// TopMovers 按最近两次观测的百分比变化排序的异动榜
// 变化不足 0.1% 的不上榜
func (s *AnalyticsService) TopMovers(ctx context.Context, limit int) ([]Mover, error) {
	if limit <= 0 {
		limit = 5
	}
	products, err := s.products.List(ctx, 50)
	if err != nil {
		return nil, err
	}

	var movers []Mover
	for _, p := range products {
		recent, err := s.market.RecentByProduct(ctx, p.ID, 2)
		if err != nil {
			return nil, err
		}
		if len(recent) < 2 {
			continue
		}
		current, _ := recent[0].Price.Float64()
		old, _ := recent[1].Price.Float64()
		if old <= 0 {
			continue
		}
		pct := (current - old) / old * 100
		if math.Abs(pct) <= 0.1 {
			continue
		}
		trend := "down"
		if pct > 0 {
			trend = "up"
		}
		movers = append(movers, Mover{
			ProductID: p.ID,
			Name:      p.Name,
			ShortName: shorten(p.Name, 15),
			Price:     current,
			ChangePct: round2(pct),
			Trend:     trend,
		})
	}

	sort.Slice(movers, func(i, j int) bool {
		return math.Abs(movers[i].ChangePct) > math.Abs(movers[j].ChangePct)
	})
	if len(movers) > limit {
		movers = movers[:limit]
	}
	return movers, nil
}

// DiscoveryFeed 波动度（最近两次观测的绝对价差）排序的发现流
func (s *AnalyticsService) DiscoveryFeed(ctx context.Context, limit int) ([]FeedItem, error) {
	if limit <= 0 {
		limit = 8
	}
	products, err := s.products.List(ctx, 100)
	if err != nil {
		return nil, err
	}

	var items []FeedItem
	for _, p := range products {
		recent, err := s.market.RecentByProduct(ctx, p.ID, 2)
		if err != nil {
			return nil, err
		}
		if len(recent) == 0 {
			continue
		}
		current, _ := recent[0].Price.Float64()
		score := 0.0
		if len(recent) == 2 {
			old, _ := recent[1].Price.Float64()
			score = math.Abs(current - old)
		}
		items = append(items, FeedItem{
			ProductID:  p.ID,
			Name:       p.Name,
			Price:      current,
			Vendor:     recent[0].VendorName,
			InStock:    recent[0].IsInStock,
			Volatility: score,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Volatility > items[j].Volatility
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// SearchListings 按名称检索并做三档价格分层
// 每个商品取其最高报价行，整体按价格从高到低分成 高/中/低 三段
func (s *AnalyticsService) SearchListings(ctx context.Context, query string) (*TieredSearch, error) {
	result := &TieredSearch{Query: query}

	products, err := s.products.SearchByName(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return result, nil
	}

	byID := make(map[int64]string, len(products))
	brands := make(map[int64]string, len(products))
	tags := make(map[int64][]string, len(products))
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p.Name
		brands[p.ID] = p.Brand
		tags[p.ID] = p.Tags
		ids = append(ids, p.ID)
	}

	rows, err := s.market.ListByProductsPriceDesc(ctx, ids)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var listings []Listing
	for _, row := range rows {
		if _, ok := seen[row.ProductID]; ok {
			continue
		}
		seen[row.ProductID] = struct{}{}
		price, _ := row.Price.Float64()
		listings = append(listings, Listing{
			ProductID: row.ProductID,
			Name:      byID[row.ProductID],
			Brand:     brands[row.ProductID],
			Tags:      tags[row.ProductID],
			Price:     price,
			Vendor:    row.VendorName,
			InStock:   row.IsInStock,
		})
	}
	if len(listings) == 0 {
		return result, nil
	}

	result.Count = len(listings)
	result.MinPrice = listings[len(listings)-1].Price
	result.MaxPrice = listings[0].Price

	count := len(listings)
	pEnd := count / 3
	sEnd := count * 2 / 3
	result.Premium = makeTier(listings[:pEnd])
	result.Standard = makeTier(listings[pEnd:sEnd])
	result.Value = makeTier(listings[sEnd:])
	return result, nil
}

func makeTier(listings []Listing) Tier {
	tier := Tier{Listings: listings}
	if len(listings) == 0 {
		return tier
	}
	var sum float64
	for _, l := range listings {
		sum += l.Price
	}
	tier.Avg = round2(sum / float64(len(listings)))
	return tier
}

// 按 rune 截断，字节截断会把多字节字符切成乱码
func shorten(name string, max int) string {
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	return string(runes[:max]) + ".."
}
