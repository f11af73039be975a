package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/model"
	"marketpulse/internal/repository"
	"marketpulse/pkg/boost"
)

// ==================== 常量 ====================

const (
	// ForecastHorizon 预测展望期：7 个观测周期
	ForecastHorizon = 7
	// MinForecastHistory 预测需要的最少历史点数，不足返回“无预测”而非报错
	MinForecastHistory = 15
)

// 采购建议档位，阈值是固定策略常量而非学习所得
const (
	RecommendWait    = "📉 WAIT (Significant Drop)"
	RecommendCaution = "↘️ CAUTION (Slight Downtrend)"
	RecommendBuyNow  = "📈 BUY NOW (Price Rising)"
	RecommendStable  = "⚖️ SAFE (Stable Market)"
)

// ==================== 类型 ====================

// PricePoint 时间序上的一个价格点
type PricePoint struct {
	At    time.Time
	Price float64
}

// PriceOutlook 一次预测的产出
type PriceOutlook struct {
	CurrentPrice   float64 `json:"current_price"`
	PredictedPrice float64 `json:"predicted_price_7_days"`
	PercentChange  float64 `json:"percent_change"`
	Recommendation string  `json:"recommendation"`
}

// Projection 给图表渲染用的 7 天插值路径
type Projection struct {
	Dates          []string  `json:"dates"`
	Prices         []float64 `json:"prices"`
	Recommendation string    `json:"recommendation"`
}

// ==================== 预测服务 ====================

// ForecastService 短期价格预测
// 每次调用都从当前窗口重新训练，同样的历史和超参数产出同样的结果；不做缓存
type ForecastService struct {
	market repository.MarketDataRepository
	log    *zap.SugaredLogger
}

// NewForecastService 创建预测服务
func NewForecastService(market repository.MarketDataRepository, log *zap.SugaredLogger) *ForecastService {
	return &ForecastService{market: market, log: log}
}

// ForecastProduct 预测单个商品
func (s *ForecastService) ForecastProduct(ctx context.Context, productID int64) (*PriceOutlook, error) {
	rows, err := s.market.HistoryByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("读取价格历史失败: %w", err)
	}
	return Forecast(toPricePoints(rows)), nil
}

// ForecastGroup 预测一组商品的按日均价
func (s *ForecastService) ForecastGroup(ctx context.Context, productIDs []int64) (*PriceOutlook, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := s.market.HistoryByProducts(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("读取价格历史失败: %w", err)
	}
	return Forecast(DailyAverage(rows)), nil
}

// ==================== 核心预测 ====================

// Forecast 对一条时间有序的价格序列做 7 期预测
// 历史不足 MinForecastHistory 时返回 nil（不是错误）
//
// 训练标签是 7 期后价格与当期价格的比值而非绝对价位，预测值再乘回现价：
// 树模型无法外推训练区间外的绝对值，比值形式让趋势序列的预测保持正确方向，
// 平稳序列收敛到比值 1
func Forecast(points []PricePoint) *PriceOutlook {
	n := len(points)
	if n < MinForecastHistory {
		return nil
	}

	// 特征：年内天序、现价、1 期滞后、7 期滞后
	// 缺滞后或缺标签的边界行全部丢弃
	var (
		X [][]float64
		y []float64
	)
	for i := 7; i+ForecastHorizon < n; i++ {
		if points[i].Price <= 0 {
			continue
		}
		X = append(X, featureRow(points, i))
		y = append(y, points[i+ForecastHorizon].Price/points[i].Price)
	}
	if len(X) == 0 {
		return nil
	}

	reg := boost.NewRegressor(boost.DefaultConfig())
	if err := reg.Fit(X, y); err != nil {
		return nil
	}

	// 最新点的特征：7 期滞后取倒数第 8 个价格，点数不足时退回最新价
	last := n - 1
	lag7 := points[last].Price
	if n >= 8 {
		lag7 = points[n-8].Price
	}
	current := points[last].Price
	if current <= 0 {
		return nil
	}
	predicted := current * reg.Predict([]float64{
		float64(points[last].At.YearDay()),
		current,
		points[last-1].Price,
		lag7,
	})

	percent := (predicted - current) / current * 100

	return &PriceOutlook{
		CurrentPrice:   current,
		PredictedPrice: round2(predicted),
		PercentChange:  round2(percent),
		Recommendation: procurementAdvice(percent),
	}
}

func featureRow(points []PricePoint, i int) []float64 {
	return []float64{
		float64(points[i].At.YearDay()),
		points[i].Price,
		points[i-1].Price,
		points[i-7].Price,
	}
}

// procurementAdvice 百分比变化 -> 采购建议档位
func procurementAdvice(percent float64) string {
	switch {
	case percent < -5.0:
		return RecommendWait
	case percent < -1.0:
		return RecommendCaution
	case percent > 2.0:
		return RecommendBuyNow
	default:
		return RecommendStable
	}
}

// ==================== 投影与聚合 ====================

// Project 把预测结果铺成未来 7 天的线性路径
// |变化| ≤ 1% 时拉平为现价并按稳定处理；outlook 为 nil 时给零占位
func Project(outlook *PriceOutlook, start time.Time) *Projection {
	proj := &Projection{Recommendation: "Insufficient Data"}

	if outlook == nil {
		for i := 1; i <= ForecastHorizon; i++ {
			proj.Dates = append(proj.Dates, fmt.Sprintf("Day %d", i))
			proj.Prices = append(proj.Prices, 0)
		}
		return proj
	}

	current, target := outlook.CurrentPrice, outlook.PredictedPrice
	proj.Recommendation = outlook.Recommendation
	if outlook.PercentChange >= -1.0 && outlook.PercentChange <= 1.0 {
		target = current
		proj.Recommendation = RecommendStable
	}

	step := (target - current) / ForecastHorizon
	for i := 1; i <= ForecastHorizon; i++ {
		proj.Dates = append(proj.Dates, start.AddDate(0, 0, i).Format("Jan 02"))
		proj.Prices = append(proj.Prices, current+step*float64(i))
	}
	return proj
}

// DailyAverage 把观测行聚成按日均价序列（升序）
// 聚合放在进程内做，仓储查询保持跨数据库可移植
func DailyAverage(rows []model.PriceObservation) []PricePoint {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[string]*bucket)
	for _, row := range rows {
		day := row.ObservedAt.Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
		}
		price, _ := row.Price.Float64()
		b.sum += price
		b.count++
	}

	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Strings(days)

	points := make([]PricePoint, 0, len(days))
	for _, day := range days {
		at, _ := time.Parse("2006-01-02", day)
		b := buckets[day]
		points = append(points, PricePoint{At: at, Price: b.sum / float64(b.count)})
	}
	return points
}

func toPricePoints(rows []model.PriceObservation) []PricePoint {
	points := make([]PricePoint, 0, len(rows))
	for _, row := range rows {
		price, _ := row.Price.Float64()
		points = append(points, PricePoint{At: row.ObservedAt, Price: price})
	}
	return points
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
