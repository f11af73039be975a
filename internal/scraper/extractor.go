package scraper

import (
	"context"
	"regexp"

	"github.com/shopspring/decimal"

	"marketpulse/internal/model"
)

// ==================== 抓取器契约 ====================

// Extractor 单个供应商的抓取能力集合
// Discover: 类目页 -> 商品页地址列表（零结果返回空切片，不算错误）
// Extract:  商品页 -> 原始记录；页面存在但字段解析不出时返回 (nil, nil)
// Release:  释放本批次持有的会话资源（浏览器等），任何退出路径都必须调用
type Extractor interface {
	VendorName() string
	Discover(ctx context.Context, categoryURL string) ([]string, error)
	Extract(ctx context.Context, productURL string) (*model.ScrapedRecord, error)
	Release() error
}

// ==================== 价格解析 ====================

var priceDigits = regexp.MustCompile(`[^\d.]`)

// ParsePrice 从 "Rs. 345,000.00" 一类文本中解出价格
// 解析不出或非正数时 ok=false
func ParsePrice(text string) (decimal.Decimal, bool) {
	cleaned := priceDigits.ReplaceAllString(text, "")
	if cleaned == "" {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}
