package scraper

import (
	"context"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"marketpulse/internal/config"
	"marketpulse/internal/model"
)

// ==================== 通用抓取器 ====================

// pageSource 取页来源：浏览器渲染 (BrowserSession) 或直接 HTTP (PoliteFetcher)
type pageSource interface {
	PageHTML(ctx context.Context, pageURL string) (string, error)
	Close()
}

// GenericExtractor 通用抓取器
// 站点特定的选择器逻辑属于外部可替换实现，这里只用三条对多数零售站
// 都成立的启发式：商品链接包含固定路径片段、标题取第一个像样的 <h1>、
// 价格取第一处 "Rs." 金额。专用抓取器可以实现 Extractor 接口直接替换它
type GenericExtractor struct {
	vendor      string
	linkPattern string
	source      pageSource
}

// NewGenericExtractor 创建浏览器渲染的通用抓取器（依赖 JS 渲染的站点）
// linkPattern: 商品页地址必含的路径片段，如 "/product/"
func NewGenericExtractor(vendor, linkPattern string, cfg *config.ScraperConfig) *GenericExtractor {
	return newExtractor(vendor, linkPattern, NewBrowserSession(cfg))
}

// NewStaticExtractor 创建直接 HTTP 取页的通用抓取器（服务端渲染的站点）
func NewStaticExtractor(vendor, linkPattern string, cfg *config.ScraperConfig) *GenericExtractor {
	return newExtractor(vendor, linkPattern, NewPoliteFetcher(cfg))
}

func newExtractor(vendor, linkPattern string, source pageSource) *GenericExtractor {
	if linkPattern == "" {
		linkPattern = "/product/"
	}
	return &GenericExtractor{
		vendor:      vendor,
		linkPattern: linkPattern,
		source:      source,
	}
}

func (e *GenericExtractor) VendorName() string {
	return e.vendor
}

var (
	hrefPattern = regexp.MustCompile(`href="([^"]+)"`)
	h1Pattern   = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	tagPattern  = regexp.MustCompile(`<[^>]+>`)
	rsPattern   = regexp.MustCompile(`(?i)Rs\.?\s*([\d,]+(?:\.\d{1,2})?)`)
)

// Discover 扫类目页，返回命中 linkPattern 的商品页地址（去重）
func (e *GenericExtractor) Discover(ctx context.Context, categoryURL string) ([]string, error) {
	pageHTML, err := e.source.PageHTML(ctx, categoryURL)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(categoryURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var links []string
	for _, m := range hrefPattern.FindAllStringSubmatch(pageHTML, -1) {
		href := html.UnescapeString(m[1])
		if !strings.Contains(href, e.linkPattern) {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	}
	return links, nil
}

// Extract 取商品页并解出一条原始记录
// 价格解析不出时返回 (nil, nil)：页面在但没数据，按条目失败计数
func (e *GenericExtractor) Extract(ctx context.Context, productURL string) (*model.ScrapedRecord, error) {
	pageHTML, err := e.source.PageHTML(ctx, productURL)
	if err != nil {
		return nil, err
	}

	name := extractTitle(pageHTML)

	priceMatch := rsPattern.FindStringSubmatch(pageHTML)
	if priceMatch == nil {
		return nil, nil
	}
	price, ok := ParsePrice(priceMatch[1])
	if !ok {
		return nil, nil
	}

	lower := strings.ToLower(pageHTML)
	inStock := strings.Contains(lower, "in stock") && !strings.Contains(lower, "out of stock")

	return &model.ScrapedRecord{
		Name:       name,
		Price:      price,
		Vendor:     e.vendor,
		IsInStock:  inStock,
		URL:        productURL,
		ObservedAt: time.Now(),
	}, nil
}

// Release 关闭本批次的浏览器
func (e *GenericExtractor) Release() error {
	e.source.Close()
	return nil
}

// extractTitle 取第一个长度够、不是纯数字的 <h1> 文本
func extractTitle(pageHTML string) string {
	for _, m := range h1Pattern.FindAllStringSubmatch(pageHTML, -1) {
		text := strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(m[1], " ")))
		text = strings.Join(strings.Fields(text), " ")
		if len(text) > 3 && !isAllDigits(text) {
			return text
		}
	}
	return "Unknown Product"
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
