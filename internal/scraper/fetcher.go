package scraper

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"marketpulse/internal/config"
)

// ==================== HTTP 取页器 ====================

// PoliteFetcher 面向静态页面供应商的 HTTP 取页器
// 不需要浏览器渲染的站点走这里，同样遵守礼貌延迟和有界超时
type PoliteFetcher struct {
	cfg    *config.ScraperConfig
	client *resty.Client
}

// NewPoliteFetcher 创建取页器
func NewPoliteFetcher(cfg *config.ScraperConfig) *PoliteFetcher {
	client := resty.New().
		SetTimeout(cfg.PageTimeout).
		SetRetryCount(1).
		SetHeader("User-Agent", cfg.UserAgent)

	return &PoliteFetcher{cfg: cfg, client: client}
}

// PageHTML 礼貌延迟后下载页面正文
func (f *PoliteFetcher) PageHTML(ctx context.Context, pageURL string) (string, error) {
	PoliteDelay(f.cfg)

	resp, err := f.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return "", fmt.Errorf("取页失败 %s: %w", pageURL, err)
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("取页失败 %s: HTTP %d", pageURL, resp.StatusCode())
	}
	return resp.String(), nil
}

// Close 无持久资源，满足取页源契约
func (f *PoliteFetcher) Close() {}
