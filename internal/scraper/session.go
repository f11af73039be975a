package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/chromedp"

	"marketpulse/internal/config"
)

// ==================== 浏览器会话 ====================

// BrowserSession 一个供应商批次独占的无头浏览器会话
// 惰性启动：第一次取页时才拉起 Chrome；Close 在任何退出路径都必须调用，
// 保证慢供应商或中途失败不会把浏览器进程泄漏到下一个类目
type BrowserSession struct {
	cfg *config.ScraperConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// NewBrowserSession 创建（未启动的）浏览器会话
func NewBrowserSession(cfg *config.ScraperConfig) *BrowserSession {
	return &BrowserSession{cfg: cfg}
}

// ensureStarted 按需启动浏览器，同一会话内复用同一个标签页
func (s *BrowserSession) ensureStarted() error {
	if s.tabCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		// 屏蔽图片加载，类目页提速明显
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(s.cfg.UserAgent),
	)

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocCtx)

	// 先跑一次空动作，把浏览器进程实际拉起来，失败尽早暴露
	startCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.PageTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		s.Close()
		return fmt.Errorf("启动浏览器失败: %w", err)
	}
	return nil
}

// PageHTML 礼貌延迟后加载页面并返回整页 HTML
// 页面加载受 PageTimeout 有界等待约束，超时按失败返回
func (s *BrowserSession) PageHTML(ctx context.Context, pageURL string) (string, error) {
	if err := s.ensureStarted(); err != nil {
		return "", err
	}

	PoliteDelay(s.cfg)

	runCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.PageTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("加载页面失败 %s: %w", pageURL, err)
	}
	// 调用方的 ctx 取消也按失败处理
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return html, nil
}

// Close 释放浏览器资源，可重复调用
func (s *BrowserSession) Close() {
	if s.tabCancel != nil {
		s.tabCancel()
		s.tabCancel = nil
		s.tabCtx = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
		s.allocCtx = nil
	}
}

// ==================== 礼貌延迟 ====================

// PoliteDelay 在 [MinDelay, MaxDelay] 区间随机睡眠
// 批次内严格串行 + 随机间隔，避免压垮源站
func PoliteDelay(cfg *config.ScraperConfig) {
	min, max := cfg.MinDelay, cfg.MaxDelay
	if max <= min {
		time.Sleep(min)
		return
	}
	span := max - min
	time.Sleep(min + time.Duration(rand.Int63n(int64(span))))
}
