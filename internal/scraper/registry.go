package scraper

import (
	"net/url"
	"strings"
)

// ==================== 供应商注册表 ====================

// Registry 主机名片段 -> 抓取器 的静态注册表
// 启动时注册一次，之后只读；替代按 URL 动态判型的做法
type Registry struct {
	entries []registryEntry
}

type registryEntry struct {
	hosts     []string
	extractor Extractor
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// Register 注册一个抓取器及命中它的主机名片段
func (r *Registry) Register(ext Extractor, hosts ...string) {
	lowered := make([]string, 0, len(hosts))
	for _, h := range hosts {
		lowered = append(lowered, strings.ToLower(h))
	}
	r.entries = append(r.entries, registryEntry{hosts: lowered, extractor: ext})
}

// Resolve 按地址的主机名找到负责的抓取器
func (r *Registry) Resolve(rawURL string) (Extractor, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, false
	}
	for _, entry := range r.entries {
		for _, pattern := range entry.hosts {
			if strings.Contains(host, pattern) {
				return entry.extractor, true
			}
		}
	}
	return nil, false
}

// Vendors 已注册的供应商名称列表
func (r *Registry) Vendors() []string {
	names := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		names = append(names, entry.extractor.VendorName())
	}
	return names
}
