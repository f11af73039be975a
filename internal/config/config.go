package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ==================== 配置结构 ====================

// DatabaseConfig 数据库连接参数
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// ScraperConfig 抓取行为参数
type ScraperConfig struct {
	// 每次取页前的随机礼貌延迟区间
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
	// 单页加载的有界等待，超时按失败处理
	PageTimeout time.Duration `mapstructure:"page_timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	Headless    bool          `mapstructure:"headless"`
}

// MatcherConfig 身份匹配参数
type MatcherConfig struct {
	// 合并阈值，余弦相似度高于它且供应商不同才会合并
	Threshold float64 `mapstructure:"threshold"`
	// 编码器选择: local / gemini
	Encoder      string `mapstructure:"encoder"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`
}

// VendorConfig 供应商注册项：名称 + 命中它的主机名片段
type VendorConfig struct {
	Name  string   `mapstructure:"name"`
	Hosts []string `mapstructure:"hosts"`
	// 商品页地址必含的路径片段，供通用抓取器做发现
	LinkPattern string `mapstructure:"link_pattern"`
	// 取页方式: browser (默认, 无头浏览器渲染) / static (直接 HTTP)
	Render string `mapstructure:"render"`
}

// Config 进程配置
type Config struct {
	Debug      bool           `mapstructure:"debug"`
	Database   DatabaseConfig `mapstructure:"database"`
	Scraper    ScraperConfig  `mapstructure:"scraper"`
	Matcher    MatcherConfig  `mapstructure:"matcher"`
	Vendors    []VendorConfig `mapstructure:"vendors"`
	Categories []string       `mapstructure:"categories"`
}

// ==================== 加载 ====================

// Load 读取配置
// 优先级：环境变量 > config/markets.yaml > 内置默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 默认值沿用历史部署
	v.SetDefault("debug", false)
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", "5433")
	v.SetDefault("database.name", "marketpulse")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("scraper.min_delay", 2*time.Second)
	v.SetDefault("scraper.max_delay", 5*time.Second)
	v.SetDefault("scraper.page_timeout", 20*time.Second)
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) "+
			"Chrome/119.0.0.0 Safari/537.36 (compatible; MarketPulse/1.0)")
	v.SetDefault("scraper.headless", true)
	v.SetDefault("matcher.threshold", 0.85)
	v.SetDefault("matcher.encoder", "local")
	v.SetDefault("matcher.gemini_model", "gemini-embedding-001")

	// DB_HOST / DB_PORT / DB_NAME / DB_USER / DB_PASSWORD
	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("database.port", "DB_PORT")
	_ = v.BindEnv("database.name", "DB_NAME")
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("matcher.gemini_api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("matcher.encoder", "MATCHER_ENCODER")
	_ = v.BindEnv("debug", "DEBUG")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return &cfg, nil
}
