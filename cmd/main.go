package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"marketpulse/internal/config"
	"marketpulse/internal/model"
	"marketpulse/internal/repository"
	"marketpulse/internal/scraper"
	"marketpulse/internal/service"
	"marketpulse/internal/task"
	"marketpulse/pkg/database"
	"marketpulse/pkg/logger"
)

func main() {
	var (
		mode       = flag.String("mode", "harvest", "运行模式: harvest | batch | match | forecast | stats")
		configPath = flag.String("config", "config/markets.yaml", "配置文件路径")
		inputPath  = flag.String("input", "", "batch 模式的商品页地址文件 (每行一个)")
		productID  = flag.Int64("product", 0, "forecast 模式的商品 ID")
		daemon     = flag.Bool("daemon", false, "常驻运行定时任务")
	)
	flag.Parse()

	// 1. 加载配置
	cfg := loadConfig(*configPath)

	// 2. 初始化日志
	zlog, err := logger.New(cfg.Debug)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// 3. 初始化数据库
	db := initDatabase(cfg)

	// 4. 初始化依赖
	deps := initDependencies(db, cfg, zlog)

	// 5. 按模式执行
	switch *mode {
	case "harvest":
		runHarvest(deps, cfg, *daemon)
	case "batch":
		runBatch(deps, *inputPath)
	case "match":
		deps.MatchTask.RunOnce()
	case "forecast":
		runForecast(deps, *productID)
	case "stats":
		runStats(deps)
	default:
		log.Fatalf("未知模式: %s", *mode)
	}
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB    *gorm.DB
	Repos *Repositories

	Market    *service.MarketDataService
	Harvester *service.HarvestService
	Matcher   *service.MatcherService
	Forecast  *service.ForecastService
	Analytics *service.AnalyticsService

	HarvestTask *task.HarvestTask
	MatchTask   *task.MatchTask
}

// Repositories 仓库集合
type Repositories struct {
	Product    repository.ProductRepository
	MarketData repository.MarketDataRepository
}

func loadConfig(path string) *config.Config {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			log.Printf("警告: 配置文件 %s 不存在，仅使用环境变量和默认值", path)
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	return cfg
}

func initDatabase(cfg *config.Config) *gorm.DB {
	dsn := database.DSN(
		cfg.Database.Host,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.Port,
	)
	db, err := database.InitDB(dsn,
		&model.Product{},
		&model.ProductMapping{},
		&model.PriceObservation{},
	)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	return db
}

// initDependencies 初始化所有仓库与服务
func initDependencies(db *gorm.DB, cfg *config.Config, zlog *zap.SugaredLogger) *Dependencies {
	repos := &Repositories{
		Product:    repository.NewProductRepository(db),
		MarketData: repository.NewMarketDataRepository(db),
	}

	// 供应商注册表：启动时注册一次，之后只读
	registry := scraper.NewRegistry()
	for _, v := range cfg.Vendors {
		var ext *scraper.GenericExtractor
		if v.Render == "static" {
			ext = scraper.NewStaticExtractor(v.Name, v.LinkPattern, &cfg.Scraper)
		} else {
			ext = scraper.NewGenericExtractor(v.Name, v.LinkPattern, &cfg.Scraper)
		}
		registry.Register(ext, v.Hosts...)
	}
	zlog.Infow("供应商注册完成", "vendors", registry.Vendors())

	market := service.NewMarketDataService(db, repos.Product, repos.MarketData, zlog)
	harvester := service.NewHarvestService(registry, market, zlog)
	matcher := service.NewMatcherService(repos.Product, buildEncoder(cfg, zlog), cfg.Matcher.Threshold, zlog)
	forecast := service.NewForecastService(repos.MarketData, zlog)
	analytics := service.NewAnalyticsService(repos.Product, repos.MarketData, zlog)

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Market:      market,
		Harvester:   harvester,
		Matcher:     matcher,
		Forecast:    forecast,
		Analytics:   analytics,
		HarvestTask: task.NewHarvestTask(harvester, cfg.Categories),
		MatchTask:   task.NewMatchTask(matcher),
	}
}

// buildEncoder 按配置选择语义编码器
func buildEncoder(cfg *config.Config, zlog *zap.SugaredLogger) service.Encoder {
	if cfg.Matcher.Encoder == "gemini" && cfg.Matcher.GeminiAPIKey != "" {
		zlog.Infow("使用 Gemini 编码器", "model", cfg.Matcher.GeminiModel)
		return service.NewGeminiEncoder(&service.GeminiEncoderConfig{
			ApiKey: cfg.Matcher.GeminiAPIKey,
			Model:  cfg.Matcher.GeminiModel,
		})
	}
	return service.NewLocalEncoder()
}

// ==================== 运行模式 ====================

// runHarvest 类目采集；daemon 模式下常驻并按计划重复执行
func runHarvest(deps *Dependencies, cfg *config.Config, daemon bool) {
	if len(cfg.Categories) == 0 {
		log.Fatal("未配置类目页地址 (categories)，无法采集")
	}

	if !daemon {
		report := deps.Harvester.Harvest(context.Background(), cfg.Categories)
		fmt.Println(report.Summary())
		// 单条目失败从不影响退出码，只有系统性失败才非零退出
		if report.SystemicFailure() {
			os.Exit(1)
		}
		return
	}

	deps.HarvestTask.Start()
	deps.MatchTask.Start()
	log.Println("定时任务已启动，按 Ctrl+C 退出")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在停止...")
	deps.HarvestTask.Stop()
	deps.MatchTask.Stop()
}

// runBatch 批处理模式：从文件读商品页地址列表
func runBatch(deps *Dependencies, inputPath string) {
	if inputPath == "" {
		log.Fatal("batch 模式需要 -input 指定地址文件")
	}
	urls, err := readLines(inputPath)
	if err != nil {
		log.Fatalf("读取地址文件失败: %v", err)
	}

	report := deps.Harvester.Batch(context.Background(), urls)
	fmt.Println(report.Summary())
	if report.SystemicFailure() {
		os.Exit(1)
	}
}

// runForecast 对单个商品做 7 期价格预测并打印投影路径
func runForecast(deps *Dependencies, productID int64) {
	if productID <= 0 {
		log.Fatal("forecast 模式需要 -product 指定商品 ID")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	outlook, err := deps.Forecast.ForecastProduct(ctx, productID)
	if err != nil {
		log.Fatalf("预测失败: %v", err)
	}
	if outlook == nil {
		fmt.Println("历史数据不足，无法预测 (需要至少 15 个观测点)")
		return
	}

	fmt.Printf("current=%.2f predicted_7d=%.2f change=%.2f%%\n",
		outlook.CurrentPrice, outlook.PredictedPrice, outlook.PercentChange)
	fmt.Println(outlook.Recommendation)

	proj := service.Project(outlook, time.Now())
	for i := range proj.Dates {
		fmt.Printf("  %s  %.2f\n", proj.Dates[i], proj.Prices[i])
	}
}

// runStats 打印总览统计
func runStats(deps *Dependencies) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := deps.Analytics.Stats(ctx)
	if err != nil {
		log.Fatalf("读取统计失败: %v", err)
	}
	fmt.Printf("products=%d observations=%d stock_alerts_24h=%d vendors=%s\n",
		stats.Products, stats.Observations, stats.StockAlerts24h, strings.Join(stats.Vendors, ","))
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}
