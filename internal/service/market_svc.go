package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"marketpulse/internal/model"
	"marketpulse/internal/repository"
)

// ==================== 错误定义 ====================

// ErrInvalidRecord 记录缺少名称或有效价格，跳过且不留任何部分写入
var ErrInvalidRecord = errors.New("记录无效：缺少名称或有效价格")

// ==================== 市场数据服务 ====================

// MarketDataService 规范身份解析 + 价格历史落库
type MarketDataService struct {
	db       *gorm.DB
	products repository.ProductRepository
	market   repository.MarketDataRepository
	log      *zap.SugaredLogger
}

// NewMarketDataService 创建市场数据服务
func NewMarketDataService(
	db *gorm.DB,
	products repository.ProductRepository,
	market repository.MarketDataRepository,
	log *zap.SugaredLogger,
) *MarketDataService {
	return &MarketDataService{
		db:       db,
		products: products,
		market:   market,
		log:      log,
	}
}

// ResolveAndRecord 把一条抓取记录解析到规范商品并追加价格历史
//
// 步骤：
//  1. 按 (去空白名称, 供应商) 查映射，命中则复用其规范商品 ID
//  2. 未命中则在同一事务里新建 Product + ProductMapping
//     （并发解析同一键时靠复合唯一约束兜底：冲突回滚后重查一次）
//  3. 追加 PriceObservation，天然键冲突静默成功（幂等）
//
// 任何落库失败整体回滚，不会留下没有映射的孤儿 Product
func (s *MarketDataService) ResolveAndRecord(ctx context.Context, rec *model.ScrapedRecord) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" || rec.Vendor == "" || !rec.Price.IsPositive() {
		return ErrInvalidRecord
	}

	observedAt := rec.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	var err error
	// 映射创建与并发采集撞键时重试一次，第二轮查询必然命中
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			products := s.products.WithTx(tx)
			market := s.market.WithTx(tx)

			productID, resolveErr := s.resolveProductID(ctx, products, name, rec.Vendor)
			if resolveErr != nil {
				return resolveErr
			}

			return market.Insert(ctx, &model.PriceObservation{
				ProductID:  productID,
				VendorName: rec.Vendor,
				Price:      rec.Price,
				IsInStock:  rec.IsInStock,
				ProductURL: rec.URL,
				ObservedAt: observedAt,
			})
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("落库失败 %q: %w", name, err)
	}
	return nil
}

// resolveProductID 映射命中返回已有 ID，否则注册新商品
func (s *MarketDataService) resolveProductID(
	ctx context.Context,
	products repository.ProductRepository,
	name, vendor string,
) (int64, error) {
	mapping, err := products.GetMapping(ctx, name, vendor)
	if err == nil {
		return mapping.InternalProductID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	// 品牌取名称首词，标签取归一化后的名称词面，供检索面做分面展示
	product := &model.Product{
		Name:  name,
		Brand: deriveBrand(name),
		Tags:  deriveTags(name),
	}
	if err := products.Create(ctx, product); err != nil {
		return 0, err
	}
	if err := products.CreateMapping(ctx, &model.ProductMapping{
		InternalProductID:   product.ID,
		ExternalNameVariant: name,
		VendorName:          vendor,
	}); err != nil {
		return 0, err
	}

	s.log.Infow("新商品注册", "name", name, "vendor", vendor, "product_id", product.ID)
	return product.ID, nil
}

// ==================== 名称派生 ====================

// deriveBrand 名称首词作为品牌
func deriveBrand(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// deriveTags 归一化名称的去重词面
func deriveTags(name string) pq.StringArray {
	fields := strings.Fields(normalizeName(name))
	seen := make(map[string]struct{}, len(fields))
	tags := make(pq.StringArray, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tags = append(tags, f)
	}
	return tags
}
