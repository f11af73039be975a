package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketpulse/internal/model"
)

// ==================== 接口定义 ====================

// MarketDataRepository 价格历史仓储接口（只追加）
type MarketDataRepository interface {
	// Insert 追加一行价格历史
	// (product_id, vendor_name, scraped_at) 天然键冲突时静默忽略，幂等
	Insert(ctx context.Context, obs *model.PriceObservation) error

	// 历史查询
	HistoryByProduct(ctx context.Context, productID int64) ([]model.PriceObservation, error)
	HistoryByProducts(ctx context.Context, productIDs []int64) ([]model.PriceObservation, error)
	HistorySince(ctx context.Context, since time.Time) ([]model.PriceObservation, error)
	RecentByProduct(ctx context.Context, productID int64, limit int) ([]model.PriceObservation, error)
	ListByProductsPriceDesc(ctx context.Context, productIDs []int64) ([]model.PriceObservation, error)

	// 统计
	Count(ctx context.Context) (int64, error)
	CountOutOfStockSince(ctx context.Context, since time.Time) (int64, error)
	DistinctVendors(ctx context.Context, limit int) ([]string, error)

	// 事务
	WithTx(tx *gorm.DB) MarketDataRepository
}

// ==================== 仓储实现 ====================

type marketDataRepo struct {
	db *gorm.DB
}

// NewMarketDataRepository 创建价格历史仓储
func NewMarketDataRepository(db *gorm.DB) MarketDataRepository {
	return &marketDataRepo{db: db}
}

func (r *marketDataRepo) Insert(ctx context.Context, obs *model.PriceObservation) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "product_id"},
			{Name: "vendor_name"},
			{Name: "scraped_at"},
		},
		DoNothing: true,
	}).Create(obs).Error
}

func (r *marketDataRepo) HistoryByProduct(ctx context.Context, productID int64) ([]model.PriceObservation, error) {
	var rows []model.PriceObservation
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("scraped_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *marketDataRepo) HistoryByProducts(ctx context.Context, productIDs []int64) ([]model.PriceObservation, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var rows []model.PriceObservation
	err := r.db.WithContext(ctx).
		Where("product_id IN ?", productIDs).
		Order("scraped_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *marketDataRepo) HistorySince(ctx context.Context, since time.Time) ([]model.PriceObservation, error) {
	var rows []model.PriceObservation
	err := r.db.WithContext(ctx).
		Where("scraped_at > ?", since).
		Order("scraped_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *marketDataRepo) RecentByProduct(ctx context.Context, productID int64, limit int) ([]model.PriceObservation, error) {
	if limit <= 0 {
		limit = 2
	}
	var rows []model.PriceObservation
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("scraped_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListByProductsPriceDesc 价格从高到低返回指定商品的全部历史行
// 价格分层检索按这个顺序去重取每个商品的最高报价
func (r *marketDataRepo) ListByProductsPriceDesc(ctx context.Context, productIDs []int64) ([]model.PriceObservation, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var rows []model.PriceObservation
	err := r.db.WithContext(ctx).
		Where("product_id IN ?", productIDs).
		Order("price DESC").
		Find(&rows).Error
	return rows, err
}

func (r *marketDataRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.PriceObservation{}).Count(&total).Error
	return total, err
}

func (r *marketDataRepo) CountOutOfStockSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.PriceObservation{}).
		Where("is_in_stock = ? AND scraped_at > ?", false, since).
		Count(&total).Error
	return total, err
}

func (r *marketDataRepo) DistinctVendors(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	var vendors []string
	err := r.db.WithContext(ctx).
		Model(&model.PriceObservation{}).
		Distinct("vendor_name").
		Limit(limit).
		Pluck("vendor_name", &vendors).Error
	return vendors, err
}

func (r *marketDataRepo) WithTx(tx *gorm.DB) MarketDataRepository {
	return &marketDataRepo{db: tx}
}
