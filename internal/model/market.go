package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ==================== 规范商品 ====================

// Product 规范商品：同一台物理商品跨供应商的唯一逻辑身份
// 首次见到任意供应商的名称变体时惰性创建，之后永不删除；
// 合并只改写 mapping 的指向，不改写 Product 行本身（保留审计历史）
type Product struct {
	ID        int64          `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Name      string         `gorm:"size:512;not null" json:"name"`
	Brand     string         `gorm:"size:100" json:"brand"`
	Category  string         `gorm:"size:100;default:'Uncategorized';index" json:"category"`
	Tags      pq.StringArray `gorm:"type:text[]" json:"tags"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Product) TableName() string {
	return "products"
}

// ==================== 名称变体映射 ====================

// ProductMapping 供应商原始名称 -> 规范商品 映射
// (external_name_variant, vendor_name) 复合唯一；
// internal_product_id 可变：身份合并会把次要 ID 改写为主 ID
type ProductMapping struct {
	ID                  int64     `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	InternalProductID   int64     `gorm:"index;not null" json:"internal_product_id"`
	Product             *Product  `gorm:"foreignKey:InternalProductID" json:"-"`
	ExternalNameVariant string    `gorm:"size:512;not null;uniqueIndex:uniq_variant_vendor" json:"external_name_variant"`
	VendorName          string    `gorm:"size:100;not null;uniqueIndex:uniq_variant_vendor" json:"vendor_name"`
	CreatedAt           time.Time `json:"created_at"`
}

func (ProductMapping) TableName() string {
	return "product_mappings"
}

// ==================== 价格历史 ====================

// PriceObservation 一次抓取事件产生的一行价格历史，只追加、不更新、不删除
// (product_id, vendor_name, scraped_at) 为天然键，重复插入静默忽略（幂等摄入）
type PriceObservation struct {
	ID         int64           `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	ProductID  int64           `gorm:"not null;uniqueIndex:uniq_price_point;index" json:"product_id"`
	VendorName string          `gorm:"size:100;not null;uniqueIndex:uniq_price_point" json:"vendor_name"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	// 不设列默认值：带 default 标签时 gorm 会在 Create 时跳过零值字段，
	// false（缺货）会被数据库默认值顶掉
	IsInStock  bool            `gorm:"not null" json:"is_in_stock"`
	ProductURL string          `gorm:"size:512" json:"product_url"`
	ObservedAt time.Time       `gorm:"column:scraped_at;not null;uniqueIndex:uniq_price_point" json:"scraped_at"`
}

func (PriceObservation) TableName() string {
	return "market_data"
}

// ==================== 抓取记录 ====================

// ScrapedRecord 抓取器产出的单条原始记录（入库前的统一载体）
type ScrapedRecord struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Vendor     string          `json:"vendor"`
	IsInStock  bool            `json:"is_in_stock"`
	URL        string          `json:"url"`
	ObservedAt time.Time       `json:"observed_at"`
}
