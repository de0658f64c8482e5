package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalmartItem is a product found by a subcategory search.
type WalmartItem struct {
	WmID        int64               `gorm:"column:wm_id;primaryKey;autoIncrement:false"`
	UPC         *string             `gorm:"column:upc;index"`
	Name        string              `gorm:"column:name"`
	Price       decimal.NullDecimal `gorm:"column:price;type:numeric"`
	Path        string              `gorm:"column:path"`
	Dup         bool                `gorm:"column:dup;not null;default:false"`
	InStock     bool                `gorm:"column:in_stock"`
	FreeShip    bool                `gorm:"column:free_ship"`
	Fetched     *time.Time          `gorm:"column:fetched"`
	LastMatched *time.Time          `gorm:"column:last_matched"`
}

func (WalmartItem) TableName() string { return "prod_wm" }

// Match links an Amazon listing to the Walmart item it was matched from and
// carries the Amazon-side pricing.
type Match struct {
	ASIN        string              `gorm:"column:asin;primaryKey"`
	WmID        int64               `gorm:"column:wm_id;index"`
	UPC         string              `gorm:"column:upc"`
	Title       string              `gorm:"column:az_name"`
	Brand       string              `gorm:"column:az_brand"`
	WmPrice     decimal.NullDecimal `gorm:"column:wm_price;type:numeric"`
	FreeShip    bool                `gorm:"column:free_ship"`
	WmInStock   bool                `gorm:"column:wm_instock"`
	CompPrice   decimal.NullDecimal `gorm:"column:comp_price;type:numeric"`
	LowestFBA   decimal.NullDecimal `gorm:"column:lowest_fba;type:numeric"`
	LowestMerch decimal.NullDecimal `gorm:"column:lowest_merch;type:numeric"`
	MyPrice     decimal.NullDecimal `gorm:"column:my_price;type:numeric"`
	FeeTotal    decimal.NullDecimal `gorm:"column:fee_total;type:numeric"`
	SalesRank   *int                `gorm:"column:sales_rank"`
}

func (Match) TableName() string { return "products_wmaz" }

// Timestamps records when each Amazon call last succeeded for an ASIN.
type Timestamps struct {
	ASIN          string     `gorm:"column:asin;primaryKey"`
	MatchToAz     *time.Time `gorm:"column:match_to_az"`
	AzCompPrice   *time.Time `gorm:"column:az_comp_price"`
	AzLowestOffer *time.Time `gorm:"column:az_lowest_offer"`
	AzFees        *time.Time `gorm:"column:az_fees"`
}

func (Timestamps) TableName() string { return "timestamps_wmaz" }

// Subcategory is a node of the Walmart taxonomy the search stage walks.
type Subcategory struct {
	FullID       string     `gorm:"column:full_id;primaryKey"`
	Active       bool       `gorm:"column:active"`
	Include      *bool      `gorm:"column:include"`
	Success      string     `gorm:"column:success"`
	NumItems     int        `gorm:"column:num_items"`
	LastSearched *time.Time `gorm:"column:last_searched"`
}

func (Subcategory) TableName() string { return "wm_taxo" }

// QueryLog counts Walmart API calls per five-minute slot.
type QueryLog struct {
	ID         uint      `gorm:"column:id;primaryKey"`
	Timestamp  time.Time `gorm:"column:timestamp;uniqueIndex"`
	NumQueries int       `gorm:"column:num_queries"`
}

func (QueryLog) TableName() string { return "wm_query_log" }

// DisplayItem is an ASIN on the display sheet that gets re-checked.
type DisplayItem struct {
	ASIN string `gorm:"column:asin;primaryKey"`
}

func (DisplayItem) TableName() string { return "display1" }

// SKU maps one of our seller SKUs to its ASIN.
type SKU struct {
	SKU  string `gorm:"column:sku;primaryKey"`
	ASIN string `gorm:"column:asin;index"`
}

func (SKU) TableName() string { return "skus" }

// InventorySupply is the fulfillment-center stock for a SKU.
type InventorySupply struct {
	SKU        string    `gorm:"column:sku;primaryKey"`
	ASIN       string    `gorm:"column:asin"`
	FNSKU      string    `gorm:"column:fnsku"`
	InStockQty int       `gorm:"column:in_stock_qty"`
	TotalQty   int       `gorm:"column:total_qty"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (InventorySupply) TableName() string { return "inventory_supply" }

// Models lists every model for auto-migration.
func Models() []any {
	return []any{
		&WalmartItem{},
		&Match{},
		&Timestamps{},
		&Subcategory{},
		&QueryLog{},
		&DisplayItem{},
		&SKU{},
		&InventorySupply{},
	}
}
