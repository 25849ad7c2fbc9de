package catalog

import "time"

// lowStockThreshold is the available quantity at or below which a product
// is reported as low_stock.
const lowStockThreshold = 5

type StockLabel string

const (
	LabelInStock    StockLabel = "in_stock"
	LabelLowStock   StockLabel = "low_stock"
	LabelOutOfStock StockLabel = "out_of_stock"
)

// Product is a catalog entry. Prices are in centimes (HTG).
// StockQuantity is the physical count; ReservedQuantity is held by
// unconfirmed carts and orders. ReservedQuantity never exceeds
// StockQuantity and neither goes negative.
type Product struct {
	ID               string    `json:"id"`
	SellerID         string    `json:"seller_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Price            int64     `json:"price"`
	StockQuantity    int       `json:"stock_quantity"`
	ReservedQuantity int       `json:"reserved_quantity"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available returns the quantity that can still be reserved.
func (p *Product) Available() int {
	return p.StockQuantity - p.ReservedQuantity
}

// Label classifies the current availability.
func (p *Product) Label() StockLabel {
	available := p.Available()
	switch {
	case available <= 0 || !p.Active:
		return LabelOutOfStock
	case available <= lowStockThreshold:
		return LabelLowStock
	default:
		return LabelInStock
	}
}

// StockStatus is the read-only availability view served to buyers.
type StockStatus struct {
	ProductID  string     `json:"product_id"`
	Available  int        `json:"available_quantity"`
	Label      StockLabel `json:"status"`
	CanFulfill bool       `json:"can_fulfill"`
}
