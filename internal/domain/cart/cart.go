package cart

import "time"

// Item is a cart line. Name and price are captured when the item is
// added so the checkout total matches what the buyer saw.
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Cart holds a buyer's pending items. Every unit in the cart is backed
// by a stock reservation; cart mutations and reservations move together.
type Cart struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Items     map[string]Item `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CartID derives the cart identifier from its owner, so a buyer has at
// most one cart.
func CartID(ownerID string) string {
	return "cart-" + ownerID
}

func NewCart(ownerID string) *Cart {
	now := time.Now()
	return &Cart{
		ID:        CartID(ownerID),
		OwnerID:   ownerID,
		Items:     make(map[string]Item),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Total is recomputed from the lines on every read.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
