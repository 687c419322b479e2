package domain

import "sort"

// Cart maps product IDs to quantities. Zero quantities are never stored.
type Cart struct {
	items map[string]int
}

func NewCart() *Cart {
	return &Cart{items: make(map[string]int)}
}

func (c *Cart) Increment(productID string, by int) {
	if productID == "" || by < 1 {
		return
	}
	if c.items == nil {
		c.items = make(map[string]int)
	}
	c.items[productID] += by
}

// Decrement lowers a quantity, dropping the entry once it reaches zero.
func (c *Cart) Decrement(productID string, by int) {
	if by < 1 {
		return
	}
	qty, ok := c.items[productID]
	if !ok {
		return
	}
	qty -= by
	if qty <= 0 {
		delete(c.items, productID)
		return
	}
	c.items[productID] = qty
}

func (c *Cart) Set(productID string, qty int) {
	if productID == "" {
		return
	}
	if qty <= 0 {
		delete(c.items, productID)
		return
	}
	if c.items == nil {
		c.items = make(map[string]int)
	}
	c.items[productID] = qty
}

func (c *Cart) Clear() {
	c.items = make(map[string]int)
}

func (c *Cart) Qty(productID string) int {
	if c == nil {
		return 0
	}
	return c.items[productID]
}

func (c *Cart) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

func (c *Cart) Empty() bool {
	return c.Len() == 0
}

// ProductIDs returns the IDs with a positive quantity in a stable order.
func (c *Cart) ProductIDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.items))
	for id, qty := range c.items {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot copies the quantities so a computation never sees later mutations.
func (c *Cart) Snapshot() map[string]int {
	out := make(map[string]int, c.Len())
	if c == nil {
		return out
	}
	for id, qty := range c.items {
		if qty > 0 {
			out[id] = qty
		}
	}
	return out
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

func (c *Cart) Items() []CartItem {
	ids := c.ProductIDs()
	items := make([]CartItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, CartItem{ProductID: id, Qty: c.items[id]})
	}
	return items
}
