// Package basket holds the in-progress sale of one register session as an
// immutable value: every operation returns a new Basket and leaves the
// receiver untouched, so a failed commit can simply keep using the old value.
package basket

import (
	"errors"
	"sort"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
)

var (
	ErrInactiveProduct = errors.New("product is inactive")
	ErrUnknownProduct  = errors.New("product is unknown")
)

type Line struct {
	ProductID      string
	Name           string
	Quantity       int64
	UnitPriceCents money.Cents
}

func (l Line) RevenueCents() money.Cents {
	return money.Cents(l.Quantity) * l.UnitPriceCents
}

type Basket struct {
	lines map[string]Line
}

func New() Basket {
	return Basket{}
}

// Add puts one more unit of product into the basket. The unit price is taken
// from the product on the first add and kept for the life of the line.
func (b Basket) Add(product domain.Product) (Basket, error) {
	if product.ID == "" {
		return b, ErrUnknownProduct
	}
	if !product.Active {
		return b, ErrInactiveProduct
	}

	next := b.clone()
	line, exists := next.lines[product.ID]
	if !exists {
		line = Line{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.UnitPriceCents,
		}
	}
	line.Quantity++
	next.lines[product.ID] = line
	return next, nil
}

// Remove takes one unit away; the line disappears when it reaches zero.
func (b Basket) Remove(productID string) Basket {
	line, exists := b.lines[productID]
	if !exists {
		return b
	}

	next := b.clone()
	if line.Quantity <= 1 {
		delete(next.lines, productID)
		return next
	}
	line.Quantity--
	next.lines[productID] = line
	return next
}

func (b Basket) Quantity(productID string) int64 {
	return b.lines[productID].Quantity
}

func (b Basket) Len() int {
	return len(b.lines)
}

func (b Basket) IsEmpty() bool {
	return len(b.lines) == 0
}

// Lines returns the basket content ordered by product name.
func (b Basket) Lines() []Line {
	lines := make([]Line, 0, len(b.lines))
	for _, line := range b.lines {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Name == lines[j].Name {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].Name < lines[j].Name
	})
	return lines
}

func (b Basket) Total() money.Cents {
	var total money.Cents
	for _, line := range b.lines {
		total += line.RevenueCents()
	}
	return total
}

func (b Basket) clone() Basket {
	lines := make(map[string]Line, len(b.lines)+1)
	for id, line := range b.lines {
		lines[id] = line
	}
	return Basket{lines: lines}
}
