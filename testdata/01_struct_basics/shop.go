package shop

import "time"

// Order is a placed order.
type Order struct {
	ID       int
	Customer *Customer
	Items    []Item
	Note     string
	placed   time.Time
	secret   string
}

// NewOrder creates an order.
func NewOrder(id int, customer *Customer, note string) *Order {
	return &Order{ID: id, Customer: customer, Note: note}
}

// Placed returns when the order was placed.
func (o *Order) Placed() time.Time { return o.placed }

func (o *Order) Total() (float64, error) { return 0, nil }

func (o Order) Reset() {}

func (o *Order) recalc(force bool) { _ = o.secret }

type Customer struct {
	Name string
}

type Item struct {
	SKU string
	Qty int
}

// Money has no fields.
type Money float64

// Point is immutable.
type Point struct {
	x, y int
}

func NewPoint(x, y int) Point { return Point{x: x, y: y} }

func (p Point) X() int { return p.x }

func (p Point) Y() int { return p.y }

type Handler func(o *Order) error

type Lookup = Customer
