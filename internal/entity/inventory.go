package entity

import (
	"fmt"
	"time"
)

// Inventory holds the counters for one (event, ticket type) partition.
// available + reserved + sold + earmarked == total at all times.
type Inventory struct {
	EventId           string    `db:"event_id" json:"event_id"`
	TicketTypeId      string    `db:"ticket_type_id" json:"ticket_type_id"`
	TotalQuantity     int       `db:"total_quantity" json:"total_quantity"`
	AvailableQuantity int       `db:"available_quantity" json:"available_quantity"`
	ReservedQuantity  int       `db:"reserved_quantity" json:"reserved_quantity"`
	SoldQuantity      int       `db:"sold_quantity" json:"sold_quantity"`
	EarmarkedQuantity int       `db:"earmarked_quantity" json:"earmarked_quantity"`
	LastUpdated       time.Time `db:"last_updated" json:"last_updated"`
}

// NewInventory seeds an inventory record from the authored ticket type.
func NewInventory(eventId string, tt *TicketType, now time.Time) *Inventory {
	return &Inventory{
		EventId:           eventId,
		TicketTypeId:      tt.Id,
		TotalQuantity:     tt.TotalQuantity,
		AvailableQuantity: tt.TotalQuantity,
		LastUpdated:       now,
	}
}

// Hold moves q units from available to reserved.
func (i *Inventory) Hold(q int) error {
	if err := i.move(&i.AvailableQuantity, &i.ReservedQuantity, q); err != nil {
		return fmt.Errorf("hold %d: %w", q, err)
	}
	return nil
}

// Release moves q units from reserved back to available.
func (i *Inventory) Release(q int) error {
	if err := i.move(&i.ReservedQuantity, &i.AvailableQuantity, q); err != nil {
		return fmt.Errorf("release %d: %w", q, err)
	}
	return nil
}

// Sell moves q units from reserved to sold.
func (i *Inventory) Sell(q int) error {
	if err := i.move(&i.ReservedQuantity, &i.SoldQuantity, q); err != nil {
		return fmt.Errorf("sell %d: %w", q, err)
	}
	return nil
}

// Earmark moves q units from available to earmarked for a notified waitlist entry.
func (i *Inventory) Earmark(q int) error {
	if err := i.move(&i.AvailableQuantity, &i.EarmarkedQuantity, q); err != nil {
		return fmt.Errorf("earmark %d: %w", q, err)
	}
	return nil
}

// ReturnEarmark moves q earmarked units back to available.
func (i *Inventory) ReturnEarmark(q int) error {
	if err := i.move(&i.EarmarkedQuantity, &i.AvailableQuantity, q); err != nil {
		return fmt.Errorf("return earmark %d: %w", q, err)
	}
	return nil
}

// ClaimEarmark converts q earmarked units into a reservation hold.
func (i *Inventory) ClaimEarmark(q int) error {
	if err := i.move(&i.EarmarkedQuantity, &i.ReservedQuantity, q); err != nil {
		return fmt.Errorf("claim earmark %d: %w", q, err)
	}
	return nil
}

// Check verifies the counter invariant.
func (i *Inventory) Check() error {
	if i.AvailableQuantity < 0 || i.ReservedQuantity < 0 || i.SoldQuantity < 0 || i.EarmarkedQuantity < 0 {
		return fmt.Errorf("negative counter in %s/%s: %+v", i.EventId, i.TicketTypeId, *i)
	}
	sum := i.AvailableQuantity + i.ReservedQuantity + i.SoldQuantity + i.EarmarkedQuantity
	if sum != i.TotalQuantity {
		return fmt.Errorf("counters of %s/%s sum to %d, total is %d", i.EventId, i.TicketTypeId, sum, i.TotalQuantity)
	}
	return nil
}

func (i *Inventory) move(from, to *int, q int) error {
	if q <= 0 {
		return fmt.Errorf("non-positive quantity")
	}
	if *from < q {
		return fmt.Errorf("insufficient quantity: have %d", *from)
	}
	*from -= q
	*to += q
	return nil
}
