package store

import (
	"context"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

type inventoryStore struct {
	*MYSQLStore
}

// Inventory returns an object implementing inventory interface
func (ms *MYSQLStore) Inventory() dependency.Inventory {
	return &inventoryStore{
		MYSQLStore: ms,
	}
}

func (ms *MYSQLStore) GetInventory(ctx context.Context, eventId, ticketTypeId string) (*entity.Inventory, error) {
	return ms.getInventory(ctx, eventId, ticketTypeId, "")
}

// GetInventoryForUpdate locks the row until the surrounding transaction ends.
func (ms *MYSQLStore) GetInventoryForUpdate(ctx context.Context, eventId, ticketTypeId string) (*entity.Inventory, error) {
	return ms.getInventory(ctx, eventId, ticketTypeId, " FOR UPDATE")
}

func (ms *MYSQLStore) getInventory(ctx context.Context, eventId, ticketTypeId, lock string) (*entity.Inventory, error) {
	query := `
	SELECT * FROM inventory
	WHERE event_id = :eventId AND ticket_type_id = :ticketTypeId` + lock
	inv, err := QueryNamedOne[entity.Inventory](ctx, ms.DB(), query, map[string]any{
		"eventId":      eventId,
		"ticketTypeId": ticketTypeId,
	})
	if err != nil {
		return nil, fmt.Errorf("can't get inventory: %w", err)
	}
	return &inv, nil
}

func (ms *MYSQLStore) AddInventory(ctx context.Context, inv *entity.Inventory) error {
	query := `
	INSERT INTO inventory
		(event_id, ticket_type_id, total_quantity, available_quantity, reserved_quantity,
		sold_quantity, earmarked_quantity, last_updated)
	VALUES
		(:eventId, :ticketTypeId, :total, :available, :reserved, :sold, :earmarked, :lastUpdated)`
	err := ExecNamed(ctx, ms.DB(), query, inventoryParams(inv))
	if err != nil {
		return fmt.Errorf("can't insert inventory: %w", err)
	}
	return nil
}

// UpdateInventory writes all counters of the record.
func (ms *MYSQLStore) UpdateInventory(ctx context.Context, inv *entity.Inventory) error {
	query := `
	UPDATE inventory SET
		available_quantity = :available,
		reserved_quantity = :reserved,
		sold_quantity = :sold,
		earmarked_quantity = :earmarked,
		last_updated = :lastUpdated
	WHERE event_id = :eventId AND ticket_type_id = :ticketTypeId AND total_quantity = :total`
	err := ExecNamed(ctx, ms.DB(), query, inventoryParams(inv))
	if err != nil {
		return fmt.Errorf("can't update inventory: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) ListInventoryByEvent(ctx context.Context, eventId string) ([]entity.Inventory, error) {
	query := `SELECT * FROM inventory WHERE event_id = :eventId ORDER BY ticket_type_id`
	invs, err := QueryListNamed[entity.Inventory](ctx, ms.DB(), query, map[string]any{
		"eventId": eventId,
	})
	if err != nil {
		return nil, fmt.Errorf("can't list inventory: %w", err)
	}
	return invs, nil
}

func inventoryParams(inv *entity.Inventory) map[string]any {
	return map[string]any{
		"eventId":      inv.EventId,
		"ticketTypeId": inv.TicketTypeId,
		"total":        inv.TotalQuantity,
		"available":    inv.AvailableQuantity,
		"reserved":     inv.ReservedQuantity,
		"sold":         inv.SoldQuantity,
		"earmarked":    inv.EarmarkedQuantity,
		"lastUpdated":  inv.LastUpdated,
	}
}
