package bunt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/tidwall/buntdb"
)

type inventoryStore struct {
	*Store
}

func (s *Store) Inventory() dependency.Inventory {
	return &inventoryStore{
		Store: s,
	}
}

func inventoryKey(eventId, ticketTypeId string) string {
	return "inv:" + eventId + ":" + ticketTypeId
}

func (s *Store) GetInventory(ctx context.Context, eventId, ticketTypeId string) (*entity.Inventory, error) {
	inv := &entity.Inventory{}
	err := s.view(func(tx *buntdb.Tx) error {
		return getJSON(tx, inventoryKey(eventId, ticketTypeId), inv)
	})
	if err != nil {
		return nil, fmt.Errorf("can't get inventory: %w", err)
	}
	return inv, nil
}

// GetInventoryForUpdate is GetInventory: the writable transaction already
// excludes every other writer.
func (s *Store) GetInventoryForUpdate(ctx context.Context, eventId, ticketTypeId string) (*entity.Inventory, error) {
	return s.GetInventory(ctx, eventId, ticketTypeId)
}

func (s *Store) AddInventory(ctx context.Context, inv *entity.Inventory) error {
	err := s.update(func(tx *buntdb.Tx) error {
		return insertJSON(tx, inventoryKey(inv.EventId, inv.TicketTypeId), inv)
	})
	if err != nil {
		return fmt.Errorf("can't insert inventory: %w", err)
	}
	return nil
}

func (s *Store) UpdateInventory(ctx context.Context, inv *entity.Inventory) error {
	err := s.update(func(tx *buntdb.Tx) error {
		key := inventoryKey(inv.EventId, inv.TicketTypeId)
		if err := getJSON(tx, key, &entity.Inventory{}); err != nil {
			return err
		}
		return setJSON(tx, key, inv)
	})
	if err != nil {
		return fmt.Errorf("can't update inventory: %w", err)
	}
	return nil
}

func (s *Store) ListInventoryByEvent(ctx context.Context, eventId string) ([]entity.Inventory, error) {
	var invs []entity.Inventory
	err := s.view(func(tx *buntdb.Tx) error {
		var derr error
		err := ascendPrefix(tx, "inv:"+eventId+":", func(_, val string) bool {
			var inv entity.Inventory
			if derr = json.Unmarshal([]byte(val), &inv); derr != nil {
				return false
			}
			invs = append(invs, inv)
			return true
		})
		if err != nil {
			return err
		}
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("can't list inventory: %w", err)
	}
	return invs, nil
}
