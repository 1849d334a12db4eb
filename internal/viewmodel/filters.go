package viewmodel

import (
	"trace-service/internal/chain"
	"trace-service/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// RoleFilters returns the log subscriptions each dashboard listens on.
// The farmer watches its own mints plus the retailer's delivery verdicts;
// the retailer watches the full inbound pipeline it participates in; the
// transporter watches movement states; the consumer watches the storefront
// tail of the lifecycle.
func RoleFilters(role models.Role, self, retailer common.Address) []chain.EventFilter {
	switch role {
	case models.RoleFarmer:
		return []chain.EventFilter{
			{From: &self, States: []uint8{uint8(models.StateNew)}},
			{From: &retailer, States: []uint8{uint8(models.StateDelivered), uint8(models.StateRejected)}},
		}
	case models.RoleRetailer:
		return []chain.EventFilter{
			{From: &self, States: []uint8{
				uint8(models.StateNew),
				uint8(models.StateDelivered),
				uint8(models.StateAccepted),
				uint8(models.StateRejected),
				uint8(models.StateForSale),
			}},
		}
	case models.RoleTransporter:
		return []chain.EventFilter{
			{States: []uint8{
				uint8(models.StateAccepted),
				uint8(models.StateInTransit),
				uint8(models.StateForSale),
			}},
		}
	case models.RoleConsumer:
		return []chain.EventFilter{
			{States: []uint8{
				uint8(models.StateForSale),
				uint8(models.StateSold),
			}},
		}
	}
	return nil
}
