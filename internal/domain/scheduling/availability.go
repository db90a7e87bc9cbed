package scheduling

import (
	"github.com/google/uuid"

	"github.com/medagenda/medagenda/internal/domain/directory"
)

// ProviderAvailability pairs a provider with their earliest open slot.
type ProviderAvailability struct {
	Provider directory.Provider `json:"provider"`
	NextSlot Slot               `json:"next_slot"`
}

// The earliest-open-slot search is a pipeline of small stages so each one
// can be exercised on its own: resolve the provider set, fetch their open
// slots in one ordered scan, then groupByProvider → earliestPerProvider →
// joinProviders.

func providerIDs(providers []directory.Provider) []uuid.UUID {
	ids := make([]uuid.UUID, len(providers))
	for i, p := range providers {
		ids[i] = p.ID
	}
	return ids
}

func groupByProvider(slots []Slot) map[uuid.UUID][]Slot {
	groups := make(map[uuid.UUID][]Slot)
	for _, s := range slots {
		groups[s.ProviderID] = append(groups[s.ProviderID], s)
	}
	return groups
}

func earliestPerProvider(groups map[uuid.UUID][]Slot) map[uuid.UUID]Slot {
	earliest := make(map[uuid.UUID]Slot, len(groups))
	for id, slots := range groups {
		min := slots[0]
		for _, s := range slots[1:] {
			if s.ScheduledAt.Before(min.ScheduledAt) {
				min = s
			}
		}
		earliest[id] = min
	}
	return earliest
}

// joinProviders pairs each provider with their earliest open slot,
// preserving the provider ordering. Providers with no open slot are
// dropped rather than emitted with an empty slot.
func joinProviders(providers []directory.Provider, earliest map[uuid.UUID]Slot) []ProviderAvailability {
	out := []ProviderAvailability{}
	for _, p := range providers {
		slot, ok := earliest[p.ID]
		if !ok {
			continue
		}
		out = append(out, ProviderAvailability{Provider: p, NextSlot: slot})
	}
	return out
}
