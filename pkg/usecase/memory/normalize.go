package memory

import "github.com/m-mizutani/tamias/pkg/model"

// eventPriority ranks operations competing for the same memory ID.
var eventPriority = map[model.EventType]int{
	model.EventDelete: 3,
	model.EventUpdate: 2,
	model.EventAdd:    1,
	model.EventNone:   0,
}

// NormalizeOperations deterministically cleans a raw operation batch
// before it is applied. Pure function, no I/O.
//
// Rules:
//   - operations with an unknown event are discarded
//   - ADD operations with identical text collapse to one, first kept
//   - a non-ADD operation without an ID cannot be applied and is dropped
//   - among operations sharing an ID, only the highest-priority survives
//     (DELETE > UPDATE > NONE); on equal priority the first occurrence wins
//   - output lists all ADDs first in dedup order, then the per-ID
//     survivors in first-seen ID order
func NormalizeOperations(ops []model.Operation) []model.Operation {
	var adds []model.Operation
	seenTexts := make(map[string]bool)

	byID := make(map[model.MemoryID]model.Operation)
	var idOrder []model.MemoryID

	for _, op := range ops {
		priority, known := eventPriority[op.Event]
		if !known {
			continue
		}

		if op.Event == model.EventAdd {
			if op.Text == "" || seenTexts[op.Text] {
				continue
			}
			seenTexts[op.Text] = true
			adds = append(adds, op)
			continue
		}

		if op.ID == "" {
			continue
		}

		current, exists := byID[op.ID]
		if !exists {
			byID[op.ID] = op
			idOrder = append(idOrder, op.ID)
			continue
		}
		if priority > eventPriority[current.Event] {
			byID[op.ID] = op
		}
	}

	out := make([]model.Operation, 0, len(adds)+len(idOrder))
	out = append(out, adds...)
	for _, id := range idOrder {
		out = append(out, byID[id])
	}
	return out
}
