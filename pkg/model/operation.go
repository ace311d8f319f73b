package model

// EventType is the decision vocabulary of the reconciliation step.
type EventType string

const (
	EventAdd    EventType = "ADD"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventNone   EventType = "NONE"
)

// Operation is one reconciliation decision proposed by the LLM against the
// existing memories. ADD carries no ID (the ID is minted at apply time);
// UPDATE and DELETE refer to an existing memory. NONE is an explicit no-op
// and has no storage effect.
type Operation struct {
	Event EventType
	ID    MemoryID
	Text  string
}
