package model

// OperationFailure records a single operation that could not be applied.
// Failures are isolated per operation and never abort the rest of a batch.
type OperationFailure struct {
	Operation Operation
	Reason    error
}

// ApplyReport summarizes the application of one normalized operation batch.
type ApplyReport struct {
	Added    int
	Updated  int
	Deleted  int
	Skipped  int // NONE operations and operations dropped as unapplicable
	Failures []OperationFailure
}

// Mutations returns the number of operations that changed the store.
func (r *ApplyReport) Mutations() int {
	return r.Added + r.Updated + r.Deleted
}
