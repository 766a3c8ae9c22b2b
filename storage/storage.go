package storage

import "time"

// EpochRecord is the dev-set result of one variant after one training epoch.
type EpochRecord struct {
	Run     string
	Variant string
	Epoch   int
	Loss    float64 // mean training loss over the epoch's batches

	SeqP, SeqR, SeqF float64 // token-level dev scores
	TripletF1        float64 // full-match dev triplet F1
	Best             bool    // the checkpoint was replaced
	Created          time.Time
}

// TestRecord is the test-set result of one checkpoint.
type TestRecord struct {
	Run     string
	Variant string
	Epoch   int // snapshot epoch, 0 for the best checkpoint
	Mode    int

	Correct, Predicted, Reference int
	Precision, Recall, F1         float64
	Created                       time.Time
}

// RunReader lists recorded runs.
type RunReader interface {
	// Runs returns the run names, oldest first.
	Runs() ([]string, error)

	// Epochs returns the epoch records of a run ordered by epoch and variant.
	Epochs(run string) ([]EpochRecord, error)

	// Tests returns the test records of a run in insertion order.
	Tests(run string) ([]TestRecord, error)
}

// RunWriter records results as they are produced.
type RunWriter interface {
	WriteEpoch(r EpochRecord) error
	WriteTest(r TestRecord) error
}

// RunRepository combines read and write operations
type RunRepository interface {
	RunReader
	RunWriter
}
