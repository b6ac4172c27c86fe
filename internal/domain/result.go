package domain

type ResultState string

const (
	ResultCompleted             ResultState = "completed"
	ResultCompletedWithWarnings ResultState = "completed_with_warnings"
	ResultError                 ResultState = "error"
)

// PersistenceResult is the outcome of a ledger write. Err keeps the classified
// cause so callers can use errors.Is; it never crosses the wire.
type PersistenceResult struct {
	ID       string      `json:"id,omitempty"`
	State    ResultState `json:"state"`
	Message  string      `json:"message,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
	Err      error       `json:"-"`
}

func Completed(id string) PersistenceResult {
	return PersistenceResult{ID: id, State: ResultCompleted}
}

func CompletedWithWarnings(id string, cause error, warnings ...string) PersistenceResult {
	r := PersistenceResult{ID: id, State: ResultCompletedWithWarnings, Err: cause, Warnings: warnings}
	if cause != nil {
		r.Message = cause.Error()
		if len(r.Warnings) == 0 {
			r.Warnings = []string{cause.Error()}
		}
	}
	return r
}

func Failed(err error) PersistenceResult {
	return PersistenceResult{State: ResultError, Message: err.Error(), Err: err}
}

// Persisted reports whether the access reached the store.
func (r PersistenceResult) Persisted() bool {
	return r.State == ResultCompleted || r.State == ResultCompletedWithWarnings
}
