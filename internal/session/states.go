// Package session owns one tuning run end to end: seeding the
// optimizer, driving its search loop, logging trials, stopping early,
// and persisting the result.
package session

// State is the run controller's lifecycle position.
type State string

const (
	StateInit            State = "INIT"
	StateSeeding         State = "SEEDING"
	StateSearching       State = "SEARCHING"
	StateEarlyStopped    State = "EARLY_STOPPED"
	StateBudgetExhausted State = "BUDGET_EXHAUSTED"
	StateFinalized       State = "FINALIZED"
)

// Terminal reports whether the search has reached an outcome.
func (s State) Terminal() bool {
	return s == StateEarlyStopped || s == StateBudgetExhausted || s == StateFinalized
}
