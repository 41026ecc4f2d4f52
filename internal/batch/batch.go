// Package batch collects per-row outcomes of due sweeps.
package batch

type RowError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Summary is returned by sweeps instead of failing the whole run.
type Summary struct {
	Processed int        `json:"processed"`
	Failed    int        `json:"failed"`
	Skipped   int        `json:"skipped"`
	Errors    []RowError `json:"errors"`
}

func New() *Summary {
	return &Summary{Errors: []RowError{}}
}

func (s *Summary) Succeed() {
	s.Processed++
}

func (s *Summary) Skip() {
	s.Skipped++
}

func (s *Summary) Fail(id string, err error) {
	s.Failed++
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	s.Errors = append(s.Errors, RowError{ID: id, Error: msg})
}
