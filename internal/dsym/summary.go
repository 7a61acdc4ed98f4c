package dsym

// Summary tallies per-file outcomes across one run.
type Summary struct {
	Uploaded int
	Warnings int
	Failures int
}

// Failed reports whether the run should finish with a failure status.
// Warnings alone never fail a run.
func (s Summary) Failed() bool {
	return s.Failures > 0
}
