package analog

// FakeReader returns fixed counts.
type FakeReader struct {
	Grid int
	Gen  int

	// Err, if set, is returned by Read.
	Err error

	Reads int
}

// Read returns the configured counts.
func (f *FakeReader) Read() (int, int, error) {
	f.Reads++
	if f.Err != nil {
		return 0, 0, f.Err
	}
	return f.Grid, f.Gen, nil
}
