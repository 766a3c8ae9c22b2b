package IO

import (
	"bufio"
	"os"
)

// WritePredictions writes one decoded line per sample, newline-aligned with
// the input corpus.
func WritePredictions(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return &FileError{Path: path, Err: err}
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l + "\n"); err != nil {
			f.Close()
			return &FileError{Path: path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return &FileError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &FileError{Path: path, Err: err}
	}
	return nil
}
