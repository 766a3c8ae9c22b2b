package IO

import "fmt"

// FileError reports an input or output file that could not be used.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// DataFormatError reports a corpus row that does not follow the file format.
// Line is 1-based; 0 means the whole file.
type DataFormatError struct {
	Path string
	Line int
	Msg  string
}

func (e *DataFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}
