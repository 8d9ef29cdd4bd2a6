package loader

import "fmt"

// FileAccessError indicates a file or folder exists but could not be read.
type FileAccessError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("cannot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// UnsupportedFileTypeError indicates a file's extension is not one of the
// loadable document types.
type UnsupportedFileTypeError struct {
	Path      string
	Extension string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %q: %s", e.Extension, e.Path)
}

// ExtractionError indicates a supported file could not be parsed into text.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
