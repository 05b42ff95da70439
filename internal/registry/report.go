package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/sources/servicefile"
)

// ErrorKind classifies a per-file scan failure.
type ErrorKind string

const (
	KindIO         ErrorKind = "io"
	KindParse      ErrorKind = "parse"
	KindValidation ErrorKind = "validation"
	KindLimit      ErrorKind = "limit"
)

// ErrLimitReached is reported for files beyond the configured maximum.
var ErrLimitReached = errors.New("service limit reached")

// FileError is a skipped file and the reason it was skipped.
type FileError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// FileWarning is accepted but deprecated input in a loaded file.
type FileWarning struct {
	Path    string
	Message string
}

// ScanReport summarizes one pass over the services directory.
type ScanReport struct {
	Dir       string
	StartedAt time.Time
	Duration  time.Duration

	Loaded    int // new files
	Updated   int // tracked files whose mtime changed
	Unchanged int
	Removed   int

	Errors   []FileError
	Warnings []FileWarning

	// Err is set when the directory itself could not be read. The live set
	// is left untouched in that case.
	Err error
}

// Skipped reports whether the scan never reached the files.
func (r ScanReport) Skipped() bool { return r.Err != nil }

// Total is the number of live services after the scan.
func (r ScanReport) Total() int { return r.Loaded + r.Updated + r.Unchanged }

func classify(path string, err error) FileError {
	var perr *servicefile.ParseError
	var verr *servicefile.ValidationError
	switch {
	case errors.As(err, &perr):
		return FileError{Path: path, Kind: KindParse, Err: err}
	case errors.As(err, &verr):
		return FileError{Path: path, Kind: KindValidation, Err: err}
	case errors.Is(err, ErrLimitReached):
		return FileError{Path: path, Kind: KindLimit, Err: err}
	default:
		return FileError{Path: path, Kind: KindIO, Err: err}
	}
}
