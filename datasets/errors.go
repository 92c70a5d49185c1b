package datasets

import "fmt"

// ConfigurationError reports a generator that cannot be built with the given
// settings. It is raised at construction time and is never retried.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(op string, format string, args ...any) error {
	return &ConfigurationError{Op: op, Err: fmt.Errorf(format, args...)}
}

// DecodeError reports a decoder failure. Clip is set when the failure can be
// pinned to a single clip.
type DecodeError struct {
	Clip *ClipID
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Clip != nil {
		return fmt.Sprintf("decode clip %s: %v", e.Clip, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func clipDecodeErr(id ClipID, err error) error {
	return &DecodeError{Clip: &id, Err: err}
}

// ShapeError reports inconsistent data: odd joint counts, ragged batches,
// malformed cache files.
type ShapeError struct {
	Msg string
}

func (e *ShapeError) Error() string { return "shape error: " + e.Msg }

func shapeErr(format string, args ...any) error {
	return &ShapeError{Msg: fmt.Sprintf(format, args...)}
}
