package sentiment

import "errors"

var (
	ErrMalformedLabel       = errors.New("malformed star label")
	ErrRatingOutOfRange     = errors.New("star rating out of range")
	ErrConfidenceOutOfRange = errors.New("confidence out of range")
	ErrEmptyText            = errors.New("text is empty")
)

// InitError reports that the model service could not be initialized.
// It is fatal: the serve loop is never entered.
type InitError struct {
	Provider string
	Model    string
	Err      error
}

func (e *InitError) Error() string {
	if e.Err == nil {
		return "model initialization failed"
	}
	return e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ClassifyError reports a failure for a single request. The serve loop
// reports it and keeps going.
type ClassifyError struct {
	Err error
}

func (e *ClassifyError) Error() string {
	if e.Err == nil {
		return "classification failed"
	}
	return e.Err.Error()
}

func (e *ClassifyError) Unwrap() error {
	return e.Err
}

// AsClassifyError wraps err in a *ClassifyError unless it already is one.
func AsClassifyError(err error) *ClassifyError {
	if err == nil {
		return nil
	}
	var ce *ClassifyError
	if errors.As(err, &ce) {
		return ce
	}
	return &ClassifyError{Err: err}
}
