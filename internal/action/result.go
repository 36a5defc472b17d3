package action

import "errors"

// Details is the free-form payload of a Result
type Details map[string]interface{}

// With returns a copy of d with the extra entries applied
func (d Details) With(extra Details) Details {
	out := make(Details, len(d)+len(extra))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Float reads a numeric entry regardless of its concrete numeric type
func (d Details) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool reads a boolean entry
func (d Details) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// String reads a string entry
func (d Details) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Has reports whether key is present and non-nil
func (d Details) Has(key string) bool {
	v, ok := d[key]
	return ok && v != nil
}

// Result is the outcome of executing a single Action
type Result struct {
	Success bool      `json:"success"`
	Error   ErrorKind `json:"error,omitempty"`
	Message string    `json:"message,omitempty"`
	Details Details   `json:"details,omitempty"`
}

// Succeeded builds a successful result
func Succeeded(message string, details Details) Result {
	return Result{Success: true, Message: message, Details: details}
}

// Failed builds a failed result
func Failed(kind ErrorKind, message string) Result {
	return Result{Success: false, Error: kind, Message: message}
}

// FromError converts err into a failed result, keeping the classification when present
func FromError(err error, fallback ErrorKind) Result {
	var ae *Error
	if errors.As(err, &ae) {
		return Failed(ae.Kind, ae.Message)
	}
	return Failed(fallback, err.Error())
}

// WithDetails returns a copy of r whose details have extra merged in
func (r Result) WithDetails(extra Details) Result {
	r.Details = r.Details.With(extra)
	return r
}

// Scroll measurement keys
const (
	DetailScrolled        = "scrolled"
	DetailStartPosition   = "startPosition"
	DetailEndPosition     = "endPosition"
	DetailRequestedChange = "requestedChange"
	DetailActualChange    = "actualChange"
	DetailIsAtTop         = "isAtTop"
	DetailIsAtBottom      = "isAtBottom"
	DetailMaxScroll       = "maxScroll"
	DetailViewportHeight  = "viewportHeight"
	DetailDocumentHeight  = "documentHeight"
)

// Enrichment and element keys
const (
	DetailElement         = "element"
	DetailText            = "text"
	DetailKey             = "key"
	DetailSubmitted       = "submitted"
	DetailWaited          = "waited"
	DetailScreenshot      = "screenshot"
	DetailHTML            = "html"
	DetailActionSucceeded = "actionSucceeded"
	DetailReason          = "reason"
)
