package quotes

import "fmt"

// Kind classifies why fetching the quote list failed.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindHTTPStatus
	KindParse
	KindUnexpectedShape
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkError"
	case KindHTTPStatus:
		return "HttpStatus"
	case KindParse:
		return "ParseError"
	case KindUnexpectedShape:
		return "UnexpectedShape"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// FetchError is returned by HTTPSource.FetchQuotes. StatusCode is only set
// for KindHTTPStatus.
type FetchError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("%s(%d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
