package dateparse

import "fmt"

// ErrorKind classifies parse failures.
type ErrorKind int

const (
	// UnknownDate means no day-level grammar rule matched the token.
	UnknownDate ErrorKind = iota
	// UnknownTime means a time-like token was present but unparsable.
	UnknownTime
	// Ambiguous means the input matched more than one conflicting date.
	Ambiguous
)

// ParseError reports an unparsable expression along with the offending
// token so the caller can show the user exactly what was not understood.
type ParseError struct {
	Kind  ErrorKind
	Token string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case UnknownTime:
		return fmt.Sprintf("could not parse time %q", e.Token)
	case Ambiguous:
		return fmt.Sprintf("ambiguous date expression %q", e.Token)
	default:
		return fmt.Sprintf("could not parse date %q", e.Token)
	}
}

func unknownDate(token string) *ParseError {
	return &ParseError{Kind: UnknownDate, Token: token}
}

func unknownTime(token string) *ParseError {
	return &ParseError{Kind: UnknownTime, Token: token}
}

func ambiguous(token string) *ParseError {
	return &ParseError{Kind: Ambiguous, Token: token}
}
