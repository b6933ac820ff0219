package resources

// ErrorKind classifies resolution failures that map to distinct protocol
// errors.
type ErrorKind int

const (
	KindUnknownScheme ErrorKind = iota + 1
	KindNotFound
)

// Error is a resolution failure attributable to the requested URI.
type Error struct {
	Kind ErrorKind
	URI  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnknownScheme:
		return "Unknown resource scheme: " + e.URI
	case KindNotFound:
		return "Resource not found: " + e.URI
	default:
		return "resource error: " + e.URI
	}
}
