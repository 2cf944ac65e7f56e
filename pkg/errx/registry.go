package errx

import "sync"

type entry struct {
	errType Type
	status  int
	message string
}

// Registry holds the error codes of one domain, prefixed with the domain name
type Registry struct {
	prefix string
	mu     sync.RWMutex
	codes  map[string]entry
}

// NewRegistry creates a registry whose codes are rendered as PREFIX.CODE
func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix: prefix,
		codes:  make(map[string]entry),
	}
}

// Register adds a code and returns its fully qualified name
func (r *Registry) Register(code string, errType Type, status int, message string) string {
	full := r.prefix + "." + code

	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[full] = entry{errType: errType, status: status, message: message}
	return full
}

// New instantiates a registered code. Unknown codes become internal errors.
func (r *Registry) New(code string) *Error {
	r.mu.RLock()
	e, ok := r.codes[code]
	r.mu.RUnlock()

	if !ok {
		return &Error{
			Code:       code,
			Type:       TypeInternal,
			Message:    "unregistered error code",
			HTTPStatus: statusForType(TypeInternal),
		}
	}

	return &Error{
		Code:       code,
		Type:       e.errType,
		Message:    e.message,
		HTTPStatus: e.status,
	}
}

// NewWithCause instantiates a registered code wrapping err
func (r *Registry) NewWithCause(code string, err error) *Error {
	return r.New(code).WithError(err)
}
