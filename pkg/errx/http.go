package errx

import "net/http"

// HTTPStatusOf returns the status carried by err, 500 for foreign errors
func HTTPStatusOf(err error) int {
	if e, ok := As(err); ok && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// PublicMessage returns text safe to show a client. Foreign errors are not exposed.
func PublicMessage(err error) string {
	if e, ok := As(err); ok {
		return e.Message
	}
	return "Internal Server Error"
}
