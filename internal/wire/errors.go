package wire

import "errors"

var (
	errNotObject   = errors.New("wire: message is not a JSON object")
	errMissingType = errors.New("wire: message has no string \"type\" field")
)
