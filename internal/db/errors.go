package db

import "errors"

// ErrKeyNotFound signals a missing counter.
var ErrKeyNotFound = errors.New("db: key not found")

// Operation names reported in Error.
const (
	OpPing    = "PING"
	OpCounter = "GET"
	OpAdd     = "INCRBY"
	OpExpire  = "EXPIRE"
)

// Error records which command failed on which key.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return "db " + e.Op + ": " + e.Err.Error()
	}
	return "db " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
