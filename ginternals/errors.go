package ginternals

import "errors"

// ErrObjectNotFound is an error corresponding to a git object not being
// found
var ErrObjectNotFound = errors.New("object not found")

// ErrObjectAmbiguous is returned when a short oid prefix matches more
// than one object
var ErrObjectAmbiguous = errors.New("ambiguous object id")
