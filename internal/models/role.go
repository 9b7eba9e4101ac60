package models

// Role is a named group accounts may belong to. Names are unique under
// case-insensitive comparison.
type Role struct {
	ID   int64
	Name string
}
