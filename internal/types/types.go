// README: Shared identifiers and geographic point used across modules.
package types

import "github.com/google/uuid"

type ID string

type Point struct {
	Lat float64
	Lng float64
}

func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// NewID returns a random UUID string id.
func NewID() ID {
	return ID(uuid.NewString())
}

// DerivedID returns a stable id for the given parts. Same parts, same id.
func DerivedID(parts ...ID) ID {
	name := make([]byte, 0, 64)
	for i, p := range parts {
		if i > 0 {
			name = append(name, '/')
		}
		name = append(name, p...)
	}
	return ID(uuid.NewSHA1(uuid.NameSpaceOID, name).String())
}
