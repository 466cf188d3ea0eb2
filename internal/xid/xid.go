package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns "<prefix>_<uuidv7>". Version 7 ids sort by creation time and carry
// enough randomness that rapid successive calls never collide.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return fmt.Sprintf("%s_%s", prefix, id.String())
}
