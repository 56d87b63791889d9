package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns "<prefix>-<uuid v4>".
func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}
