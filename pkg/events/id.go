package events

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces process-unique event IDs of the form evt_<seq>_<suffix>.
// The sequence keeps IDs ordered within a process; the random suffix keeps
// them distinct across processes feeding the same relay.
type IDGenerator struct {
	seq    atomic.Uint64
	suffix func() string
}

// NewIDGenerator creates a generator with a random suffix per ID.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{suffix: randomSuffix}
}

// Next returns a new ID.
func (g *IDGenerator) Next() string {
	n := g.seq.Add(1)
	suffix := randomSuffix
	if g.suffix != nil {
		suffix = g.suffix
	}
	return fmt.Sprintf("evt_%d_%s", n, suffix())
}

func randomSuffix() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return "00000000"
	}
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
