package inbox

import (
	"fmt"

	"crocker/internal/errcode"
)

// DefaultMaxBlob matches the largest document the event-list reader looks at.
const DefaultMaxBlob = 4095

// Assembler joins config chunks back into one blob on the consumer side.
type Assembler struct {
	buf      []byte
	limit    int
	overflow bool
}

func NewAssembler(limit int) *Assembler {
	if limit <= 0 {
		limit = DefaultMaxBlob
	}
	return &Assembler{buf: make([]byte, 0, limit), limit: limit}
}

// Add appends a chunk. When it is the Final chunk, Add returns the complete
// blob (valid until the next Add) and true. A blob that outgrew the limit is
// discarded at its Final chunk with an errcode.CapacityExceeded error.
func (a *Assembler) Add(it Item) ([]byte, bool, error) {
	if !a.overflow {
		if len(a.buf)+len(it.Data) > a.limit {
			a.overflow = true
		} else {
			a.buf = append(a.buf, it.Data...)
		}
	}
	if !it.Final {
		return nil, false, nil
	}

	defer a.Reset()
	if a.overflow {
		return nil, false, errcode.New(errcode.CapacityExceeded, "inbox.assemble",
			fmt.Sprintf("blob exceeds %d bytes", a.limit))
	}
	return a.buf, true, nil
}

// Pending reports how many bytes of an unfinished blob are held.
func (a *Assembler) Pending() int { return len(a.buf) }

// Reset drops any partial blob.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.overflow = false
}
