// Package identifier generates the human-presentable numbers handed to
// candidates: payment order numbers and admission ticket numbers.
//
// Neither format is collision-proof; uniqueness is enforced by the store's
// unique indexes and a colliding insert surfaces as a conflict to the caller.
package identifier

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	id "examreg/pkg/domain"
)

// Generator produces order and ticket numbers from a timestamp plus a random
// suffix. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Generator seeded from the wall clock.
func New() *Generator {
	return NewWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewWithSource returns a Generator over a caller-supplied source, letting
// tests pin the random suffix.
func NewWithSource(src rand.Source) *Generator {
	return &Generator{rnd: rand.New(src)}
}

// OrderNumber returns "PO" + yyyyMMddHHmmss + 6 random digits.
func (g *Generator) OrderNumber(now time.Time) string {
	g.mu.Lock()
	n := g.rnd.Intn(900000) + 100000
	g.mu.Unlock()
	return fmt.Sprintf("PO%s%06d", now.Format("20060102150405"), n)
}

// AdmissionTicketNumber returns the exam ID zero-padded to 4 digits +
// yyyyMMdd + 5 random digits.
func (g *Generator) AdmissionTicketNumber(examID id.ExamID, now time.Time) string {
	g.mu.Lock()
	n := g.rnd.Intn(90000) + 10000
	g.mu.Unlock()
	return fmt.Sprintf("%04d%s%05d", examID, now.Format("20060102"), n)
}
