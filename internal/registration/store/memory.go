package store

import (
	"context"
	"sort"
	"sync"

	"examreg/internal/registration/models"
	id "examreg/pkg/domain"
	"examreg/pkg/sentinel"
)

// InMemory keeps registrations in a map and returns value snapshots. The
// (user, exam) uniqueness rule is enforced under the store mutex, matching
// what the unique index gives PostgresStore.
type InMemory struct {
	mu     sync.RWMutex
	regs   map[id.RegistrationID]models.Registration
	nextID int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		regs:   make(map[id.RegistrationID]models.Registration),
		nextID: 1,
	}
}

// Create inserts a registration, assigning its ID. Returns
// sentinel.ErrConflict if the user already holds one for the exam.
func (s *InMemory) Create(_ context.Context, reg models.Registration) (models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.regs {
		if existing.UserID == reg.UserID && existing.ExamID == reg.ExamID {
			return models.Registration{}, sentinel.ErrConflict
		}
	}
	reg.ID = id.RegistrationID(s.nextID)
	s.nextID++
	s.regs[reg.ID] = reg
	return reg, nil
}

func (s *InMemory) FindByID(_ context.Context, regID id.RegistrationID) (models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.regs[regID]
	if !ok {
		return models.Registration{}, sentinel.ErrNotFound
	}
	return reg, nil
}

func (s *InMemory) FindByUserAndExam(_ context.Context, userID id.UserID, examID id.ExamID) (models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, reg := range s.regs {
		if reg.UserID == userID && reg.ExamID == examID {
			return reg, nil
		}
	}
	return models.Registration{}, sentinel.ErrNotFound
}

// Update replaces an existing registration wholesale.
func (s *InMemory) Update(_ context.Context, reg models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regs[reg.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.regs[reg.ID] = reg
	return nil
}

// Delete removes a registration row. Used for cancellation.
func (s *InMemory) Delete(_ context.Context, regID id.RegistrationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regs[regID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.regs, regID)
	return nil
}

// ListByUser returns one candidate's registrations, newest first.
func (s *InMemory) ListByUser(_ context.Context, userID id.UserID) ([]models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Registration
	for _, reg := range s.regs {
		if reg.UserID == userID {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// List applies the filter and paginates. The second return is the total
// match count before pagination.
func (s *InMemory) List(_ context.Context, filter ListFilter) ([]models.Registration, int64, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Registration
	for _, reg := range s.regs {
		if matches(reg, filter) {
			all = append(all, reg)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	start := filter.offset()
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// Stats counts registrations by state for one exam; a zero examID counts
// everything.
func (s *InMemory) Stats(_ context.Context, examID id.ExamID) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	for _, reg := range s.regs {
		if !examID.IsZero() && reg.ExamID != examID {
			continue
		}
		st.Total++
		switch reg.AuditStatus {
		case models.AuditStatusPending:
			st.Pending++
		case models.AuditStatusApproved:
			st.Approved++
		case models.AuditStatusRejected:
			st.Rejected++
		}
		switch reg.PaymentStatus {
		case models.PaymentStatusPaid:
			st.Paid++
		case models.PaymentStatusRefunded:
			st.Refunded++
		}
	}
	return st, nil
}

// Execute runs check then apply on a registration while the store mutex is
// held, so concurrent transitions on the same row serialize. check must not
// mutate; apply runs only when check passes.
func (s *InMemory) Execute(_ context.Context, regID id.RegistrationID,
	check func(*models.Registration) error, apply func(*models.Registration)) (models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.regs[regID]
	if !ok {
		return models.Registration{}, sentinel.ErrNotFound
	}
	if err := check(&reg); err != nil {
		return models.Registration{}, err
	}
	apply(&reg)
	s.regs[regID] = reg
	return reg, nil
}

// ExecuteDelete removes a registration only if check passes, with the store
// mutex held across check and delete. A transition racing the delete cannot
// land between the two.
func (s *InMemory) ExecuteDelete(_ context.Context, regID id.RegistrationID,
	check func(*models.Registration) error) (models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.regs[regID]
	if !ok {
		return models.Registration{}, sentinel.ErrNotFound
	}
	if err := check(&reg); err != nil {
		return models.Registration{}, err
	}
	delete(s.regs, regID)
	return reg, nil
}
