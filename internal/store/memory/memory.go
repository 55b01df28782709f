// Package memory holds in-process implementations of the circulation
// collaborators, used for tests and single-node development.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libraloan/internal/circulation"
)

// ErrCopyBounds is returned when a change would leave borrowed copies below
// zero or above the total.
var ErrCopyBounds = circulation.ErrCopyBounds

// Loans is an in-memory loan store with an event journal.
type Loans struct {
	mu     sync.RWMutex
	loans  map[uuid.UUID]*circulation.Loan
	order  []uuid.UUID
	events map[uuid.UUID][]circulation.LoanEvent
	nextID int64
}

func NewLoans() *Loans {
	return &Loans{
		loans:  make(map[uuid.UUID]*circulation.Loan),
		events: make(map[uuid.UUID][]circulation.LoanEvent),
	}
}

func (s *Loans) CreateLoan(ctx context.Context, loan *circulation.Loan, event circulation.LoanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.loans[loan.ID]; exists {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	s.loans[loan.ID] = loan.Clone()
	s.order = append(s.order, loan.ID)
	s.appendEvent(event)
	return nil
}

func (s *Loans) GetLoan(ctx context.Context, id uuid.UUID) (*circulation.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, ok := s.loans[id]
	if !ok {
		return nil, circulation.ErrLoanNotFound
	}
	return loan.Clone(), nil
}

func (s *Loans) UpdateLoan(ctx context.Context, loan *circulation.Loan, event circulation.LoanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.loans[loan.ID]
	if !ok {
		return circulation.ErrLoanNotFound
	}
	if current.Version != loan.Version {
		return circulation.ErrConcurrencyConflict
	}
	loan.Version++
	s.loans[loan.ID] = loan.Clone()
	s.appendEvent(event)
	return nil
}

func (s *Loans) appendEvent(event circulation.LoanEvent) {
	s.nextID++
	event.ID = s.nextID
	s.events[event.LoanID] = append(s.events[event.LoanID], event)
}

func (s *Loans) ListLoans(ctx context.Context, filter circulation.LoanFilter) ([]*circulation.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*circulation.Loan
	for _, id := range s.order {
		if loan := s.loans[id]; filter.Match(loan) {
			out = append(out, loan.Clone())
		}
	}
	return out, nil
}

func (s *Loans) LoanEvents(ctx context.Context, id uuid.UUID) ([]circulation.LoanEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[id]), nil
}

func (s *Loans) LoanBookIDs(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, id := range s.order {
		bookID := s.loans[id].BookID
		if !seen[bookID] {
			seen[bookID] = true
			out = append(out, bookID)
		}
	}
	return out, nil
}

// Books is an in-memory catalog.
type Books struct {
	mu    sync.RWMutex
	books map[uuid.UUID]*circulation.Book
}

func NewBooks() *Books {
	return &Books{books: make(map[uuid.UUID]*circulation.Book)}
}

// Put inserts or replaces a book. Borrowed copies of an existing book are
// kept.
func (s *Books) Put(ctx context.Context, book circulation.Book) error {
	if book.TotalCopies < 0 {
		return fmt.Errorf("book %s: negative total copies: %w", book.ID, ErrCopyBounds)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.books[book.ID]; ok {
		book.BorrowedCopies = current.BorrowedCopies
		if book.BorrowedCopies > book.TotalCopies {
			return fmt.Errorf("book %s: %d borrowed of %d: %w", book.ID, book.BorrowedCopies, book.TotalCopies, ErrCopyBounds)
		}
	}
	s.books[book.ID] = &book
	return nil
}

func (s *Books) Get(ctx context.Context, id uuid.UUID) (*circulation.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[id]
	if !ok {
		return nil, circulation.ErrBookNotFound
	}
	c := *book
	return &c, nil
}

func (s *Books) AdjustBorrowedCopies(ctx context.Context, id uuid.UUID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[id]
	if !ok {
		return circulation.ErrBookNotFound
	}
	next := book.BorrowedCopies + delta
	if next < 0 || next > book.TotalCopies {
		return fmt.Errorf("book %s: %d of %d: %w", id, next, book.TotalCopies, ErrCopyBounds)
	}
	book.BorrowedCopies = next
	return nil
}

// Groups is an in-memory membership registry.
type Groups struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*circulation.Group
	order  []uuid.UUID
}

func NewGroups() *Groups {
	return &Groups{groups: make(map[uuid.UUID]*circulation.Group)}
}

// Put inserts or replaces a group after checking its membership rules.
func (s *Groups) Put(ctx context.Context, group circulation.Group) error {
	if err := validateGroup(&group); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[group.ID]; !exists {
		s.order = append(s.order, group.ID)
	}
	group.Members = slices.Clone(group.Members)
	s.groups[group.ID] = &group
	return nil
}

// SetMembers replaces the member list, as an admin add/remove would.
func (s *Groups) SetMembers(ctx context.Context, id uuid.UUID, members []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[id]
	if !ok {
		return circulation.ErrGroupNotFound
	}
	next := *group
	next.Members = slices.Clone(members)
	if err := validateGroup(&next); err != nil {
		return err
	}
	s.groups[id] = &next
	return nil
}

func validateGroup(g *circulation.Group) error {
	if g.MaxMembers == 0 {
		g.MaxMembers = 6
	}
	if g.MaxMembers < 3 || g.MaxMembers > 6 {
		return fmt.Errorf("group %s: max members %d outside 3-6", g.ID, g.MaxMembers)
	}
	if n := len(g.Members); n < 3 || n > g.MaxMembers {
		return fmt.Errorf("group %s: %d members outside 3-%d", g.ID, n, g.MaxMembers)
	}
	seen := make(map[uuid.UUID]bool, len(g.Members))
	for _, m := range g.Members {
		if seen[m] {
			return fmt.Errorf("group %s: duplicate member %s", g.ID, m)
		}
		seen[m] = true
	}
	if !seen[g.LeaderID] {
		return fmt.Errorf("group %s: leader %s is not a member", g.ID, g.LeaderID)
	}
	return nil
}

func (s *Groups) Get(ctx context.Context, id uuid.UUID) (*circulation.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[id]
	if !ok {
		return nil, circulation.ErrGroupNotFound
	}
	return cloneGroup(group), nil
}

func (s *Groups) FindActiveForUser(ctx context.Context, userID uuid.UUID) (*circulation.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if g := s.groups[id]; !g.Disbanded && g.HasMember(userID) {
			return cloneGroup(g), nil
		}
	}
	return nil, nil
}

func (s *Groups) AdjustTotalFines(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[id]
	if !ok {
		return circulation.ErrGroupNotFound
	}
	group.TotalFines = group.TotalFines.Add(delta)
	return nil
}

func cloneGroup(g *circulation.Group) *circulation.Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	return &c
}

// Balances is an in-memory fine balance table.
type Balances struct {
	mu       sync.RWMutex
	balances map[uuid.UUID]decimal.Decimal
}

func NewBalances() *Balances {
	return &Balances{balances: make(map[uuid.UUID]decimal.Decimal)}
}

func (s *Balances) Get(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[userID], nil
}

func (s *Balances) Adjust(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = s.balances[userID].Add(delta)
	return nil
}

var (
	_ circulation.LoanStore = (*Loans)(nil)
	_ circulation.Books     = (*Books)(nil)
	_ circulation.Groups    = (*Groups)(nil)
	_ circulation.Balances  = (*Balances)(nil)
)
