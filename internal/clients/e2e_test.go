package clients_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"libraloan/internal/catalog"
	"libraloan/internal/circulation"
	"libraloan/internal/clients"
	"libraloan/internal/lock"
	"libraloan/internal/membership"
	"libraloan/internal/notify"
	"libraloan/internal/store/memory"
)

type services struct {
	catalog    catalog.Service
	membership membership.Service
	ledger     *circulation.Ledger
	now        time.Time
	mu         sync.Mutex
}

func (s *services) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *services) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

// startServices runs the catalog and membership services over HTTP and a
// ledger that reaches them only through the clients.
func startServices(t *testing.T) *services {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &services{
		catalog:    catalog.NewService(memory.NewBooks(), logger),
		membership: membership.NewService(memory.NewGroups(), memory.NewBalances(), rate.NewLimiter(rate.Inf, 0), logger),
		now:        time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC),
	}

	catalogRouter := chi.NewRouter()
	catalog.NewHandler(s.catalog).Routes(catalogRouter)
	catalogSrv := httptest.NewServer(catalogRouter)
	t.Cleanup(catalogSrv.Close)

	membershipRouter := chi.NewRouter()
	membership.NewHandler(s.membership).Routes(membershipRouter)
	membershipSrv := httptest.NewServer(membershipRouter)
	t.Cleanup(membershipSrv.Close)

	members := clients.NewMembershipClient(membershipSrv.URL, logger)
	s.ledger = circulation.NewLedger(circulation.Deps{
		Loans:    memory.NewLoans(),
		Books:    clients.NewCatalogClient(catalogSrv.URL, logger),
		Groups:   members,
		Balances: members.Balances(),
		Notifier: notify.NewLog(logger),
		Locker:   lock.NewKeyed(),
		Logger:   logger,
		Clock:    s.clock,
	}, circulation.DefaultPolicy())
	return s
}

func TestGroupLoanAcrossServices(t *testing.T) {
	ctx := context.Background()
	s := startServices(t)

	book, err := s.catalog.AddBook(ctx, catalog.BookInput{Title: "Kindred", Price: decimal.NewFromInt(100), TotalCopies: 1})
	require.NoError(t, err)
	ms := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	group, err := s.membership.RegisterGroup(ctx, membership.GroupInput{Name: "Tuesday club", Members: ms})
	require.NoError(t, err)

	loan, err := s.ledger.BorrowGroup(ctx, ms[1], group.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, s.clock().Add(180*24*time.Hour), loan.DueAt)

	got, err := s.catalog.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BorrowedCopies)

	// Members of the borrowing group are now blocked individually.
	other, err := s.catalog.AddBook(ctx, catalog.BookInput{Title: "Dawn", Price: decimal.NewFromInt(30), TotalCopies: 1})
	require.NoError(t, err)
	denial, err := s.ledger.CanBorrowIndividual(ctx, ms[2], other.ID)
	require.NoError(t, err)
	require.NotNil(t, denial)
	assert.Equal(t, circulation.ReasonGroupHasActiveLoan, denial.Reason)

	s.advance(181 * 24 * time.Hour)
	returned, err := s.ledger.ReturnLoan(ctx, circulation.ReturnRequest{LoanID: loan.ID, CallerID: ms[2], Condition: circulation.ConditionGood})
	require.NoError(t, err)
	assert.True(t, returned.FineAmount.Equal(decimal.NewFromInt(250)))

	want := []string{"83.34", "83.33", "83.33"}
	for i, m := range ms {
		b, err := s.membership.Balance(ctx, m)
		require.NoError(t, err)
		assert.True(t, b.Equal(decimal.RequireFromString(want[i])), "member %d balance %s", i, b)
	}
	g, err := s.membership.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, g.TotalFines.Equal(decimal.NewFromInt(250)))

	_, err = s.ledger.PayFine(ctx, loan.ID)
	require.NoError(t, err)
	for _, m := range ms {
		b, err := s.membership.Balance(ctx, m)
		require.NoError(t, err)
		assert.True(t, b.IsZero())
	}

	got, err = s.catalog.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Zero(t, got.BorrowedCopies)
}

func TestUnknownRemoteRecords(t *testing.T) {
	ctx := context.Background()
	s := startServices(t)

	_, err := s.ledger.BorrowIndividual(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, circulation.ErrBookNotFound)

	book, err := s.catalog.AddBook(ctx, catalog.BookInput{Title: "Wild Seed", Price: decimal.NewFromInt(20), TotalCopies: 1})
	require.NoError(t, err)
	_, err = s.ledger.BorrowGroup(ctx, uuid.New(), uuid.New(), book.ID)
	assert.ErrorIs(t, err, circulation.ErrGroupNotFound)
}
