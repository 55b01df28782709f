// Package notify delivers overdue and fine notices to borrowers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"libraloan/internal/circulation"
)

const (
	KindOverdue = "overdue"
	KindFine    = "fine"
)

// Message is the payload a notifier delivers.
type Message struct {
	Kind      string                 `json:"kind"`
	UserID    uuid.UUID              `json:"user_id"`
	LoanID    uuid.UUID              `json:"loan_id"`
	GroupID   *uuid.UUID             `json:"group_id,omitempty"`
	BookID    uuid.UUID              `json:"book_id"`
	BookTitle string                 `json:"book_title"`
	DueAt     time.Time              `json:"due_at"`
	Amount    *decimal.Decimal       `json:"amount,omitempty"`
	Reason    circulation.FineReason `json:"reason,omitempty"`
}

func newMessage(kind string, userID uuid.UUID, loan *circulation.Loan, book *circulation.Book) Message {
	m := Message{
		Kind:    kind,
		UserID:  userID,
		LoanID:  loan.ID,
		GroupID: loan.GroupID,
		BookID:  loan.BookID,
		DueAt:   loan.DueAt,
	}
	if book != nil {
		m.BookTitle = book.Title
	}
	return m
}

// Log writes notices to a structured logger. It never fails.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (n *Log) SendOverdue(ctx context.Context, userID uuid.UUID, loan *circulation.Loan, book *circulation.Book) error {
	m := newMessage(KindOverdue, userID, loan, book)
	n.logger.InfoContext(ctx, "overdue notice",
		"user_id", m.UserID, "loan_id", m.LoanID, "book", m.BookTitle, "due_at", m.DueAt)
	return nil
}

func (n *Log) SendFine(ctx context.Context, userID uuid.UUID, loan *circulation.Loan, book *circulation.Book, amount decimal.Decimal, reason circulation.FineReason) error {
	m := newMessage(KindFine, userID, loan, book)
	n.logger.InfoContext(ctx, "fine notice",
		"user_id", m.UserID, "loan_id", m.LoanID, "book", m.BookTitle, "amount", amount.StringFixed(2), "reason", reason)
	return nil
}

// Webhook POSTs each notice as JSON to a fixed URL, throttled to a steady
// rate so a sweep over many loans does not flood the receiver.
type Webhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

func NewWebhook(url string, perSecond float64) *Webhook {
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (n *Webhook) SendOverdue(ctx context.Context, userID uuid.UUID, loan *circulation.Loan, book *circulation.Book) error {
	return n.post(ctx, newMessage(KindOverdue, userID, loan, book))
}

func (n *Webhook) SendFine(ctx context.Context, userID uuid.UUID, loan *circulation.Loan, book *circulation.Book, amount decimal.Decimal, reason circulation.FineReason) error {
	m := newMessage(KindFine, userID, loan, book)
	m.Amount = &amount
	m.Reason = reason
	return n.post(ctx, m)
}

func (n *Webhook) post(ctx context.Context, m Message) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify %s: %w", m.Kind, err)
	}

	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", m.Kind, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify %s: unexpected status code: %d", m.Kind, resp.StatusCode)
	}
	return nil
}

var (
	_ circulation.Notifier = (*Log)(nil)
	_ circulation.Notifier = (*Webhook)(nil)
)
