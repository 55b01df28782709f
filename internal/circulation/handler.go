package circulation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
	sweeper SweepRunner
	logger  *slog.Logger
}

// NewHandler exposes service over HTTP. sweeper may be nil, in which case
// POST /sweeps is not mounted.
func NewHandler(service Service, sweeper SweepRunner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, sweeper: sweeper, logger: logger}
}

// Routes mounts the circulation endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/eligibility/individual", h.HandleCanBorrowIndividual)
	r.Post("/eligibility/group", h.HandleCanBorrowGroup)

	r.Post("/loans/individual", h.HandleBorrowIndividual)
	r.Post("/loans/group", h.HandleBorrowGroup)
	r.Get("/loans/{id}", h.HandleGetLoan)
	r.Get("/loans/{id}/events", h.HandleLoanEvents)
	r.Post("/loans/{id}/return", h.HandleReturn)
	r.Post("/loans/{id}/pay", h.HandlePayFine)
	r.Post("/loans/{id}/release-copy", h.HandleReleaseLostCopy)

	r.Get("/users/{id}/loans", h.handleActorLoans(ActorUser))
	r.Get("/groups/{id}/loans", h.handleActorLoans(ActorGroup))

	if h.sweeper != nil {
		r.Post("/sweeps", h.HandleSweep)
	}
}

type borrowRequest struct {
	UserID  uuid.UUID `json:"user_id"`
	GroupID uuid.UUID `json:"group_id"`
	BookID  uuid.UUID `json:"book_id"`
}

type eligibilityResponse struct {
	Eligible bool    `json:"eligible"`
	Denial   *Denial `json:"denial,omitempty"`
}

func (h *Handler) HandleCanBorrowIndividual(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	denial, err := h.service.CanBorrowIndividual(r.Context(), req.UserID, req.BookID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{Eligible: denial == nil, Denial: denial})
}

func (h *Handler) HandleCanBorrowGroup(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	denial, err := h.service.CanBorrowGroup(r.Context(), req.UserID, req.GroupID, req.BookID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{Eligible: denial == nil, Denial: denial})
}

func (h *Handler) HandleBorrowIndividual(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	loan, err := h.service.BorrowIndividual(r.Context(), req.UserID, req.BookID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (h *Handler) HandleBorrowGroup(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	loan, err := h.service.BorrowGroup(r.Context(), req.UserID, req.GroupID, req.BookID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (h *Handler) HandleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "loan_id")
	if !ok {
		return
	}
	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) HandleLoanEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "loan_id")
	if !ok {
		return
	}
	events, err := h.service.LoanEvents(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "loan_id")
	if !ok {
		return
	}
	var req struct {
		CallerID   uuid.UUID  `json:"caller_id"`
		Condition  string     `json:"condition"`
		Notes      string     `json:"notes"`
		ReturnedAt *time.Time `json:"returned_at"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	condition, err := ParseCondition(req.Condition)
	if err != nil {
		h.writeError(w, err)
		return
	}

	loan, err := h.service.ReturnLoan(r.Context(), ReturnRequest{
		LoanID:     id,
		CallerID:   req.CallerID,
		Condition:  condition,
		Notes:      req.Notes,
		ReturnedAt: req.ReturnedAt,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) HandlePayFine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "loan_id")
	if !ok {
		return
	}
	loan, err := h.service.PayFine(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) HandleReleaseLostCopy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "loan_id")
	if !ok {
		return
	}
	loan, err := h.service.ReleaseLostCopy(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleActorLoans(kind ActorKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r, string(kind)+"_id")
		if !ok {
			return
		}
		actor := Actor{Kind: kind, ID: id}

		var (
			loans []*Loan
			err   error
		)
		if r.URL.Query().Get("active") == "true" {
			loans, err = h.service.ListActiveLoansFor(r.Context(), actor)
		} else {
			loans, err = h.service.ListLoanHistoryFor(r.Context(), actor)
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
		if loans == nil {
			loans = []*Loan{}
		}
		writeJSON(w, http.StatusOK, loans)
	}
}

func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, &ValidationError{Field: "body", Message: err.Error()})
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &ValidationError{Field: field, Message: "not a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		validation *ValidationError
		denial     *Denial
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, validation)
	case errors.As(err, &denial):
		writeJSON(w, http.StatusConflict, denial)
	case errors.Is(err, ErrLoanNotFound), errors.Is(err, ErrBookNotFound), errors.Is(err, ErrGroupNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err))
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody(err))
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrNoFine),
		errors.Is(err, ErrLoanActive), errors.Is(err, ErrConcurrencyConflict), errors.Is(err, ErrSweepRunning):
		writeJSON(w, http.StatusConflict, errorBody(err))
	case errors.Is(err, ErrCollaboratorUnavailable):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err))
	default:
		h.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody(errors.New("internal error")))
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
