package http

import (
	"net/http"
	"net/url"

	"trackitall/internal/core"
	applog "trackitall/internal/log"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	expenses, err := s.expenses.ListExpenses(r.Context(), p, ownerFor(r, p))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	req, err := decodeExpenseRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.newExpense()
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.expenses.AddExpense(r.Context(), p, ownerFor(r, p), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/expenses/"+url.PathEscape(e.ID))
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	e, err := s.expenses.GetExpense(r.Context(), p, ownerFor(r, p), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if e == nil {
		writeError(w, r, core.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	req, err := decodeExpenseRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.expenses.UpdateExpense(r.Context(), p, ownerFor(r, p), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteExpense removes the expense, then its receipt blob. A blob
// that cannot be removed is logged and left behind.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	owner, id := ownerFor(r, p), r.PathValue("id")

	e, err := s.expenses.GetExpense(r.Context(), p, owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if e == nil {
		writeError(w, r, core.ErrNotFound)
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), p, owner, id); err != nil {
		writeError(w, r, err)
		return
	}

	if e.ReceiptID != nil {
		if err := s.receipts.DeleteReceipt(r.Context(), *e.ReceiptID); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to delete receipt of deleted expense",
				applog.FieldExpenseID, id,
				applog.FieldBlobName, *e.ReceiptID,
				applog.FieldError, err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
