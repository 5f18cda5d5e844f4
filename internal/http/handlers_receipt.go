package http

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"trackitall/internal/core"
	applog "trackitall/internal/log"
	"trackitall/internal/services"
)

const receiptFormField = "file"

// handlePutReceipt uploads the multipart "file" field and links it to the
// expense, replacing any receipt already attached.
func (s *Server) handlePutReceipt(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	file, header, err := r.FormFile(receiptFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, errTooLarge)
			return
		}
		writeError(w, r, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	ext := filepath.Ext(header.Filename)

	var receipt services.Receipt
	if e.ReceiptID != nil {
		receipt, err = s.receipts.UpdateReceipt(r.Context(), *e.ReceiptID, file, ext)
	} else {
		receipt, err = s.receipts.UploadReceipt(r.Context(), file, ext)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = s.expenses.SetReceiptID(r.Context(), p, owner, id, &receipt.BlobName)
	if errors.Is(err, core.ErrConflict) {
		// SetReceiptID re-reads the expense, so one retry picks up the new etag.
		err = s.expenses.SetReceiptID(r.Context(), p, owner, id, &receipt.BlobName)
	}
	if err != nil {
		// Unlinked blobs are never read again. On a replace the expense keeps
		// pointing at the deleted previous blob; reads answer 404 and another
		// PUT relinks it.
		if delErr := s.receipts.DeleteReceipt(r.Context(), receipt.BlobName); delErr != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to remove unlinked receipt",
				applog.FieldBlobName, receipt.BlobName, applog.FieldError, delErr)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	e, err := s.expenses.GetExpense(r.Context(), p, ownerFor(r, p), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if e == nil || e.ReceiptID == nil {
		writeError(w, r, core.ErrNotFound)
		return
	}

	u, err := s.receipts.GetReceiptURL(r.Context(), *e.ReceiptID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// handleDeleteReceipt removes the blob and unlinks it. Deleting from an
// expense without a receipt succeeds.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
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
	if e.ReceiptID == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.receipts.DeleteReceipt(r.Context(), *e.ReceiptID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.expenses.SetReceiptID(r.Context(), p, owner, id, nil); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
