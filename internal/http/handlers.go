package http

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"trackitall/internal/core"
	applog "trackitall/internal/log"
)

const readinessTimeout = 5 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": now.UTC().Format(time.RFC3339),
		"uptime":    now.Sub(s.startedAt).String(),
	})
}

// handleReady runs every registered readiness check under one deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any, len(s.readiness)+1)

	names := make([]string, 0, len(s.readiness))
	for name := range s.readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.readiness[name](ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			s.logger.WarnContext(ctx, "Readiness check failed", "check", name, applog.FieldError, err)
			continue
		}
		checks[name] = "ok"
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleAuthenticated is called by clients after sign-in. It echoes the
// resolved principal and queues the welcome email on first sight.
func (s *Server) handleAuthenticated(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	s.accounts.QueueOnboardingEmail(r.Context(), p.ObjectID, p.Email)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.expenses.GetCategories())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	q := r.URL.Query()

	start, end, err := parseReportRange(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if start.After(end) {
		writeError(w, r, core.ErrInvalidRange)
		return
	}
	sendEmail := false
	if v := q.Get("email"); v != "" {
		if sendEmail, err = strconv.ParseBool(v); err != nil {
			writeError(w, r, errMalformedBody)
			return
		}
	}

	report, err := s.expenses.GenerateReport(r.Context(), p, ownerFor(r, p), start, end)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Report failed", applog.FieldError, err)
		}
		// The failed report carries the client safe message.
		writeJSON(w, status, report)
		return
	}

	if sendEmail {
		// The report goes to the caller, also when an admin reads another owner.
		if err := s.accounts.QueueReportEmail(r.Context(), p.Email, report); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, report)
}
