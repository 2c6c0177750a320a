package server

import (
	"net/http"
	"strings"
	"time"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Accounts
	mux.HandleFunc("/api/accounts/group/pnl", s.handleGroupPnl)
	mux.HandleFunc("/api/accounts/", s.routeAccounts)
}

// routeAccounts dispatches /api/accounts/{id}/* to the appropriate handler.
func (s *Server) routeAccounts(w http.ResponseWriter, r *http.Request) {
	accountID := PathParam(r, "/api/accounts/", "")
	if accountID == "" {
		WriteError(w, http.StatusBadRequest, "account id is required in path")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/accounts/"+accountID)
	rest = strings.TrimPrefix(rest, "/")

	switch rest {
	case "pnl":
		s.handleAccountPnl(w, r, accountID)
	case "pnl/chart":
		s.handleAccountPnlChart(w, r, accountID)
	case "pnl/symbols":
		s.handleAccountPnlSymbols(w, r, accountID)
	case "deposits":
		s.handleAccountDeposits(w, r, accountID)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}
