package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mfehr/questfolio/internal/common"
	"github.com/mfehr/questfolio/internal/interfaces"
	"github.com/mfehr/questfolio/internal/models"
	"github.com/mfehr/questfolio/internal/services/pnl"
)

// defaultCrawlYears is how far back activity history is fetched when the
// request does not say.
const defaultCrawlYears = 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.Version,
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version": common.GetFullVersion(),
	})
}

// buildActivityContext fetches the raw activity history and balance snapshot
// for one account.
func (s *Server) buildActivityContext(ctx context.Context, accountID string, from time.Time) (*models.ActivityContext, *models.BalanceSnapshot, error) {
	now := time.Now().UTC()
	if from.IsZero() {
		from = now.AddDate(-defaultCrawlYears, 0, 0)
	}

	activities, err := s.app.QuestradeClient.GetActivities(ctx, accountID, from, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch activities: %w", err)
	}

	snapshot, err := s.app.QuestradeClient.GetBalances(ctx, accountID)
	if err != nil {
		// The series is still computable from the ledger alone; the summary
		// just loses its broker anchor.
		s.logger.Warn().Err(err).Str("account", accountID).Msg("Balance snapshot unavailable")
		snapshot = nil
	}

	lastDate := ""
	if len(activities) > 0 {
		lastDate = activities[len(activities)-1].TransactionDate
	}

	return &models.ActivityContext{
		AccountID:   accountID,
		CrawlStart:  from,
		Activities:  activities,
		Now:         now,
		Fingerprint: fmt.Sprintf("%s:%d:%s", accountID, len(activities), lastDate),
	}, snapshot, nil
}

// seriesOptionsFromQuery parses the shared query parameters for series
// endpoints: startDate (YYYY-MM-DD) and manualAdjustment.
func seriesOptionsFromQuery(r *http.Request) interfaces.SeriesOptions {
	opts := interfaces.SeriesOptions{}

	if raw := r.URL.Query().Get("startDate"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			opts.ApplyAccountCagrStartDate = true
			opts.DisplayStartKey = t.UTC()
		}
	}

	if raw := r.URL.Query().Get("manualAdjustment"); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			opts.ManualAdjustment = f
		}
	}

	return opts
}

func crawlStartFromQuery(r *http.Request) time.Time {
	if raw := r.URL.Query().Get("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// handleAccountPnl handles GET /api/accounts/{id}/pnl.
// Query params: from, startDate, manualAdjustment, interval (daily|weekly|monthly).
func (s *Server) handleAccountPnl(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	actx, snapshot, err := s.buildActivityContext(r.Context(), accountID, crawlStartFromQuery(r))
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Activity fetch error: %v", err))
		return
	}

	result, err := s.app.PnlService.ComputeTotalPnlSeries(r.Context(), actx, snapshot, seriesOptionsFromQuery(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("P&L computation error: %v", err))
		return
	}

	switch r.URL.Query().Get("interval") {
	case "weekly":
		result.Points = pnl.DownsampleToWeekly(result.Points)
	case "monthly":
		result.Points = pnl.DownsampleToMonthly(result.Points)
	}

	WriteJSON(w, http.StatusOK, result)
}

// handleAccountPnlChart handles GET /api/accounts/{id}/pnl/chart, returning a
// PNG of equity vs net deposits.
func (s *Server) handleAccountPnlChart(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	actx, snapshot, err := s.buildActivityContext(r.Context(), accountID, crawlStartFromQuery(r))
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Activity fetch error: %v", err))
		return
	}

	result, err := s.app.PnlService.ComputeTotalPnlSeries(r.Context(), actx, snapshot, seriesOptionsFromQuery(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("P&L computation error: %v", err))
		return
	}

	png, err := pnl.RenderSeriesChart(result.Points)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Chart render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleAccountPnlSymbols handles GET /api/accounts/{id}/pnl/symbols.
func (s *Server) handleAccountPnlSymbols(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	actx, _, err := s.buildActivityContext(r.Context(), accountID, crawlStartFromQuery(r))
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Activity fetch error: %v", err))
		return
	}

	breakdown, err := s.app.PnlService.ComputeTotalPnlBySymbol(r.Context(), actx, seriesOptionsFromQuery(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Symbol breakdown error: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, breakdown)
}

// handleAccountDeposits handles GET /api/accounts/{id}/deposits.
func (s *Server) handleAccountDeposits(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	actx, snapshot, err := s.buildActivityContext(r.Context(), accountID, crawlStartFromQuery(r))
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Activity fetch error: %v", err))
		return
	}

	summary, err := s.app.PnlService.ComputeNetDeposits(r.Context(), actx, snapshot, seriesOptionsFromQuery(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Net deposits error: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}

// handleGroupPnl handles GET /api/accounts/group/pnl?ids=a,b,c.
func (s *Server) handleGroupPnl(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	rawIDs := r.URL.Query().Get("ids")
	if rawIDs == "" {
		WriteError(w, http.StatusBadRequest, "ids query parameter is required")
		return
	}

	var actxs []*models.ActivityContext
	snapshots := make(map[string]*models.BalanceSnapshot)
	from := crawlStartFromQuery(r)

	for _, id := range strings.Split(rawIDs, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		actx, snapshot, err := s.buildActivityContext(r.Context(), id, from)
		if err != nil {
			WriteError(w, http.StatusBadGateway, fmt.Sprintf("Activity fetch error for %s: %v", id, err))
			return
		}
		actxs = append(actxs, actx)
		if snapshot != nil {
			snapshots[id] = snapshot
		}
	}

	result, err := s.app.PnlService.ComputeGroupSeries(r.Context(), actxs, snapshots, seriesOptionsFromQuery(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Group series error: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
