package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptavail/libs/httpx"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

const (
	maxRangeDays = 62
	// SessionHeader lets a client tie its queries together; a newer query with the
	// same value cancels the older one.
	SessionHeader = "X-Client-Session"
	partialNotice = "some calendars could not be checked"
)

type SlotFinder interface {
	Slots(ctx context.Context, ownerID string, from, to model.Date) (availability.Result, error)
}

type SlotsHandler struct {
	finder   SlotFinder
	sessions *availability.Sessions
	logger   *slog.Logger
}

func NewSlotsHandler(finder SlotFinder, sessions *availability.Sessions, logger *slog.Logger) *SlotsHandler {
	return &SlotsHandler{finder: finder, sessions: sessions, logger: logger}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	model.BookingInfo
}

type warningItem struct {
	CalendarID string `json:"calendar_id"`
	Error      string `json:"error"`
}

type slotsResponse struct {
	Slots    []slotItem    `json:"slots"`
	Warnings []warningItem `json:"warnings,omitempty"`
	Notice   string        `json:"notice,omitempty"`
}

func (h *SlotsHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	ownerID := strings.TrimSpace(q.Get("owner_id"))
	fromStr := strings.TrimSpace(q.Get("from"))
	toStr := strings.TrimSpace(q.Get("to"))
	if ownerID == "" || fromStr == "" || toStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "owner_id, from, and to are required")
		return
	}
	from, err := model.ParseDate(fromStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := model.ParseDate(toStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	if !from.Before(to) {
		httpx.WriteError(w, http.StatusBadRequest, "from must be before to")
		return
	}
	if !to.Before(from.AddDays(maxRangeDays + 1)) {
		httpx.WriteError(w, http.StatusBadRequest, "range must not exceed 62 days")
		return
	}

	compute := func(ctx context.Context) (availability.Result, error) {
		return h.finder.Slots(ctx, ownerID, from, to)
	}
	var res availability.Result
	if key := strings.TrimSpace(r.Header.Get(SessionHeader)); key != "" && h.sessions != nil {
		res, err = h.sessions.Get(ownerID+"/"+key).Run(r.Context(), compute)
	} else {
		res, err = compute(r.Context())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := slotsResponse{Slots: make([]slotItem, 0, len(res.Slots))}
	for _, s := range res.Slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime:   s.Start.UTC().Format(time.RFC3339),
			EndTime:     s.End.UTC().Format(time.RFC3339),
			BookingInfo: s.Booking,
		})
	}
	if len(res.Warnings) > 0 {
		ids := make([]string, 0, len(res.Warnings))
		for id := range res.Warnings {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			resp.Warnings = append(resp.Warnings, warningItem{CalendarID: id, Error: res.Warnings[id].Error()})
		}
		resp.Notice = partialNotice
	}

	body, err := json.Marshal(resp)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to build response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *SlotsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, availability.ErrInvalidRange):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, availability.ErrNoActiveSchedule):
		httpx.WriteError(w, http.StatusNotFound, "no active schedule")
	case errors.Is(err, model.ErrInvalidSchedule):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, availability.ErrSuperseded):
		httpx.WriteError(w, http.StatusConflict, "superseded by a newer query")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away.
	default:
		h.logger.Error("slot computation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to compute slots")
	}
}
