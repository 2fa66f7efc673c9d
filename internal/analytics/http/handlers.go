package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/restaurant-analytics/internal/analytics"
	"github.com/odyssey-erp/restaurant-analytics/internal/analytics/export"
	"github.com/odyssey-erp/restaurant-analytics/internal/platform/httpx"
)

const (
	defaultWindowDays     = 30
	defaultRequestTimeout = 15 * time.Second
	dateLayout            = "2006-01-02"
)

// DashboardService is the dashboard contract used by the handler.
type DashboardService interface {
	Load(ctx context.Context, spec analytics.FilterSpec) (analytics.DashboardSnapshot, error)
	Refresh(ctx context.Context, spec analytics.FilterSpec) (analytics.DashboardSnapshot, error)
	LoadRestaurantInsights(ctx context.Context, spec analytics.FilterSpec) (analytics.RestaurantInsights, error)
	TimeSeries(ctx context.Context, spec analytics.FilterSpec, bucket analytics.Bucket) ([]analytics.TimeSeriesPoint, error)
}

// Handler serves the analytics JSON API.
type Handler struct {
	logger    *slog.Logger
	service   DashboardService
	validator *validator.Validate
	csvPool   sync.Pool
	timeout   time.Duration
	now       func() time.Time
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service DashboardService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("query")
	})
	h := &Handler{
		logger:    logger,
		service:   service,
		validator: v,
		timeout:   defaultRequestTimeout,
		now:       time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// WithRequestTimeout bounds every request. Zero keeps the default.
func (h *Handler) WithRequestTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

type filterQuery struct {
	DateFrom   string  `query:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo     string  `query:"date_to" validate:"omitempty,datetime=2006-01-02"`
	StoreIDs   []int64 `query:"store_id" validate:"omitempty,dive,gt=0"`
	ChannelIDs []int64 `query:"channel_id" validate:"omitempty,dive,gt=0"`
	Bucket     string  `query:"bucket" validate:"omitempty,oneof=hour day week month"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	spec, _, err := h.parseFilters(r)
	if err != nil {
		h.respondError(w, "parse filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.service.Load(ctx, spec)
	if err != nil {
		h.respondError(w, "load dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	spec, _, err := h.parseFilters(r)
	if err != nil {
		h.respondError(w, "parse filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.service.Refresh(ctx, spec)
	if err != nil {
		if snap.ID == "" {
			h.respondError(w, "refresh dashboard", err)
			return
		}
		h.logger.Warn("refresh failed, serving last snapshot",
			slog.String("snapshot_id", snap.ID), slog.Any("error", err))
		w.Header().Set("Warning", `110 - "Response is Stale"`)
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleRestaurant(w http.ResponseWriter, r *http.Request) {
	spec, _, err := h.parseFilters(r)
	if err != nil {
		h.respondError(w, "parse filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.service.LoadRestaurantInsights(ctx, spec)
	if err != nil {
		h.respondError(w, "load restaurant insights", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	spec, bucket, err := h.parseFilters(r)
	if err != nil {
		h.respondError(w, "parse filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	points, err := h.service.TimeSeries(ctx, spec, bucket)
	if err != nil {
		h.respondError(w, "load time series", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"filter": spec.CacheToken(),
		"bucket": bucket,
		"points": points,
	})
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	spec, _, err := h.parseFilters(r)
	if err != nil {
		h.respondError(w, "parse filters", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.service.Load(ctx, spec)
	if err != nil {
		h.respondError(w, "load dashboard", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteDashboardCSV(buf, snap); err != nil {
		h.respondError(w, "write dashboard csv", err)
		return
	}

	from, _ := spec.DateFrom()
	to, _ := spec.DateTo()
	filename := fmt.Sprintf("restaurant-analytics-%s-%s.csv", from.Format(dateLayout), to.Format(dateLayout))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

// parseFilters reads the shared query parameters. Missing dates default to
// the trailing window ending today.
func (h *Handler) parseFilters(r *http.Request) (analytics.FilterSpec, analytics.Bucket, error) {
	values := r.URL.Query()
	q := filterQuery{
		DateFrom: strings.TrimSpace(values.Get("date_from")),
		DateTo:   strings.TrimSpace(values.Get("date_to")),
		Bucket:   strings.ToLower(strings.TrimSpace(values.Get("bucket"))),
	}
	var err error
	if q.StoreIDs, err = parseIDs(values, "store_id"); err != nil {
		return analytics.FilterSpec{}, "", err
	}
	if q.ChannelIDs, err = parseIDs(values, "channel_id"); err != nil {
		return analytics.FilterSpec{}, "", err
	}
	if err := h.validator.Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return analytics.FilterSpec{}, "", fmt.Errorf("%w: invalid %s", httpx.ErrValidation, fieldErrs[0].Field())
		}
		return analytics.FilterSpec{}, "", fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}

	today := h.now().UTC()
	to := today
	if q.DateTo != "" {
		to, _ = time.Parse(dateLayout, q.DateTo)
	}
	from := to.AddDate(0, 0, -(defaultWindowDays - 1))
	if q.DateFrom != "" {
		from, _ = time.Parse(dateLayout, q.DateFrom)
	}

	spec, err := analytics.NewFilterSpec(from, to,
		analytics.WithStores(q.StoreIDs...),
		analytics.WithChannels(q.ChannelIDs...),
	)
	if err != nil {
		return analytics.FilterSpec{}, "", err
	}
	bucket := analytics.BucketDay
	if q.Bucket != "" {
		bucket = analytics.Bucket(q.Bucket)
	}
	return spec, bucket, nil
}

// parseIDs accepts repeated parameters as well as comma separated lists.
func parseIDs(values url.Values, key string) ([]int64, error) {
	var ids []int64
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, key)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// respondError translates analytics failures into problem documents.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	case errors.Is(err, analytics.ErrInvalidFilter):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, analytics.ErrStorageUnavailable):
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
	case errors.Is(err, analytics.ErrQueryTimeout), errors.Is(err, context.DeadlineExceeded):
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrTimeout)
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
