package analytics

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// FilterSpec describes the scope of every aggregate: an optional inclusive
// date range plus optional store and channel restrictions. Empty ID sets mean
// "no restriction". Values are immutable once constructed.
type FilterSpec struct {
	from     time.Time
	to       time.Time
	stores   []int64
	channels []int64
}

// FilterOption customises a FilterSpec during construction.
type FilterOption func(*FilterSpec)

// WithStores restricts the filter to the given store identifiers.
func WithStores(ids ...int64) FilterOption {
	return func(f *FilterSpec) {
		f.stores = append(f.stores, ids...)
	}
}

// WithChannels restricts the filter to the given channel identifiers.
func WithChannels(ids ...int64) FilterOption {
	return func(f *FilterSpec) {
		f.channels = append(f.channels, ids...)
	}
}

// NewFilterSpec validates and normalises a filter. Zero times leave the
// corresponding bound open. Bounds are truncated to calendar days in UTC.
func NewFilterSpec(from, to time.Time, opts ...FilterOption) (FilterSpec, error) {
	spec := FilterSpec{from: truncateDay(from), to: truncateDay(to)}
	for _, opt := range opts {
		if opt != nil {
			opt(&spec)
		}
	}
	if !spec.from.IsZero() && !spec.to.IsZero() && spec.from.After(spec.to) {
		return FilterSpec{}, fmt.Errorf("%w: date_from %s is after date_to %s", ErrInvalidFilter, spec.from.Format(dateLayout), spec.to.Format(dateLayout))
	}
	var err error
	if spec.stores, err = canonicalIDs("store_id", spec.stores); err != nil {
		return FilterSpec{}, err
	}
	if spec.channels, err = canonicalIDs("channel_id", spec.channels); err != nil {
		return FilterSpec{}, err
	}
	return spec, nil
}

// MustFilterSpec is NewFilterSpec for statically known inputs.
func MustFilterSpec(from, to time.Time, opts ...FilterOption) FilterSpec {
	spec, err := NewFilterSpec(from, to, opts...)
	if err != nil {
		panic(err)
	}
	return spec
}

// DateFrom returns the inclusive lower bound and whether it is set.
func (f FilterSpec) DateFrom() (time.Time, bool) { return f.from, !f.from.IsZero() }

// DateTo returns the inclusive upper bound and whether it is set.
func (f FilterSpec) DateTo() (time.Time, bool) { return f.to, !f.to.IsZero() }

// StoreIDs returns a copy of the store restriction in ascending order.
func (f FilterSpec) StoreIDs() []int64 { return slices.Clone(f.stores) }

// ChannelIDs returns a copy of the channel restriction in ascending order.
func (f FilterSpec) ChannelIDs() []int64 { return slices.Clone(f.channels) }

// Bounded reports whether both date bounds are present.
func (f FilterSpec) Bounded() bool { return !f.from.IsZero() && !f.to.IsZero() }

// Days returns the inclusive length of the range in days, or 0 when unbounded.
func (f FilterSpec) Days() int {
	if !f.Bounded() {
		return 0
	}
	return int(f.to.Sub(f.from).Hours()/24) + 1
}

// WithRange returns a copy of the filter with new date bounds and the same
// store and channel restrictions.
func (f FilterSpec) WithRange(from, to time.Time) (FilterSpec, error) {
	return NewFilterSpec(from, to, WithStores(f.stores...), WithChannels(f.channels...))
}

// WithStore narrows the filter to a single store.
func (f FilterSpec) WithStore(storeID int64) FilterSpec {
	out := f
	out.stores = []int64{storeID}
	out.channels = slices.Clone(f.channels)
	return out
}

// PreviousPeriod returns the equally long range immediately preceding this
// one. A range of n+1 days starting at D yields D-(n+1) through D-1. The
// second result is false when the filter is not bounded on both sides.
func (f FilterSpec) PreviousPeriod() (FilterSpec, bool) {
	if !f.Bounded() {
		return FilterSpec{}, false
	}
	days := int(f.to.Sub(f.from).Hours() / 24)
	prev := FilterSpec{
		from:     f.from.AddDate(0, 0, -(days + 1)),
		to:       f.from.AddDate(0, 0, -1),
		stores:   slices.Clone(f.stores),
		channels: slices.Clone(f.channels),
	}
	return prev, true
}

// CacheToken renders the filter canonically: equal filters always produce
// equal tokens regardless of how their ID sets were supplied.
func (f FilterSpec) CacheToken() string {
	return strings.Join([]string{
		"from=" + dateToken(f.from),
		"to=" + dateToken(f.to),
		"stores=" + idsToken(f.stores),
		"channels=" + idsToken(f.channels),
	}, "|")
}

// Equal reports whether two filters describe the same scope.
func (f FilterSpec) Equal(other FilterSpec) bool {
	return f.from.Equal(other.from) && f.to.Equal(other.to) &&
		slices.Equal(f.stores, other.stores) && slices.Equal(f.channels, other.channels)
}

func (f FilterSpec) String() string { return f.CacheToken() }

func canonicalIDs(field string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := slices.Clone(ids)
	for _, id := range out {
		if id <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidFilter, field, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func idsToken(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
