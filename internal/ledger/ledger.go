// Package ledger holds the blood stock rules: intake, FIFO-by-expiry
// consumption and the derived stock views. Storage is reached only through
// BloodUnitRepository.
package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"blood-bank-api-server/internal/logger"
	"blood-bank-api-server/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	ExpiryPeriod        = 35 * 24 * time.Hour
	ExpiringSoonWindow  = 7 * 24 * time.Hour
	CriticalLevelMl     = 500.0
	StandardUnitMl      = 350.0
	DefaultExpiringDays = 7
	MaxExpiringDays     = 365

	OperationAdd    = "add"
	OperationRemove = "remove"

	ReasonDonation = "donation"
	ReasonRequest  = "request"
	ReasonExpired  = "expired"
	ReasonDisposed = "disposed"

	// maxConcurrentClaims bounds the in-flight claims of a single removal.
	maxConcurrentClaims = 8
	maxUnitsPerRemoval  = math.MaxInt32
)

// removalStatus maps a removal reason to the terminal status it produces.
var removalStatus = map[string]string{
	ReasonRequest:  models.UnitStatusAllocated,
	ReasonExpired:  models.UnitStatusExpired,
	ReasonDisposed: models.UnitStatusDisposed,
}

// BloodUnitRepository is the storage port used by the ledger.
type BloodUnitRepository interface {
	Insert(ctx context.Context, unit *models.BloodUnit) error
	// ClaimOldestAvailable atomically moves the soonest-expiring available
	// unit of the given type to newStatus and returns it. It returns
	// (nil, nil) when no available unit is left.
	ClaimOldestAvailable(ctx context.Context, hospitalID, bloodType, newStatus, reason string, at time.Time) (*models.BloodUnit, error)
	// AggregateAvailableByType returns one group per blood type present in
	// the available pool. ExpiringSoon counts units expiring at or before
	// expiringBefore.
	AggregateAvailableByType(ctx context.Context, hospitalID string, expiringBefore time.Time) ([]models.StockLevel, error)
	ListAvailableExpiringBefore(ctx context.Context, hospitalID string, before time.Time) ([]models.BloodUnit, error)
	FindByBatch(ctx context.Context, hospitalID, batchID string) ([]models.BloodUnit, error)
}

// SummaryCache caches the grouped available-stock aggregation per hospital.
//
// Every hospital has a write generation. Get returns it with the cached
// summary (nil on a miss), Invalidate bumps it, and Set stores only while
// it still equals the generation the caller read. An aggregation that
// raced a write is therefore never cached.
type SummaryCache interface {
	Get(ctx context.Context, hospitalID string) (*CachedSummary, int64, error)
	Set(ctx context.Context, hospitalID string, generation int64, summary CachedSummary) (bool, error)
	Invalidate(ctx context.Context, hospitalID string) error
}

// CachedSummary is the cached form of the grouped stock.
type CachedSummary struct {
	Levels []models.StockLevel `json:"levels"`
	// ValidUntil is when the next uncounted unit enters the expiring-soon
	// window. Zero when there is no such unit.
	ValidUntil time.Time `json:"valid_until"`
}

// Fresh reports whether the expiring-soon counts still hold at now.
func (s *CachedSummary) Fresh(now time.Time) bool {
	return s.ValidUntil.IsZero() || now.Before(s.ValidUntil)
}

type Ledger struct {
	repo       BloodUnitRepository
	cache      SummaryCache
	log        *logger.Logger
	now        func() time.Time
	newBatchID func() string
}

type Option func(*Ledger)

func WithCache(c SummaryCache) Option {
	return func(l *Ledger) { l.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func New(repo BloodUnitRepository, opts ...Option) *Ledger {
	l := &Ledger{
		repo: repo,
		log:  logger.Nop(),
		now:  time.Now,
		newBatchID: func() string {
			return fmt.Sprintf("BATCH-%s", strings.ToUpper(uuid.New().String()[:8]))
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Inventory is the per-type stock summary of one hospital.
type Inventory struct {
	Levels      []models.StockLevel `json:"inventory"`
	LastUpdated time.Time           `json:"last_updated"`
}

// UpdateRequest is the input of UpdateStock.
type UpdateRequest struct {
	HospitalID     string
	BloodType      string
	QuantityChange float64
	Operation      string
	Reason         string
	BatchID        string
	DonorID        string
}

// UpdateResult describes what UpdateStock changed. Unit is set for add,
// UnitsUpdated for remove.
type UpdateResult struct {
	Operation    string
	Reason       string
	Unit         *models.BloodUnit
	UnitsUpdated int
}

// ExpiringReport lists available units expiring within Days.
type ExpiringReport struct {
	Units           []models.BloodUnit `json:"units"`
	Count           int                `json:"count"`
	TotalQuantityMl float64            `json:"total_quantity_ml"`
	Days            int                `json:"days"`
}

// UnitsToRemove returns how many unit rows a removal of quantityMl touches,
// assuming StandardUnitMl per unit. The count is capped at
// maxUnitsPerRemoval since a removal stops at the end of the pool anyway.
func UnitsToRemove(quantityMl float64) int {
	n := math.Ceil(quantityMl / StandardUnitMl)
	if n > maxUnitsPerRemoval {
		return maxUnitsPerRemoval
	}
	return int(n)
}

// GetInventory returns exactly one entry per canonical blood type, sorted by
// label. Types with no available units get a zero entry.
func (l *Ledger) GetInventory(ctx context.Context, hospitalID string) (*Inventory, error) {
	now := l.now()

	groups, err := l.groupedStock(ctx, hospitalID, now)
	if err != nil {
		return nil, err
	}

	byType := make(map[string]models.StockLevel, len(groups))
	for _, g := range groups {
		byType[g.BloodType] = g
	}

	levels := make([]models.StockLevel, 0, len(models.BloodTypes))
	for _, bt := range models.BloodTypes {
		level, ok := byType[bt]
		if !ok {
			level = models.StockLevel{BloodType: bt}
		}
		level.IsCritical = level.TotalQuantityMl < CriticalLevelMl
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].BloodType < levels[j].BloodType })

	return &Inventory{Levels: levels, LastUpdated: now}, nil
}

func (l *Ledger) groupedStock(ctx context.Context, hospitalID string, now time.Time) ([]models.StockLevel, error) {
	var generation int64
	cacheable := l.cache != nil
	if cacheable {
		cached, gen, err := l.cache.Get(ctx, hospitalID)
		switch {
		case err != nil:
			l.log.Warn("summary cache read failed", "hospital_id", hospitalID, "error", err)
			cacheable = false
		case cached != nil && cached.Fresh(now):
			return cached.Levels, nil
		}
		generation = gen
	}

	levels, err := l.repo.AggregateAvailableByType(ctx, hospitalID, now.Add(ExpiringSoonWindow))
	if err != nil {
		return nil, fmt.Errorf("aggregating available stock: %w", err)
	}

	if cacheable {
		summary := CachedSummary{Levels: levels, ValidUntil: countsValidUntil(levels)}
		if _, err := l.cache.Set(ctx, hospitalID, generation, summary); err != nil {
			l.log.Warn("summary cache write failed", "hospital_id", hospitalID, "error", err)
		}
	}
	return levels, nil
}

// countsValidUntil is the earliest moment an uncounted unit becomes
// expiring soon.
func countsValidUntil(levels []models.StockLevel) time.Time {
	var until time.Time
	for _, level := range levels {
		if level.NextExpiringAt == nil {
			continue
		}
		t := level.NextExpiringAt.Add(-ExpiringSoonWindow)
		if until.IsZero() || t.Before(until) {
			until = t
		}
	}
	return until
}

// UpdateStock applies an add or remove to the hospital's stock.
func (l *Ledger) UpdateStock(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	switch req.Operation {
	case OperationAdd:
		return l.add(ctx, req)
	default:
		return l.remove(ctx, req)
	}
}

func validate(req UpdateRequest) error {
	if !models.IsBloodType(req.BloodType) {
		return fmt.Errorf("%w: %q", ErrInvalidBloodType, req.BloodType)
	}
	if math.IsNaN(req.QuantityChange) || math.IsInf(req.QuantityChange, 0) || req.QuantityChange <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, req.QuantityChange)
	}
	switch req.Operation {
	case OperationAdd:
		switch req.Reason {
		case "", ReasonDonation, ReasonRequest, ReasonExpired, ReasonDisposed:
			return nil
		}
		return fmt.Errorf("%w: %q", ErrInvalidReason, req.Reason)
	case OperationRemove:
		if req.Reason == "" {
			return fmt.Errorf("%w: reason is required for remove", ErrInvalidReason)
		}
		if _, ok := removalStatus[req.Reason]; !ok {
			return fmt.Errorf("%w: %q cannot remove stock", ErrInvalidReason, req.Reason)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOperation, req.Operation)
	}
}

func (l *Ledger) add(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	now := l.now()
	batchID := strings.TrimSpace(req.BatchID)
	if batchID == "" {
		batchID = l.newBatchID()
	}

	unit := &models.BloodUnit{
		HospitalID:     req.HospitalID,
		BloodType:      req.BloodType,
		BatchID:        batchID,
		QuantityMl:     req.QuantityChange,
		CollectionDate: now,
		ExpiryDate:     now.Add(ExpiryPeriod),
		Status:         models.UnitStatusAvailable,
		DonorID:        req.DonorID,
		CreatedAt:      now,
	}
	if err := l.repo.Insert(ctx, unit); err != nil {
		return nil, fmt.Errorf("inserting blood unit: %w", err)
	}
	l.invalidate(ctx, req.HospitalID)

	l.log.Info("blood stock added",
		"hospital_id", req.HospitalID,
		"blood_type", req.BloodType,
		"batch_id", batchID,
		"quantity_ml", req.QuantityChange,
	)
	return &UpdateResult{Operation: OperationAdd, Reason: req.Reason, Unit: unit}, nil
}

// remove claims up to UnitsToRemove(quantity) units, oldest expiry first.
// Claims run concurrently and each one is a single conditional update, so
// two removals never take the same unit. Claims that already succeeded are
// kept when a later one fails.
func (l *Ledger) remove(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	wanted := UnitsToRemove(req.QuantityChange)
	newStatus := removalStatus[req.Reason]
	at := l.now()

	var claimed atomic.Int64
	var exhausted atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentClaims)
	for i := 0; i < wanted && !exhausted.Load() && gctx.Err() == nil; i++ {
		g.Go(func() error {
			if exhausted.Load() {
				return nil
			}
			unit, err := l.repo.ClaimOldestAvailable(gctx, req.HospitalID, req.BloodType, newStatus, req.Reason, at)
			if err != nil {
				return err
			}
			if unit == nil {
				exhausted.Store(true)
				return nil
			}
			claimed.Add(1)
			return nil
		})
	}
	err := g.Wait()

	updated := int(claimed.Load())
	if updated > 0 {
		l.invalidate(ctx, req.HospitalID)
	}
	if err != nil {
		l.log.Error("blood stock removal failed",
			"hospital_id", req.HospitalID,
			"blood_type", req.BloodType,
			"units_applied", updated,
			"error", err,
		)
		return &UpdateResult{Operation: OperationRemove, Reason: req.Reason, UnitsUpdated: updated},
			fmt.Errorf("claiming blood units: %w", err)
	}
	if updated == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoUnitsAvailable, req.BloodType)
	}

	l.log.Info("blood stock removed",
		"hospital_id", req.HospitalID,
		"blood_type", req.BloodType,
		"reason", req.Reason,
		"units_requested", wanted,
		"units_updated", updated,
	)
	return &UpdateResult{Operation: OperationRemove, Reason: req.Reason, UnitsUpdated: updated}, nil
}

func (l *Ledger) invalidate(ctx context.Context, hospitalID string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, hospitalID); err != nil {
		l.log.Warn("summary cache invalidation failed", "hospital_id", hospitalID, "error", err)
	}
}

// ListExpiring returns available units expiring within days, soonest first.
func (l *Ledger) ListExpiring(ctx context.Context, hospitalID string, days int) (*ExpiringReport, error) {
	if days < 0 || days > MaxExpiringDays {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDays, days)
	}

	before := l.now().Add(time.Duration(days) * 24 * time.Hour)
	units, err := l.repo.ListAvailableExpiringBefore(ctx, hospitalID, before)
	if err != nil {
		return nil, fmt.Errorf("listing expiring units: %w", err)
	}
	sort.SliceStable(units, func(i, j int) bool { return units[i].ExpiryDate.Before(units[j].ExpiryDate) })

	report := &ExpiringReport{Units: units, Count: len(units), Days: days}
	if report.Units == nil {
		report.Units = []models.BloodUnit{}
	}
	for _, u := range units {
		report.TotalQuantityMl += u.QuantityMl
	}
	return report, nil
}

// Batch returns every unit of a collection batch regardless of status.
func (l *Ledger) Batch(ctx context.Context, hospitalID, batchID string) ([]models.BloodUnit, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, ErrInvalidBatch
	}
	units, err := l.repo.FindByBatch(ctx, hospitalID, batchID)
	if err != nil {
		return nil, fmt.Errorf("finding batch units: %w", err)
	}
	if units == nil {
		units = []models.BloodUnit{}
	}
	return units, nil
}
