// Package ledgertest provides an in-memory BloodUnitRepository for tests.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"blood-bank-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MemoryRepository struct {
	mu    sync.Mutex
	units []models.BloodUnit

	// BeforeClaim runs outside the lock before every claim, letting tests
	// interleave concurrent removals.
	BeforeClaim func()
	// AfterAggregate runs outside the lock once the grouped stock has been
	// read and before it is returned.
	AfterAggregate func()
	// FailClaimsAfter makes every claim after the first N successful ones
	// return ClaimErr. Zero disables it.
	FailClaimsAfter int
	ClaimErr        error
	InsertErr       error

	claims int
}

func NewMemoryRepository(units ...models.BloodUnit) *MemoryRepository {
	r := &MemoryRepository{}
	for _, u := range units {
		if u.ID.IsZero() {
			u.ID = primitive.NewObjectID()
		}
		r.units = append(r.units, u)
	}
	return r
}

func (r *MemoryRepository) Insert(_ context.Context, unit *models.BloodUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.InsertErr != nil {
		return r.InsertErr
	}
	unit.ID = primitive.NewObjectID()
	r.units = append(r.units, *unit)
	return nil
}

func (r *MemoryRepository) ClaimOldestAvailable(ctx context.Context, hospitalID, bloodType, newStatus, reason string, at time.Time) (*models.BloodUnit, error) {
	if r.BeforeClaim != nil {
		r.BeforeClaim()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailClaimsAfter > 0 && r.claims >= r.FailClaimsAfter {
		return nil, r.ClaimErr
	}

	idx := -1
	for i, u := range r.units {
		if u.HospitalID != hospitalID || u.BloodType != bloodType || u.Status != models.UnitStatusAvailable {
			continue
		}
		if idx == -1 || u.ExpiryDate.Before(r.units[idx].ExpiryDate) {
			idx = i
		}
	}
	if idx == -1 {
		return nil, nil
	}

	r.units[idx].Status = newStatus
	r.units[idx].StatusReason = reason
	changed := at
	r.units[idx].StatusChangedAt = &changed
	r.claims++

	claimed := r.units[idx]
	return &claimed, nil
}

func (r *MemoryRepository) AggregateAvailableByType(_ context.Context, hospitalID string, expiringBefore time.Time) ([]models.StockLevel, error) {
	r.mu.Lock()

	groups := map[string]*models.StockLevel{}
	for _, u := range r.units {
		if u.HospitalID != hospitalID || u.Status != models.UnitStatusAvailable {
			continue
		}
		g, ok := groups[u.BloodType]
		if !ok {
			g = &models.StockLevel{BloodType: u.BloodType}
			groups[u.BloodType] = g
		}
		g.TotalQuantityMl += u.QuantityMl
		g.UnitCount++
		if !u.ExpiryDate.After(expiringBefore) {
			g.ExpiringSoon++
		} else if g.NextExpiringAt == nil || u.ExpiryDate.Before(*g.NextExpiringAt) {
			next := u.ExpiryDate
			g.NextExpiringAt = &next
		}
	}

	out := make([]models.StockLevel, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	r.mu.Unlock()

	if r.AfterAggregate != nil {
		r.AfterAggregate()
	}
	return out, nil
}

func (r *MemoryRepository) ListAvailableExpiringBefore(_ context.Context, hospitalID string, before time.Time) ([]models.BloodUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.BloodUnit
	for _, u := range r.units {
		if u.HospitalID == hospitalID && u.Status == models.UnitStatusAvailable && !u.ExpiryDate.After(before) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(out[j].ExpiryDate) })
	return out, nil
}

func (r *MemoryRepository) FindByBatch(_ context.Context, hospitalID, batchID string) ([]models.BloodUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.BloodUnit
	for _, u := range r.units {
		if u.HospitalID == hospitalID && u.BatchID == batchID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionDate.Before(out[j].CollectionDate) })
	return out, nil
}

// Units returns a snapshot of every stored unit.
func (r *MemoryRepository) Units() []models.BloodUnit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.BloodUnit(nil), r.units...)
}

// Unit returns the stored unit with the given id.
func (r *MemoryRepository) Unit(id primitive.ObjectID) (models.BloodUnit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.units {
		if u.ID == id {
			return u, true
		}
	}
	return models.BloodUnit{}, false
}
