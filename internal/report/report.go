// Package report aggregates production value for the admin dashboard:
// time-range and search filtering, global and per-user totals, payout math.
package report

import (
	"strings"
	"time"

	"github.com/dsporty/prodtrack/internal/domain"
)

type TimeRange string

const (
	RangeToday TimeRange = "today"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
)

// CutoffStart returns the inclusive lower bound for a range, relative to now.
func CutoffStart(r TimeRange, now time.Time) time.Time {
	switch r {
	case RangeWeek:
		return now.AddDate(0, 0, -7)
	case RangeMonth:
		return now.AddDate(0, -1, 0)
	case RangeYear:
		return now.AddDate(-1, 0, 0)
	default: // today
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
}

// Filter keeps records inside the time range whose exporter or batch
// reference contains the search term (case-insensitive). An empty term
// matches everything.
func Filter(records []domain.ProductionRecord, r TimeRange, search string, now time.Time) []domain.ProductionRecord {
	cutoff := CutoffStart(r, now)
	term := strings.ToUpper(strings.TrimSpace(search))

	var out []domain.ProductionRecord
	for _, rec := range records {
		if rec.CreatedAt.Before(cutoff) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToUpper(rec.Exporter), term) &&
			!strings.Contains(strings.ToUpper(rec.MaterialID), term) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// UserStats totals one submitter's production. ToPay counts only verified
// records.
type UserStats struct {
	Total float64 `json:"total"`
	Items int     `json:"items"`
	ToPay float64 `json:"toPay"`
}

type ProductStats struct {
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

type GlobalStats struct {
	Total         float64                 `json:"total"`
	Count         int                     `json:"count"`
	VerifiedTotal float64                 `json:"verifiedTotal"`
	ByUser        map[string]UserStats    `json:"byUser"`
	ByProduct     map[string]ProductStats `json:"byProduct"`
}

// Aggregate folds records into global, per-user and per-product totals using
// the fixed product catalog values.
func Aggregate(records []domain.ProductionRecord) GlobalStats {
	stats := GlobalStats{
		ByUser:    make(map[string]UserStats),
		ByProduct: make(map[string]ProductStats),
	}
	for _, rec := range records {
		value := domain.Value(rec.Product, rec.Quantity)
		stats.Total += value
		stats.Count += rec.Quantity
		if rec.Verified {
			stats.VerifiedTotal += value
		}

		userKey := strings.ToUpper(strings.TrimSpace(rec.Exporter))
		if userKey == "" {
			userKey = "SEM NOME"
		}
		user := stats.ByUser[userKey]
		user.Total += value
		user.Items += rec.Quantity
		if rec.Verified {
			user.ToPay += value
		}
		stats.ByUser[userKey] = user

		product := stats.ByProduct[rec.Product]
		product.Count += rec.Quantity
		product.Total += value
		stats.ByProduct[rec.Product] = product
	}
	return stats
}
