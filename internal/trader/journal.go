package trader

import (
	"fmt"
	"sync"

	"hyperliquid-trade-bot-go/internal/models"

	"gorm.io/gorm"
)

// Journal is the append-only in-memory trade log. Records are never mutated
// after append and are flushed to durable storage once, on shutdown.
type Journal struct {
	mu      sync.Mutex
	records []models.TradeRecord
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Append adds one record to the journal.
func (j *Journal) Append(rec models.TradeRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
}

// Records returns a copy of all appended records in order.
func (j *Journal) Records() []models.TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.TradeRecord, len(j.records))
	copy(out, j.records)
	return out
}

// Stats computes the summary reported on shutdown. Win rate is over closed
// trades only.
func (j *Journal) Stats() models.TradeStats {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := models.TradeStats{TotalTrades: len(j.records)}
	for _, rec := range j.records {
		if rec.Action != models.ActionClose {
			continue
		}
		stats.ClosedTrades++
		if rec.Pnl > 0 {
			stats.WinningTrades++
		}
		stats.TotalPnl += rec.Pnl
	}
	if stats.ClosedTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.ClosedTrades)
	}
	return stats
}

// FlushTo writes all journal records to the database in one batch.
func (j *Journal) FlushTo(db *gorm.DB) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.records) == 0 {
		return nil
	}
	if err := db.Create(&j.records).Error; err != nil {
		return fmt.Errorf("failed to flush trade journal: %w", err)
	}
	return nil
}
