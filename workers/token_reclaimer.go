// workers/token_reclaimer.go
package workers

import (
	"log"
	"sync/atomic"
	"time"

	"token-pool-system/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

const (
	DefaultReclaimInterval = 1 * time.Hour
	DefaultReclaimGrace    = 1 * time.Hour
)

// TokenReclaimer periodically tombstones expired pool entries: the token
// payload is cleared so the row stops matching any live query, while
// assigned_to/assigned_at stay untouched for the availability history.
// Storage hygiene only; expiry itself needs no write because every live query
// filters on expires_at.
type TokenReclaimer struct {
	DB       *gorm.DB
	Interval time.Duration
	Grace    time.Duration

	started atomic.Bool
}

func NewTokenReclaimer(db *gorm.DB, interval, grace time.Duration) *TokenReclaimer {
	if interval <= 0 {
		interval = DefaultReclaimInterval
	}
	if grace <= 0 {
		grace = DefaultReclaimGrace
	}
	return &TokenReclaimer{DB: db, Interval: interval, Grace: grace}
}

// Start schedules the recurring sweep. Safe to call more than once per
// process; only the first call starts a scheduler.
func (r *TokenReclaimer) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}

	sched, _ := gocron.NewScheduler()
	_, _ = sched.NewJob(
		gocron.DurationJob(r.Interval),
		gocron.NewTask(r.Sweep),
	)
	sched.Start()
	log.Printf("[RECLAIMER] sweeping every %s (grace %s)", r.Interval, r.Grace)
}

// Sweep tombstones every expired, still-populated entry past the grace
// window. Failures are logged and swallowed; a missed sweep self-heals on the
// next tick.
func (r *TokenReclaimer) Sweep() {
	cutoff := time.Now().Add(-r.Grace)
	res := r.DB.Model(&models.IntegrityToken{}).
		Where("expires_at < ? AND token <> ''", cutoff).
		Update("token", "")
	if res.Error != nil {
		log.Printf("[RECLAIMER] sweep failed: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("[RECLAIMER] tombstoned %d expired tokens", res.RowsAffected)
	}
}
