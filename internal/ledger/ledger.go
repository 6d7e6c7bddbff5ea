// Package ledger keeps the durable record of completed shipment
// registrations. The file is the single source of truth for deduplication:
// the remote site's "shipped" flag may lag, so shipping discovery consults
// this file instead.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// DefaultRetentionDays is how long records are kept before the startup sweep
// removes them.
const DefaultRetentionDays = 90

// Record is one completed shipment registration. Records are never mutated;
// they are only appended and eventually removed by the retention sweep.
type Record struct {
	ListingID      string  `json:"listingId"`
	RegisteredAt   string  `json:"registeredAt"` // RFC 3339 with offset
	TrackingNumber *string `json:"trackingNumber"`
}

type document struct {
	ShippedItems []Record `json:"shippedItems"`
}

// Ledger reads and rewrites the shipment history file. Writes are guarded by
// a file lock; the load-append-rewrite cycle is only safe because at most one
// workflow runs at a time, and the lock protects against a second process.
type Ledger struct {
	path string
	flk  *flock.Flock
	now  func() time.Time
}

// New returns a ledger backed by the file at path. The file is created on
// first append.
func New(path string) *Ledger {
	return &Ledger{
		path: path,
		flk:  flock.New(path + ".lock"),
		now:  time.Now,
	}
}

// Load reads all records. A missing file is an empty ledger; a corrupt file
// is an error, since treating it as empty would silently disable
// deduplication.
func (l *Ledger) Load() ([]Record, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ledger file %s is corrupt: %w", l.path, err)
	}
	return doc.ShippedItems, nil
}

// IDs returns the set of listing identifiers with a registered shipment.
func (l *Ledger) IDs() (map[string]bool, error) {
	records, err := l.Load()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ListingID != "" {
			ids[r.ListingID] = true
		}
	}
	return ids, nil
}

// Append records a completed registration for listingID and writes the file
// synchronously before returning, so a crash immediately afterwards still
// leaves the dedup record intact. trackingNumber may be empty.
func (l *Ledger) Append(listingID, trackingNumber string) (Record, error) {
	if listingID == "" {
		return Record{}, errors.New("listing identifier is required")
	}
	if err := l.flk.Lock(); err != nil {
		return Record{}, fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer l.flk.Unlock()

	records, err := l.Load()
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ListingID:    listingID,
		RegisteredAt: l.now().Format(time.RFC3339),
	}
	if trackingNumber != "" {
		rec.TrackingNumber = &trackingNumber
	}
	records = append(records, rec)

	if err := l.write(records); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Sweep removes records older than retentionDays and returns how many were
// removed. The date portion is parsed leniently: a record with a missing or
// unparseable timestamp is kept. The file is rewritten only when something
// was removed.
func (l *Ledger) Sweep(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if err := l.flk.Lock(); err != nil {
		return 0, fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer l.flk.Unlock()

	records, err := l.Load()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	cutoff := l.now().AddDate(0, 0, -retentionDays)
	kept := records[:0]
	for _, r := range records {
		if registeredBefore(r, cutoff) {
			continue
		}
		kept = append(kept, r)
	}

	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := l.write(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func registeredBefore(r Record, cutoff time.Time) bool {
	if r.RegisteredAt == "" {
		return false
	}
	datePart, _, _ := strings.Cut(r.RegisteredAt, "T")
	day, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return false
	}
	return day.Before(cutoff)
}

// write rewrites the whole document atomically: temp file in the same
// directory, fsync, rename.
func (l *Ledger) write(records []Record) error {
	data, err := json.MarshalIndent(document{ShippedItems: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
