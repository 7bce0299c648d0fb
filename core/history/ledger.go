package history

import (
	"context"
	"fmt"
	"time"

	"itch-archiver/core/catalog"
	"itch-archiver/core/reconcile"

	"gorm.io/gorm"
)

// Event is one recorded outcome.
type Event struct {
	ID         uint      `gorm:"column:id;primaryKey" json:"id"`
	Publisher  string    `gorm:"column:publisher;size:191;index:idx_download_events_title" json:"publisher"`
	Title      string    `gorm:"column:title;size:191;index:idx_download_events_title" json:"title"`
	GameID     int64     `gorm:"column:game_id" json:"game_id"`
	UploadID   int64     `gorm:"column:upload_id" json:"upload_id"`
	File       string    `gorm:"column:file;size:255" json:"file"`
	Action     string    `gorm:"column:action;size:32" json:"action"`
	Kind       string    `gorm:"column:kind;size:32" json:"kind,omitempty"`
	Digest     string    `gorm:"column:digest;size:64" json:"digest,omitempty"`
	Bytes      int64     `gorm:"column:bytes" json:"bytes"`
	ArchivedTo string    `gorm:"column:archived_to;size:1024" json:"archived_to,omitempty"`
	Error      string    `gorm:"column:error;type:text" json:"error,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the table name.
func (Event) TableName() string {
	return "download_events"
}

// Ledger stores Events in a SQL database.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedger creates a Ledger backed by db.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Migrate creates or updates the events table.
func (l *Ledger) Migrate() error {
	if err := l.db.AutoMigrate(&Event{}); err != nil {
		return fmt.Errorf("failed to migrate download_events: %w", err)
	}
	return nil
}

// Record stores the outcome of one upload.
func (l *Ledger) Record(ctx context.Context, t *catalog.Title, o reconcile.Outcome) error {
	ev := Event{
		Publisher:  t.PublisherSlug(),
		Title:      t.Slug(),
		GameID:     t.GameID,
		UploadID:   o.UploadID,
		File:       o.File,
		Action:     string(o.Action),
		Kind:       string(o.Kind),
		Digest:     o.Digest,
		Bytes:      o.Bytes,
		ArchivedTo: o.ArchivedTo,
		CreatedAt:  l.now().UTC(),
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}

	if err := l.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return fmt.Errorf("failed to record %s/%s: %w", t, o.File, err)
	}
	return nil
}

// History returns the newest events first. An empty publisher or title
// matches every value; limit <= 0 means no limit.
func (l *Ledger) History(ctx context.Context, publisher, title string, limit int) ([]Event, error) {
	q := l.db.WithContext(ctx).Model(&Event{})
	if publisher != "" {
		q = q.Where("publisher = ?", publisher)
	}
	if title != "" {
		q = q.Where("title = ?", title)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var events []Event
	if err := q.Order("id DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return events, nil
}
