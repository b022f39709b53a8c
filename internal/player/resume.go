package player

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	appName      = "venuecast"
	dbFileName   = "resume.db"
	saveDebounce = 3 * time.Second

	// Stored positions within a few seconds of either end are not worth
	// resuming from.
	resumeEdgeSeconds = 5
)

// ResumeStore persists playback positions keyed by track, debounced so the
// 1s position ticker does not hammer the disk. The engine decides when a
// stored position actually applies; the store only keeps and filters them.
type ResumeStore struct {
	db *sql.DB

	saveMu    sync.Mutex
	saveTimer *time.Timer
	pending   *resumeEntry
}

type resumeEntry struct {
	trackID         string
	positionSeconds float64
}

// OpenResumeStore opens the resume database at the XDG data path.
func OpenResumeStore() (*ResumeStore, error) {
	dbPath, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	return OpenResumeStoreAt(dbPath)
}

// OpenResumeStoreAt opens the resume database at an explicit path.
func OpenResumeStoreAt(dbPath string) (*ResumeStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := initResumeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResumeStore{db: db}, nil
}

// Close flushes any pending save and closes the database.
func (s *ResumeStore) Close() error {
	s.Flush()
	return s.db.Close()
}

// Save schedules a debounced write of the position for a track.
func (s *ResumeStore) Save(trackID string, positionSeconds float64) {
	if trackID == "" {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.pending = &resumeEntry{trackID: trackID, positionSeconds: positionSeconds}

	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(saveDebounce, func() {
		s.saveMu.Lock()
		pending := s.pending
		s.pending = nil
		s.saveMu.Unlock()

		if pending != nil {
			_ = savePosition(s.db, *pending)
		}
	})
}

// Flush writes any pending position immediately.
func (s *ResumeStore) Flush() {
	s.saveMu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	pending := s.pending
	s.pending = nil
	s.saveMu.Unlock()

	if pending != nil {
		_ = savePosition(s.db, *pending)
	}
}

// ResumePosition returns the stored position for a track, or zero when no
// useful position exists. Positions too close to either end are ignored.
func (s *ResumeStore) ResumePosition(trackID string, durationSeconds float64) float64 {
	// Take any pending save into account before reading.
	s.saveMu.Lock()
	pending := s.pending
	s.saveMu.Unlock()

	var stored float64
	if pending != nil && pending.trackID == trackID {
		stored = pending.positionSeconds
	} else {
		row := s.db.QueryRow(
			`SELECT position_seconds FROM resume_positions WHERE track_id = ?`, trackID)
		if err := row.Scan(&stored); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return 0
			}
			return 0
		}
	}

	if stored <= resumeEdgeSeconds {
		return 0
	}
	if durationSeconds > 0 && stored >= durationSeconds-resumeEdgeSeconds {
		return 0
	}
	return stored
}

func initResumeSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS resume_positions (
			track_id TEXT PRIMARY KEY,
			position_seconds REAL NOT NULL,
			updated_at INTEGER NOT NULL
		)`)
	return err
}

func savePosition(db *sql.DB, entry resumeEntry) error {
	_, err := db.Exec(`
		INSERT INTO resume_positions (track_id, position_seconds, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE SET
			position_seconds = excluded.position_seconds,
			updated_at = excluded.updated_at`,
		entry.trackID, entry.positionSeconds, time.Now().Unix())
	return err
}
