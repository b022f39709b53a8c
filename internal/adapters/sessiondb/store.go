package sessiondb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // Postgres driver

	"venuecast/pkg/vc"
)

var (
	// ErrSessionMissing signals no playback session row exists for the account.
	ErrSessionMissing = errors.New("playback session not found")
	// ErrControlHeld indicates a take-control race was lost to another client.
	ErrControlHeld = errors.New("control held by another client")
	// ErrNotController indicates the caller is not the stored controller.
	ErrNotController = errors.New("caller is not the current controller")
	// ErrAccountMissing signals an unknown account id.
	ErrAccountMissing = errors.New("account not found")
)

// Store provides persistence backed by Postgres. All session mutations are
// conditional updates; zero rows affected means a lost race, never a retry
// with an unconditional overwrite.
type Store struct {
	db *sql.DB
}

// New sets up a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres with the given DSN.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PlaybackMode returns the account-wide playback mode.
func (s *Store) PlaybackMode(ctx context.Context, accountID string) (string, error) {
	var mode string
	err := s.db.QueryRowContext(ctx, `
		SELECT playback_mode
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&mode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrAccountMissing
		}
		return "", fmt.Errorf("lookup account: %w", err)
	}
	return mode, nil
}

// EnsureSession lazily creates the singleton session row for an account and
// returns it. Creation is idempotent across concurrent first accesses.
func (s *Store) EnsureSession(ctx context.Context, accountID string) (vc.SessionState, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playback_sessions (account_id, version, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (account_id) DO NOTHING
	`, accountID)
	if err != nil {
		return vc.SessionState{}, fmt.Errorf("ensure session: %w", err)
	}
	return s.GetSession(ctx, accountID)
}

// GetSession fetches the current session row for an account.
func (s *Store) GetSession(ctx context.Context, accountID string) (vc.SessionState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, controller_user_id, controller_name,
		       current_track, position_seconds, is_playing,
		       playlist_snapshot, version, updated_at
		FROM playback_sessions
		WHERE account_id = $1
	`, accountID)

	state, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vc.SessionState{}, ErrSessionMissing
		}
		return vc.SessionState{}, fmt.Errorf("get session: %w", err)
	}
	return state, nil
}

// TakeControl writes the caller as controller, conditioned on the previous
// controller value observed by the caller. A concurrent winner leaves zero
// rows updated and the caller gets ErrControlHeld.
func (s *Store) TakeControl(ctx context.Context, accountID, userID, userName, prevControllerID string) (vc.SessionState, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE playback_sessions
		SET controller_user_id = $2,
		    controller_name = $3,
		    version = version + 1,
		    updated_at = now()
		WHERE account_id = $1
		  AND controller_user_id IS NOT DISTINCT FROM NULLIF($4, '')
		RETURNING account_id, controller_user_id, controller_name,
		          current_track, position_seconds, is_playing,
		          playlist_snapshot, version, updated_at
	`, accountID, userID, userName, prevControllerID)

	state, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vc.SessionState{}, ErrControlHeld
		}
		return vc.SessionState{}, fmt.Errorf("take control: %w", err)
	}
	return state, nil
}

// ReleaseControl clears the controller, conditioned on the caller actually
// holding it, so a stale release never clobbers a newer controller.
func (s *Store) ReleaseControl(ctx context.Context, accountID, userID string) (vc.SessionState, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE playback_sessions
		SET controller_user_id = NULL,
		    controller_name = NULL,
		    version = version + 1,
		    updated_at = now()
		WHERE account_id = $1
		  AND controller_user_id = $2
		RETURNING account_id, controller_user_id, controller_name,
		          current_track, position_seconds, is_playing,
		          playlist_snapshot, version, updated_at
	`, accountID, userID)

	state, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vc.SessionState{}, ErrNotController
		}
		return vc.SessionState{}, fmt.Errorf("release control: %w", err)
	}
	return state, nil
}

// UpdateTransport writes controller-originated transport state, conditioned
// on the caller still being the stored controller.
func (s *Store) UpdateTransport(ctx context.Context, accountID, userID string, upd vc.TransportUpdate) (vc.SessionState, error) {
	trackJSON, err := marshalNullable(upd.CurrentTrack)
	if err != nil {
		return vc.SessionState{}, fmt.Errorf("marshal track: %w", err)
	}
	playlistJSON, err := marshalNullable(upd.Playlist)
	if err != nil {
		return vc.SessionState{}, fmt.Errorf("marshal playlist: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE playback_sessions
		SET current_track = $3,
		    position_seconds = $4,
		    is_playing = $5,
		    playlist_snapshot = $6,
		    version = version + 1,
		    updated_at = now()
		WHERE account_id = $1
		  AND controller_user_id = $2
		RETURNING account_id, controller_user_id, controller_name,
		          current_track, position_seconds, is_playing,
		          playlist_snapshot, version, updated_at
	`, accountID, userID, trackJSON, upd.PositionSeconds, upd.IsPlaying, playlistJSON)

	state, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vc.SessionState{}, ErrNotController
		}
		return vc.SessionState{}, fmt.Errorf("update transport: %w", err)
	}
	return state, nil
}

// AppendPlayHistory inserts one listening-time record.
func (s *Store) AppendPlayHistory(ctx context.Context, accountID string, rec vc.PlayRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO play_history (id, account_id, user_id, track_id, playlist_id, seconds_listened, region_code, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), now())
	`, uuid.NewString(), accountID, rec.UserID, rec.TrackID, rec.PlaylistID, rec.SecondsListened, rec.RegionCode)
	if err != nil {
		return fmt.Errorf("insert play history: %w", err)
	}
	return nil
}

// HistoryEntry is a stored play-history row.
type HistoryEntry struct {
	ID              string
	UserID          string
	TrackID         string
	PlaylistID      string
	SecondsListened float64
	RegionCode      string
	CreatedAt       time.Time
}

// ListPlayHistory returns the most recent history rows for an account.
func (s *Store) ListPlayHistory(ctx context.Context, accountID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, track_id, COALESCE(playlist_id, ''), seconds_listened, COALESCE(region_code, ''), created_at
		FROM play_history
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list play history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.TrackID, &entry.PlaylistID, &entry.SecondsListened, &entry.RegionCode, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan play history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate play history: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (vc.SessionState, error) {
	var (
		state        vc.SessionState
		controllerID sql.NullString
		controller   sql.NullString
		trackJSON    []byte
		playlistJSON []byte
		updatedAt    time.Time
	)
	err := row.Scan(
		&state.AccountID,
		&controllerID,
		&controller,
		&trackJSON,
		&state.PositionSeconds,
		&state.IsPlaying,
		&playlistJSON,
		&state.Version,
		&updatedAt,
	)
	if err != nil {
		return vc.SessionState{}, err
	}
	state.ControllerUserID = controllerID.String
	state.ControllerName = controller.String
	state.UpdatedAt = updatedAt.UnixMilli()

	if len(trackJSON) > 0 {
		var track vc.Track
		if err := json.Unmarshal(trackJSON, &track); err != nil {
			return vc.SessionState{}, fmt.Errorf("decode track: %w", err)
		}
		state.CurrentTrack = &track
	}
	if len(playlistJSON) > 0 {
		var playlist vc.PlaylistSnapshot
		if err := json.Unmarshal(playlistJSON, &playlist); err != nil {
			return vc.SessionState{}, fmt.Errorf("decode playlist: %w", err)
		}
		state.Playlist = &playlist
	}
	return state, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch value := v.(type) {
	case *vc.Track:
		if value == nil {
			return nil, nil
		}
	case *vc.PlaylistSnapshot:
		if value == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
