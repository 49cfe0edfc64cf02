package fingerprint

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/coverage-mapper/model"
)

var (
	// ErrSessionClosed is returned for writes outside an open
	// calibration session, including writes to a frozen store.
	ErrSessionClosed = errors.New("calibration session is not open")
	// ErrSessionOpen is returned when an operation requires a frozen
	// store but the session is still collecting points.
	ErrSessionOpen = errors.New("calibration session still open")
	// ErrAlreadyFrozen is returned by Freeze on a store frozen earlier.
	ErrAlreadyFrozen = errors.New("store already frozen")
	// ErrBadPoint is returned for structurally invalid points.
	ErrBadPoint = errors.New("invalid calibration point")
)

// Store holds the fingerprints of one calibration session. It is
// append-only while the session is open and immutable once frozen; a
// new survey means a new Store, never in-place mutation of a frozen
// one, so inference can never race with writes.
type Store struct {
	mu sync.RWMutex

	sessionID string
	openedAt  time.Time
	frozen    bool
	points    []model.CalibrationPoint
}

// NewStore opens a fresh calibration session. A generated session ID is
// used when the caller passes an empty one.
func NewStore(sessionID string) *Store {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Store{
		sessionID: sessionID,
		openedAt:  time.Now(),
	}
}

// SessionID returns the identifier of the session this store belongs to.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// AddPoint appends one fingerprint. Valid only while the session is
// open; writes after Freeze are rejected with ErrSessionClosed.
func (s *Store) AddPoint(pos model.Position, features model.FeatureVector, at time.Time) error {
	if features.Len() == 0 {
		return fmt.Errorf("%w: empty feature vector", ErrBadPoint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrSessionClosed
	}
	s.points = append(s.points, model.CalibrationPoint{
		Position:  pos,
		Features:  features.Clone(),
		Timestamp: at,
	})
	return nil
}

// Freeze closes the session. After Freeze the point set is immutable
// and safe for concurrent readers.
func (s *Store) Freeze() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrAlreadyFrozen
	}
	s.frozen = true
	return nil
}

// Frozen reports whether the session has been completed.
func (s *Store) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Len returns the number of recorded fingerprints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Query returns the full fingerprint set for inference. It requires a
// frozen store; while the session is open the point set is still
// changing underneath any would-be reader.
//
// The returned slice is a copy; an empty slice on an empty store is a
// valid "no inference possible" signal, not an error.
func (s *Store) Query() ([]model.CalibrationPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.frozen {
		return nil, ErrSessionOpen
	}
	out := make([]model.CalibrationPoint, len(s.points))
	copy(out, s.points)
	return out, nil
}
