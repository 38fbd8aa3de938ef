package smartsync

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

// DefaultThreshold is the drift tolerated before a follower snaps to the
// authoritative position.
const DefaultThreshold = 2 * time.Second

// Predictor smooths playback progress for followers between player_state
// snapshots. The zero value is not usable; call NewPredictor.
type Predictor struct {
	clock     clockwork.Clock
	threshold float64

	mu       sync.Mutex
	ref      *protocol.PlayerState
	syncedAt time.Time
	// last snapshot the hard-sync check ran against
	last *protocol.PlayerState
}

// NewPredictor creates a predictor. A non-positive threshold uses DefaultThreshold.
func NewPredictor(clock clockwork.Clock, threshold time.Duration) *Predictor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Predictor{
		clock:     clock,
		threshold: threshold.Seconds(),
	}
}

// Present returns the player state to show. The leader always sees actual.
// A follower sees an extrapolation of the last hard-synced state. The hard-sync
// check only runs when actual differs from the snapshot it last evaluated, so
// re-reading an unchanged snapshot keeps extrapolating.
func (p *Predictor) Present(actual *protocol.PlayerState, isLeader bool) *protocol.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if actual == nil {
		return nil
	}

	now := p.clock.Now()
	if isLeader || p.ref == nil {
		p.hardSync(actual, now)
		return actual
	}

	predicted := p.predict(now)
	if sameSnapshot(p.last, actual) {
		return predicted
	}
	p.observe(actual)

	if reason := p.hardSyncReason(predicted, actual); reason != "" {
		log.Debug().
			Str("reason", reason).
			Str("from_state", string(predicted.PlayState)).
			Str("to_state", string(actual.PlayState)).
			Float64("drift_sec", math.Abs(predicted.CurrentTime-actual.CurrentTime)).
			Int64("version", actual.Version).
			Msg("smart sync hard sync")
		p.hardSync(actual, now)
		return actual
	}

	return predicted
}

// Reset forgets the reference state, e.g. after the connection drops
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ref = nil
	p.last = nil
	p.syncedAt = time.Time{}
}

func (p *Predictor) predict(now time.Time) *protocol.PlayerState {
	predicted := *p.ref
	if predicted.PlayState != protocol.PlayStatePlaying {
		return &predicted
	}

	elapsed := now.Sub(p.syncedAt).Seconds()
	predicted.CurrentTime += elapsed
	predicted.Timestamp = float64(now.UnixMilli())
	return &predicted
}

func (p *Predictor) hardSyncReason(predicted, actual *protocol.PlayerState) string {
	switch {
	case predicted.PlayState != actual.PlayState:
		return "play_state_changed"
	case math.Abs(predicted.CurrentTime-actual.CurrentTime) > p.threshold:
		return "drift"
	case predicted.EntryID() != actual.EntryID():
		return "song_changed"
	case actual.Version > predicted.Version:
		return "version_advanced"
	}
	return ""
}

func (p *Predictor) hardSync(actual *protocol.PlayerState, now time.Time) {
	ref := *actual
	p.ref = &ref
	p.syncedAt = now
	p.observe(actual)
}

func (p *Predictor) observe(actual *protocol.PlayerState) {
	seen := *actual
	p.last = &seen
}

func sameSnapshot(a, b *protocol.PlayerState) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Version == b.Version &&
		a.Timestamp == b.Timestamp &&
		a.PlayState == b.PlayState &&
		a.CurrentTime == b.CurrentTime &&
		a.Duration == b.Duration &&
		a.Volume == b.Volume &&
		a.EntryID() == b.EntryID()
}
