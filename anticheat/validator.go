package anticheat

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type ViolationType int

const (
	ViolationSpeedHack ViolationType = iota
	ViolationTeleport
	ViolationItemExploit
	ViolationPacketFlood
	ViolationInvalidData
	ViolationMemoryEdit
)

func (v ViolationType) String() string {
	switch v {
	case ViolationSpeedHack:
		return "speed_hack"
	case ViolationTeleport:
		return "teleport"
	case ViolationItemExploit:
		return "item_exploit"
	case ViolationPacketFlood:
		return "packet_flood"
	case ViolationInvalidData:
		return "invalid_data"
	case ViolationMemoryEdit:
		return "memory_edit"
	}
	return "unknown"
}

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// ViolationStore persists violation detail for offline review. Failures are
// logged and swallowed; detection never depends on the database being up.
type ViolationStore interface {
	InsertViolation(ctx context.Context, id string, accountID uint32, vtype, severity, details string) error
	InsertAnomalousLap(ctx context.Context, accountID uint32, mapID uint32, lapTimeMs int64) error
}

// Enforcer is how escalation reaches the connection layer. Implemented by
// the server core; the validator never touches sockets itself.
type Enforcer interface {
	Warn(sessionID uint32, message string)
	Kick(sessionID uint32, message string)
	TempBan(sessionID uint32, message string)
}

type Config struct {
	TeleportDistance float64 // units; jumps beyond this inside TeleportWindow are rejected
	TeleportWindow   time.Duration
	DefaultMaxSpeed  float64 // units/second
	MapMaxSpeeds     map[uint32]float64
	SpeedTolerance   float64 // fraction on top of the map limit, absorbs latency and boost items
	DefaultMinLapMs  int64
	MapMinLapMs      map[uint32]int64
	PacketsPerSecond int
	KickThreshold    int
	BanThreshold     int
	HistorySize      int
}

func DefaultConfig() Config {
	return Config{
		TeleportDistance: 500,
		TeleportWindow:   100 * time.Millisecond,
		DefaultMaxSpeed:  3000,
		MapMaxSpeeds:     map[uint32]float64{},
		SpeedTolerance:   0.20,
		DefaultMinLapMs:  15000,
		MapMinLapMs:      map[uint32]int64{},
		PacketsPerSecond: 100,
		KickThreshold:    5,
		BanThreshold:     10,
		HistorySize:      60,
	}
}

type positionSample struct {
	x, y, z float64
	at      time.Time
}

type sessionState struct {
	accountID  uint32
	history    []positionSample // bounded ring, newest last
	violations int
	banned     bool
	limiter    *rate.Limiter
}

// Validator holds all per-session anti-cheat state. One instance lives on
// the server core; entries are created lazily and removed by ClearViolations
// on disconnect.
type Validator struct {
	cfg      Config
	store    ViolationStore
	enforcer Enforcer
	log      zerolog.Logger

	// validator methods are called from multiple connection goroutines;
	// this lock is separate from the room registry and race locks
	mu       sync.Mutex
	sessions map[uint32]*sessionState

	now func() time.Time
}

func NewValidator(cfg Config, store ViolationStore, enforcer Enforcer, log zerolog.Logger) *Validator {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 60
	}
	return &Validator{
		cfg:      cfg,
		store:    store,
		enforcer: enforcer,
		log:      log.With().Str("category", "anticheat").Logger(),
		sessions: map[uint32]*sessionState{},
		now:      time.Now,
	}
}

func (v *Validator) state(sessionID uint32) *sessionState {
	st, ok := v.sessions[sessionID]
	if !ok {
		st = &sessionState{
			limiter: rate.NewLimiter(rate.Limit(v.cfg.PacketsPerSecond), v.cfg.PacketsPerSecond),
		}
		v.sessions[sessionID] = st
	}
	return st
}

// BindAccount associates the authenticated account with the session so
// persisted violations can be attributed.
func (v *Validator) BindAccount(sessionID, accountID uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state(sessionID).accountID = accountID
}

// ValidatePosition accepts or rejects a reported coordinate update. Rejected
// updates must not be applied to race state.
func (v *Validator) ValidatePosition(sessionID uint32, x, y, z float64) bool {
	now := v.now()
	v.mu.Lock()
	st := v.state(sessionID)

	if len(st.history) == 0 {
		v.record(st, x, y, z, now)
		v.mu.Unlock()
		return true
	}

	last := st.history[len(st.history)-1]
	elapsed := now.Sub(last.at)
	dist := distance(x, y, z, last.x, last.y, last.z)

	if elapsed < v.cfg.TeleportWindow && dist > v.cfg.TeleportDistance {
		v.mu.Unlock()
		v.ReportViolation(sessionID, ViolationTeleport, SeverityHigh, "position jump beyond teleport threshold")
		return false
	}

	elapsedMs := float64(elapsed.Milliseconds())
	if elapsedMs < 1 {
		elapsedMs = 1
	}
	speed := dist / elapsedMs * 1000
	if speed > v.cfg.DefaultMaxSpeed {
		v.mu.Unlock()
		v.ReportViolation(sessionID, ViolationSpeedHack, SeverityMedium, "implied speed above limit")
		return false
	}

	v.record(st, x, y, z, now)
	v.mu.Unlock()
	return true
}

// record appends to the bounded history, evicting the oldest sample.
// Caller holds the lock.
func (v *Validator) record(st *sessionState, x, y, z float64, at time.Time) {
	st.history = append(st.history, positionSample{x, y, z, at})
	if len(st.history) > v.cfg.HistorySize {
		st.history = st.history[1:]
	}
}

// ValidateSpeed checks a client-reported speed against the per-map limit
// with the configured tolerance band.
func (v *Validator) ValidateSpeed(sessionID uint32, speed float64, mapID uint32) bool {
	limit := v.cfg.DefaultMaxSpeed
	if m, ok := v.cfg.MapMaxSpeeds[mapID]; ok {
		limit = m
	}
	if speed > limit*(1+v.cfg.SpeedTolerance) {
		v.ReportViolation(sessionID, ViolationSpeedHack, SeverityMedium, "reported speed above map limit")
		return false
	}
	return true
}

// ValidateLapTime rejects laps below the per-map floor and forwards the
// sample for offline review.
func (v *Validator) ValidateLapTime(sessionID uint32, mapID uint32, lapTimeMs int64) bool {
	floor := v.cfg.DefaultMinLapMs
	if m, ok := v.cfg.MapMinLapMs[mapID]; ok {
		floor = m
	}
	if lapTimeMs >= floor {
		return true
	}

	v.mu.Lock()
	accountID := v.state(sessionID).accountID
	v.mu.Unlock()
	if v.store != nil {
		if err := v.store.InsertAnomalousLap(context.Background(), accountID, mapID, lapTimeMs); err != nil {
			v.log.Warn().Err(err).Uint32("session", sessionID).Msg("failed to persist anomalous lap")
		}
	}
	v.ReportViolation(sessionID, ViolationSpeedHack, SeverityHigh, "lap time below map floor")
	return false
}

// ValidatePacketRate enforces the per-session packet budget over a sliding
// second.
func (v *Validator) ValidatePacketRate(sessionID uint32) bool {
	v.mu.Lock()
	st := v.state(sessionID)
	allowed := st.limiter.Allow()
	v.mu.Unlock()
	if !allowed {
		v.ReportViolation(sessionID, ViolationPacketFlood, SeverityMedium, "packet rate over budget")
	}
	return allowed
}

// ReportViolation counts the breach, persists it, and escalates. The ban
// action fires at most once per session lifetime; the counter resets only
// via ClearViolations.
func (v *Validator) ReportViolation(sessionID uint32, vtype ViolationType, severity Severity, details string) {
	v.mu.Lock()
	st := v.state(sessionID)
	st.violations++
	count := st.violations
	accountID := st.accountID
	alreadyBanned := st.banned

	ban := !alreadyBanned && (severity == SeverityCritical || count >= v.cfg.BanThreshold)
	if ban {
		st.banned = true
	}
	v.mu.Unlock()

	v.log.Warn().
		Uint32("session", sessionID).
		Str("type", vtype.String()).
		Str("severity", severity.String()).
		Int("count", count).
		Msg(details)

	if v.store != nil {
		if err := v.store.InsertViolation(context.Background(), uuid.NewString(), accountID, vtype.String(), severity.String(), details); err != nil {
			v.log.Error().Err(err).Uint32("session", sessionID).Msg("failed to persist violation")
		}
	}

	if v.enforcer == nil || alreadyBanned {
		return
	}

	switch {
	case ban:
		v.enforcer.TempBan(sessionID, "You have been temporarily banned for cheating.")
	case severity == SeverityHigh || count >= v.cfg.KickThreshold:
		v.enforcer.Kick(sessionID, "You have been disconnected for suspicious activity.")
	case severity == SeverityMedium:
		v.enforcer.Warn(sessionID, "Warning: irregular activity detected.")
	}
}

// ViolationCount reports the running counter for a session.
func (v *Validator) ViolationCount(sessionID uint32) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if st, ok := v.sessions[sessionID]; ok {
		return st.violations
	}
	return 0
}

// ClearViolations drops all state for a session. Called from disconnect
// cleanup.
func (v *Validator) ClearViolations(sessionID uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.sessions, sessionID)
}

func distance(x1, y1, z1, x2, y2, z2 float64) float64 {
	dx, dy, dz := x1-x2, y1-y2, z1-z2
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
