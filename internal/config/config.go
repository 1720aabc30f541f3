// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for simulation, anti-cheat and server settings.
//
// IMPORTANT: When changing balance values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig holds frame pacing and physics tuning shared by every session.
// Physics values are in world units per frame at TickRate.
type SimConfig struct {
	TickRate        int // Simulation frames per second
	BroadcastRate   int // Delta broadcasts per second
	MaxCatchUpSteps int // Max frames run in one wake-up after a stall

	InputBufferFrames int // Ring size per player (history horizon)
	FutureFrames      int // How far ahead of the server an input may target
	StallFrames       int // Frames without input before a player goes neutral

	Gravity        float64
	MaxFallSpeed   float64
	MaxVelocity    float64 // Hard clamp on speed magnitude
	GroundFriction float64 // Multiplier applied to vx while grounded
	AirFriction    float64 // Multiplier applied to vx while airborne
	JumpVelocity   float64
	BounceImpulse  float64 // Upward speed imparted by bouncy platforms

	KnockoutDamage      float64 // Damage percent at which a fighter is knocked out
	RespawnFrames       int
	RespawnInvulnFrames int
	HitInvulnFrames     int
	ComboWindowFrames   int

	MeterMax    float64
	MeterRegen  float64 // Meter gained per frame
	SpecialCost float64

	ItemSpawnFrames int // Frames between pickup spawns when items are enabled
	MaxEntities     int
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:        60,
		BroadcastRate:   20,
		MaxCatchUpSteps: 3,

		InputBufferFrames: 120, // 2 seconds at 60 Hz
		FutureFrames:      120,
		StallFrames:       30,

		Gravity:        0.6,
		MaxFallSpeed:   14,
		MaxVelocity:    24,
		GroundFriction: 0.80,
		AirFriction:    0.96,
		JumpVelocity:   12,
		BounceImpulse:  18,

		KnockoutDamage:      150,
		RespawnFrames:       90,
		RespawnInvulnFrames: 120,
		HitInvulnFrames:     12,
		ComboWindowFrames:   30,

		MeterMax:    100,
		MeterRegen:  0.25,
		SpecialCost: 50,

		ItemSpawnFrames: 600, // one pickup every 10 seconds
		MaxEntities:     32,
	}
}

// SimFromEnv returns simulation configuration with environment variable overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if v := getEnvInt("SIM_TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvInt("SIM_BROADCAST_RATE", 0); v > 0 {
		cfg.BroadcastRate = v
	}
	if v := getEnvInt("SIM_MAX_CATCHUP", 0); v > 0 {
		cfg.MaxCatchUpSteps = v
	}
	if v := getEnvFloat("SIM_KNOCKOUT_DAMAGE", 0); v > 0 {
		cfg.KnockoutDamage = v
	}
	if v := getEnvInt("SIM_ITEM_SPAWN_FRAMES", 0); v > 0 {
		cfg.ItemSpawnFrames = v
	}

	return cfg
}

// FrameDuration returns the wall-clock length of one simulation frame.
func (c SimConfig) FrameDuration() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// BroadcastInterval returns how many frames pass between delta broadcasts.
func (c SimConfig) BroadcastInterval() int {
	if c.BroadcastRate <= 0 || c.BroadcastRate >= c.TickRate {
		return 1
	}
	return c.TickRate / c.BroadcastRate
}

// =============================================================================
// ANTI-CHEAT CONFIGURATION
// =============================================================================

// AntiCheatConfig holds validator ceilings and escalation thresholds.
type AntiCheatConfig struct {
	MaxInputsPerSecond int
	MinInputInterval   time.Duration
	DodgeMomentumLimit float64 // Speed above which dodging against momentum is flagged

	MaxSpeed          float64 // World units per second
	TeleportDistance  float64
	TeleportWindow    time.Duration
	ReportClockSlack  time.Duration // How far report frames may run ahead of arrival time
	VelocityTolerance float64 // Allowed vertical speed error per frame elapsed
	GroundTolerance   float64

	MinAttackCooldown time.Duration
	MaxHitDamage      float64

	WarnAt      int
	KickAt      int
	BanAt       int
	DecayWindow time.Duration
	MaxDetails  int
}

// DefaultAntiCheat returns the default anti-cheat configuration.
func DefaultAntiCheat() AntiCheatConfig {
	return AntiCheatConfig{
		MaxInputsPerSecond: 30,
		MinInputInterval:   5 * time.Millisecond,
		DodgeMomentumLimit: 10,

		MaxSpeed:          1800,
		TeleportDistance:  300,
		TeleportWindow:    100 * time.Millisecond,
		ReportClockSlack:  250 * time.Millisecond,
		VelocityTolerance: 2.5,
		GroundTolerance:   6,

		MinAttackCooldown: 150 * time.Millisecond,
		MaxHitDamage:      40,

		WarnAt:      3,
		KickAt:      10,
		BanAt:       25,
		DecayWindow: 5 * time.Minute,
		MaxDetails:  10,
	}
}

// AntiCheatFromEnv returns anti-cheat configuration with environment variable overrides.
func AntiCheatFromEnv() AntiCheatConfig {
	cfg := DefaultAntiCheat()

	if v := getEnvInt("AC_MAX_INPUTS_PER_SECOND", 0); v > 0 {
		cfg.MaxInputsPerSecond = v
	}
	if v := getEnvFloat("AC_MAX_SPEED", 0); v > 0 {
		cfg.MaxSpeed = v
	}
	if v := getEnvInt("AC_WARN_AT", 0); v > 0 {
		cfg.WarnAt = v
	}
	if v := getEnvInt("AC_KICK_AT", 0); v > 0 {
		cfg.KickAt = v
	}
	if v := getEnvInt("AC_BAN_AT", 0); v > 0 {
		cfg.BanAt = v
	}
	if v := getEnvDuration("AC_DECAY_WINDOW", 0); v > 0 {
		cfg.DecayWindow = v
	}

	return cfg
}

// =============================================================================
// SESSION CONFIGURATION
// =============================================================================

// SessionConfig holds registry limits and teardown timing.
type SessionConfig struct {
	MaxSessions       int
	InactivityTimeout time.Duration
	SweepInterval     time.Duration
	OutboundQueueSize int // Buffered messages per dispatcher
}

// DefaultSession returns the default session configuration.
func DefaultSession() SessionConfig {
	return SessionConfig{
		MaxSessions:       256,
		InactivityTimeout: 60 * time.Second,
		SweepInterval:     5 * time.Second,
		OutboundQueueSize: 256,
	}
}

// SessionFromEnv returns session configuration with environment variable overrides.
func SessionFromEnv() SessionConfig {
	cfg := DefaultSession()

	if v := getEnvInt("MAX_SESSIONS", 0); v > 0 {
		cfg.MaxSessions = v
	}
	if v := getEnvDuration("SESSION_INACTIVITY_TIMEOUT", 0); v > 0 {
		cfg.InactivityTimeout = v
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	DebugPort      int    // pprof + metrics, 0 disables
	DebugUser      string // Basic auth for the debug server, empty disables
	DebugPass      string
	ReplayDir      string // Empty disables the replay recorder
	AllowedOrigins []string
	RequestsPerSec float64 // Per-IP API rate limit
	RequestBurst   int
	MatchmakerKey  string  // Bearer token for session create/end, empty disables the check
	WSMessageRate  float64 // Inbound websocket messages per second per connection
	WSMessageBurst int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		DebugPort:      6060,
		ReplayDir:      "",
		AllowedOrigins: []string{"*"},
		RequestsPerSec: 10,
		RequestBurst:   20,
		WSMessageRate:  90,
		WSMessageBurst: 30,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if p := getEnvInt("DEBUG_PORT", -1); p >= 0 {
		cfg.DebugPort = p
	}
	cfg.DebugUser = os.Getenv("DEBUG_USER")
	cfg.DebugPass = os.Getenv("DEBUG_PASS")
	if dir := os.Getenv("REPLAY_DIR"); dir != "" {
		cfg.ReplayDir = dir
	}
	if origin := os.Getenv("ALLOWED_ORIGIN"); origin != "" {
		cfg.AllowedOrigins = []string{origin}
	}
	if v := getEnvFloat("API_REQUESTS_PER_SEC", 0); v > 0 {
		cfg.RequestsPerSec = v
	}
	if v := getEnvInt("API_REQUEST_BURST", 0); v > 0 {
		cfg.RequestBurst = v
	}
	if v := getEnvFloat("WS_MESSAGE_RATE", 0); v > 0 {
		cfg.WSMessageRate = v
	}
	if v := getEnvInt("WS_MESSAGE_BURST", 0); v > 0 {
		cfg.WSMessageBurst = v
	}
	cfg.MatchmakerKey = os.Getenv("MATCHMAKER_KEY")

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim       SimConfig
	AntiCheat AntiCheatConfig
	Session   SessionConfig
	Server    ServerConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Sim:       SimFromEnv(),
		AntiCheat: AntiCheatFromEnv(),
		Session:   SessionFromEnv(),
		Server:    ServerFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
