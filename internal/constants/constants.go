package constants

import "time"

const (
	MetaFileName         = "slippi-ops.meta.json"
	InvalidGamesFileName = "invalid_games.txt"
	StatsCacheFileName   = "character_stats_cache.json.zst"
	ReplayExtension      = ".slp"
)

const (
	GameCheckInterval     = 1 * time.Second
	GameEndCheckEvery     = 10
	DirectoryPollInterval = 3 * time.Second
	TrackedPollInterval   = 15 * time.Second
	FilePollInterval      = 1 * time.Second
	StatsCacheDebounce    = 10 * time.Second
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	ParseTimeout       = 2 * time.Minute
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 500
	ImportBatchSize   = 500
	ExistsBatchSize   = 500
)

const (
	DefaultUnrankedElo = 1100
	EloKFactor         = 32
	MinElo             = 300
)

const (
	ShutdownTimeout   = 5 * time.Second
	DeleteMaxAttempts = 5
	DeleteRetryDelay  = 200 * time.Millisecond
)
