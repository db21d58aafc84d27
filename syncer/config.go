package syncer

import "time"

// TieBreak selects which copy survives when duplicate timestamps are equal.
type TieBreak string

// TieBreak values.
const (
	TieLocal  TieBreak = "local"
	TieRemote TieBreak = "remote"
)

// ShareMode is the default share behavior.
type ShareMode string

// ShareMode values.
const (
	ShareAllMode      ShareMode = "all"
	ShareSelectedMode ShareMode = "selected"
)

// Config holds the sync engine settings.
type Config struct {
	// FuzzyThreshold gates the Fuzzy similarity kind during merging.
	FuzzyThreshold float64 `mapstructure:"fuzzy-threshold"`
	// TieBreak resolves equal-timestamp duplicates. Local wins by default.
	TieBreak TieBreak `mapstructure:"tie-break"`
	// RequestTimeout bounds a full-collection request/response exchange.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	// DefaultShareMode is the share behavior when the caller does not
	// specify one.
	DefaultShareMode ShareMode `mapstructure:"share-mode"`
}

// DefaultConfig returns the sync engine defaults.
func DefaultConfig() Config {
	return Config{
		FuzzyThreshold:   0.8,
		TieBreak:         TieLocal,
		RequestTimeout:   30 * time.Second,
		DefaultShareMode: ShareAllMode,
	}
}
