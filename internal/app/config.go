package app

import "time"

// Config holds the battle and matchmaking tunables.
type Config struct {
	QuestionCount int
	FallbackWait  time.Duration
	RoundDelay    time.Duration
	StartTimeout  time.Duration
	PoolRetry     time.Duration
}

func DefaultConfig() Config {
	return Config{
		QuestionCount: 10,
		FallbackWait:  20 * time.Second,
		RoundDelay:    2500 * time.Millisecond,
		StartTimeout:  15 * time.Second,
		PoolRetry:     2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QuestionCount <= 0 {
		c.QuestionCount = d.QuestionCount
	}
	if c.FallbackWait <= 0 {
		c.FallbackWait = d.FallbackWait
	}
	if c.RoundDelay < 0 {
		c.RoundDelay = d.RoundDelay
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}
	if c.PoolRetry <= 0 {
		c.PoolRetry = d.PoolRetry
	}
	return c
}
