package model

import "time"

// LockRecord is stored under .crucible/locks/ keyed by target path.
type LockRecord struct {
	TargetPath   string    `json:"target_path"`
	HolderNonce  string    `json:"holder_nonce"`
	SessionID    string    `json:"session_id"`
	AcquiredAt   time.Time `json:"acquired_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	FencingToken int64     `json:"fencing_token"`
	Purpose      string    `json:"purpose,omitempty"`
}

// IsExpired returns true if the lock's lease has lapsed.
func (l *LockRecord) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LockPolicy configures lock timing parameters.
type LockPolicy struct {
	DefaultLeaseTTL    time.Duration `json:"default_lease_ttl"`
	MaxLeaseTTL        time.Duration `json:"max_lease_ttl"`
	ClockSkewTolerance time.Duration `json:"clock_skew_tolerance"`
}
