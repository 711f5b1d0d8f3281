package domain

import "time"

// OracleVote is a single oracle's opinion on a market outcome for one voting
// round. Each oracle may vote at most once per round; a dispute opens a new
// round.
type OracleVote struct {
	OracleID    string
	MarketID    string
	Round       int
	Outcome     Outcome
	Confidence  int64 // 0..100, self-reported
	Weight      int64 // voting weight assigned at registration
	SubmittedAt time.Time
}

// ConsensusResult is the aggregate decision produced from a round of oracle
// votes. Vote aggregation is commutative: any arrival order of the same vote
// set yields the same result. Immutable once ConsensusReached is true,
// unless a dispute reopens voting in a new round.
type ConsensusResult struct {
	MarketID             string
	Outcome              Outcome
	Confidence           int64 // weighted average confidence of the winning side
	ParticipatingOracles int64
	ConsensusReached     bool
	DisputeThreshold     int64 // percent of participating weight required
	Round                int
	FinalizedAt          time.Time
}

// Dispute records a challenge against a resolved outcome within the market's
// challenge period.
type Dispute struct {
	ID           string
	MarketID     string
	Challenger   string
	Round        int // the round being challenged
	Reason       string
	OpenedAt     time.Time
	ResolvedAt   *time.Time
	Upheld       *bool // nil while open; true if the dispute succeeded
}
