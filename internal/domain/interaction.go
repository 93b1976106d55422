package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// AdjustmentResult describes a manual adjustment applied to a session.
type AdjustmentResult struct {
	RequestedMs int64 `json:"requested_ms"`
	AppliedMs   int64 `json:"applied_ms"`
	Clamped     bool  `json:"clamped"`
}

// Requested returns the delta the user asked for.
func (r *AdjustmentResult) Requested() time.Duration {
	return time.Duration(r.RequestedMs) * time.Millisecond
}

// Applied returns the delta that was actually applied.
func (r *AdjustmentResult) Applied() time.Duration {
	return time.Duration(r.AppliedMs) * time.Millisecond
}

// Warning returns ErrInvalidAdjustment when the requested delta was clamped.
func (r *AdjustmentResult) Warning() error {
	if r == nil || !r.Clamped {
		return nil
	}
	return fmt.Errorf("%w: requested %s, applied %s", ErrInvalidAdjustment, r.Requested(), r.Applied())
}

// Outcome is the result of a mutating operation. It carries the instant the
// operation was evaluated at, so a replayed outcome renders exactly as the original.
type Outcome struct {
	InteractionID string            `json:"interaction_id,omitempty"`
	Action        Event             `json:"action"`
	At            time.Time         `json:"at"`
	Session       *Session          `json:"session,omitempty"`
	Adjustment    *AdjustmentResult `json:"adjustment,omitempty"`
	Allocation    *Allocation       `json:"allocation,omitempty"`
	Replayed      bool              `json:"-"`
}

// InteractionRecord stores the outcome of an applied invocation so that a
// redelivered invocation replays instead of applying twice.
type InteractionRecord struct {
	InteractionID string
	UserID        string
	Action        Event
	Fingerprint   string
	Outcome       json.RawMessage
	CreatedAt     time.Time
}

// NewInteractionRecord encodes an outcome into a record.
func NewInteractionRecord(inv Invocation, out *Outcome, now time.Time) (*InteractionRecord, error) {
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode outcome: %w", err)
	}
	sum := sha256.Sum256(payload)
	return &InteractionRecord{
		InteractionID: inv.ID,
		UserID:        inv.UserID,
		Action:        out.Action,
		Fingerprint:   hex.EncodeToString(sum[:]),
		Outcome:       payload,
		CreatedAt:     now,
	}, nil
}

// DecodeOutcome returns the stored outcome, verifying it against the fingerprint.
func (r *InteractionRecord) DecodeOutcome() (*Outcome, error) {
	sum := sha256.Sum256(r.Outcome)
	if hex.EncodeToString(sum[:]) != r.Fingerprint {
		return nil, fmt.Errorf("interaction %s: fingerprint mismatch", r.InteractionID)
	}
	var out Outcome
	if err := json.Unmarshal(r.Outcome, &out); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	out.Replayed = true
	return &out, nil
}
