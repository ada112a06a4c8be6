// Package audit provides a tamper-evident security event trail. Entries
// form a hash chain: each entry's hash covers its own canonical fields
// plus the hash of the previous entry, so deleting, reordering, or
// editing any historical entry breaks verification from that point on.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ActorType classifies who performed an audited action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
	ActorAPIKey ActorType = "apikey"
)

// Action is the closed set of auditable operations.
type Action string

const (
	ActionLogin        Action = "login"
	ActionLoginFailed  Action = "login_failed"
	ActionLogout       Action = "logout"
	ActionAccessDenied Action = "access_denied"
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionExport       Action = "export"
	ActionMFAChallenge Action = "mfa_challenge"
	ActionMFAEnroll    Action = "mfa_enroll"
	ActionMFADisable   Action = "mfa_disable"
	ActionTokenRefresh Action = "token_refresh"
	ActionTokenReuse   Action = "token_reuse_detected"
)

// Outcome of an audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Entry is one immutable audit record. PrevHash and Hash are assigned by
// the log's writer; callers fill the rest.
type Entry struct {
	ID        string          `json:"id"`
	ActorID   string          `json:"actor_id"`
	ActorType ActorType       `json:"actor_type"`
	IP        string          `json:"ip,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Action    Action          `json:"action"`
	Outcome   Outcome         `json:"outcome"`
	Resource  string          `json:"resource,omitempty"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	Timestamp time.Time       `json:"ts"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// hashPayload is the canonical byte representation of an entry. Field
// order is fixed by struct declaration, timestamps are nanosecond
// integers, and the previous hash is part of the payload, so the digest
// is stable across processes.
type hashPayload struct {
	ID        string          `json:"id"`
	ActorID   string          `json:"actor_id"`
	ActorType ActorType       `json:"actor_type"`
	IP        string          `json:"ip"`
	UserAgent string          `json:"user_agent"`
	Action    Action          `json:"action"`
	Outcome   Outcome         `json:"outcome"`
	Resource  string          `json:"resource"`
	Before    json.RawMessage `json:"before"`
	After     json.RawMessage `json:"after"`
	TS        int64           `json:"ts"`
	PrevHash  string          `json:"prev_hash"`
}

// ComputeHash returns the hex SHA-256 chain hash for e linked after
// prev. e.Hash is ignored; e.PrevHash is not consulted, prev is.
func ComputeHash(e Entry, prev string) string {
	payload := hashPayload{
		ID:        e.ID,
		ActorID:   e.ActorID,
		ActorType: e.ActorType,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Action:    e.Action,
		Outcome:   e.Outcome,
		Resource:  e.Resource,
		Before:    e.Before,
		After:     e.After,
		TS:        e.Timestamp.UnixNano(),
		PrevHash:  prev,
	}
	// Marshal of a struct with fixed fields cannot fail.
	canonical, _ := json.Marshal(payload)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Verify replays the chain from its first entry. entries[0].PrevHash
// anchors the chain (empty for a fresh log, or the tail hash of the
// preceding batch). It returns the index of the first entry whose
// linkage or hash does not check out, or -1 with a nil error when the
// whole chain is intact.
func Verify(entries []Entry) (int, error) {
	prev := ""
	if len(entries) > 0 {
		prev = entries[0].PrevHash
	}
	for i, e := range entries {
		if e.PrevHash != prev {
			return i, fmt.Errorf("audit: entry %d prev_hash mismatch", i)
		}
		if ComputeHash(e, prev) != e.Hash {
			return i, fmt.Errorf("audit: entry %d hash mismatch", i)
		}
		prev = e.Hash
	}
	return -1, nil
}
