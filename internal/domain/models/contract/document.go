package contract

import (
	"fmt"
	"time"
)

// Role identifies who a contract document is drafted for. The set is
// closed: unknown role strings are rejected at the boundary instead of
// being dispatched dynamically.
type Role string

const (
	RolePatient       Role = "patient"
	RoleProvider      Role = "provider"
	RoleInsurer       Role = "insurer"
	RolePharmacy      Role = "pharmacy"
	RoleAdministrator Role = "administrator"
)

// Roles lists every valid role in a stable order.
func Roles() []Role {
	return []Role{RolePatient, RoleProvider, RoleInsurer, RolePharmacy, RoleAdministrator}
}

// ParseRole validates a raw role string against the closed enumeration.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("role %q is not one of %v", s, Roles())
}

// State is a document's lifecycle state.
type State string

const (
	StateRequested State = "REQUESTED"
	StateDrafted   State = "DRAFTED"
	StateRendered  State = "RENDERED"
	StateSent      State = "SENT"
	StateSigned    State = "SIGNED"
	StateDeclined  State = "DECLINED"
	StateFailed    State = "FAILED"
	StateIndexed   State = "INDEXED"
)

// stateRank orders states along the happy path so that reconciliation
// can reject transitions that would move a document backwards. The
// terminal branches (DECLINED, FAILED) sit outside the ordering and
// are handled by IsTerminal.
var stateRank = map[State]int{
	StateRequested: 0,
	StateDrafted:   1,
	StateRendered:  2,
	StateSent:      3,
	StateSigned:    4,
	StateIndexed:   5,
}

// transitions is the allowed-transition table. FAILED is additionally
// reachable from any non-terminal state (administrative fail or
// unrecoverable adapter error) and is special-cased in CanTransition.
var transitions = map[State][]State{
	StateRequested: {StateDrafted},
	StateDrafted:   {StateRendered},
	StateRendered:  {StateSent},
	StateSent:      {StateSigned, StateDeclined},
	StateSigned:    {StateIndexed},
}

// IsTerminal reports whether no further transitions may leave s.
// SIGNED is not terminal: it still awaits comparison indexing.
func (s State) IsTerminal() bool {
	switch s {
	case StateDeclined, StateFailed, StateIndexed:
		return true
	}
	return false
}

// Rank returns the happy-path position of s, or -1 for the terminal
// branches that sit outside the ordering.
func (s State) Rank() int {
	if r, ok := stateRank[s]; ok {
		return r
	}
	return -1
}

// CanTransition reports whether moving from -> to is legal. No step on
// the happy path may be skipped; FAILED is reachable from any
// non-terminal state.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Document is the central entity: one generated contract and its
// progress through drafting, rendering, signature and indexing.
type Document struct {
	ID              string            `json:"id" db:"id"`
	Role            Role              `json:"role" db:"role"`
	TemplateID      string            `json:"template_id" db:"template_id"`
	Content         string            `json:"content,omitempty" db:"content"`
	RenderedBlobRef string            `json:"rendered_blob_ref,omitempty" db:"rendered_blob_ref"`
	EnvelopeID      string            `json:"envelope_id,omitempty" db:"envelope_id"`
	State           State             `json:"state" db:"state"`
	FailureReason   string            `json:"failure_reason,omitempty" db:"failure_reason"`
	Metadata        map[string]string `json:"metadata,omitempty" db:"metadata"`
	Version         int64             `json:"version" db:"version"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// Transition moves the document to the given state, enforcing the
// transition table. It mutates only State and UpdatedAt; callers set
// stage outputs (Content, RenderedBlobRef, EnvelopeID) alongside.
func (d *Document) Transition(to State) error {
	if !CanTransition(d.State, to) {
		return fmt.Errorf("illegal transition %s -> %s for document %s", d.State, to, d.ID)
	}
	d.State = to
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Signer is a participant in the e-signature flow for a document.
type Signer struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	ClientUserID string `json:"client_user_id"`
}
