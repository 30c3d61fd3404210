// Package audit records security-relevant session and write events to an
// append-only file of CBOR records.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit event.
type Kind string

const (
	KindCreateSession   Kind = "create_session"
	KindActivateSession Kind = "activate_session"
	KindCloseSession    Kind = "close_session"
	KindWrite           Kind = "write"
)

// Event is one audit record.
type Event struct {
	ID          string    `cbor:"1,keyasint" json:"id" yaml:"id"`
	Time        time.Time `cbor:"2,keyasint" json:"time" yaml:"time"`
	Kind        Kind      `cbor:"3,keyasint" json:"kind" yaml:"kind"`
	SessionID   string    `cbor:"4,keyasint,omitempty" json:"session_id,omitempty" yaml:"session_id,omitempty"`
	User        string    `cbor:"5,keyasint,omitempty" json:"user,omitempty" yaml:"user,omitempty"`
	ClientAddr  string    `cbor:"6,keyasint,omitempty" json:"client_addr,omitempty" yaml:"client_addr,omitempty"`
	NodeID      string    `cbor:"7,keyasint,omitempty" json:"node_id,omitempty" yaml:"node_id,omitempty"`
	AttributeID uint32    `cbor:"8,keyasint,omitempty" json:"attribute_id,omitempty" yaml:"attribute_id,omitempty"`
	Status      uint32    `cbor:"9,keyasint" json:"status" yaml:"status"`
	Detail      string    `cbor:"10,keyasint,omitempty" json:"detail,omitempty" yaml:"detail,omitempty"`
}

// NewEvent returns an event of kind stamped with a fresh id and t.
func NewEvent(kind Kind, t time.Time) Event {
	return Event{ID: uuid.NewString(), Time: t, Kind: kind}
}
