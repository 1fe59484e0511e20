// Package types holds the wire shapes shared between the ledger and its
// consumers.
package types

// Event is the flattened form of a typed farm event. Amounts and addresses are
// rendered as strings so the record can be stored or served without the
// originating Go type.
type Event struct {
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}
