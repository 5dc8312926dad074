// Package schema wraps gojsonschema into the narrow validators the peer
// directory and transport layers consume: header contract, peer record
// shape, and dapp message envelopes.
package schema

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Validator validates arbitrary data against a fixed JSON schema.
type Validator struct {
	schema *gojsonschema.Schema
	name   string
}

// New compiles a validator from a JSON schema document.
func New(name, document string) (*Validator, error) {
	loader := gojsonschema.NewStringLoader(document)
	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, errors.Wrapf(err, "schema: compile %s", name)
	}
	return &Validator{schema: compiled, name: name}, nil
}

// Validate checks data (any JSON-marshalable value) against the schema and
// returns the first validation error message, if any.
func (v *Validator) Validate(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "schema: marshal %s", v.name)
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrapf(err, "schema: validate %s", v.name)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) == 0 {
			return errors.Errorf("schema: %s is invalid", v.name)
		}
		return errors.New(errs[0].String())
	}
	return nil
}

// HeaderSchema is the {port, os, version, nethash, ip} contract enforced on
// every inbound request and every outbound response.
const HeaderSchema = `{
  "type": "object",
  "properties": {
    "ip": {"type": "string"},
    "port": {"type": "integer", "minimum": 1, "maximum": 65535},
    "os": {"type": "string", "minLength": 1, "maxLength": 64},
    "version": {"type": "string", "minLength": 5, "maxLength": 12},
    "nethash": {"type": "string", "minLength": 1}
  },
  "required": ["port", "os", "version", "nethash", "ip"]
}`

// PeerSchema is the shape a peer record must satisfy to be accepted during a
// refresh cycle.
const PeerSchema = `{
  "type": "object",
  "properties": {
    "ip": {"type": "string"},
    "port": {"type": "integer"},
    "state": {"type": "integer"}
  },
  "required": ["ip", "port", "state"]
}`

// PeerListSchema validates the /peer/list response shape: an array of
// unique peer records.
const PeerListSchema = `{
  "type": "array",
  "uniqueItems": true,
  "items": ` + PeerSchema + `
}`

// DappMessageSchema is the {dappid, timestamp, hash} envelope required on
// /peer/dapp/message and /peer/dapp/request.
const DappMessageSchema = `{
  "type": "object",
  "properties": {
    "dappid": {"type": "string", "minLength": 1},
    "timestamp": {"type": "integer"},
    "hash": {"type": "string", "minLength": 1}
  },
  "required": ["dappid", "timestamp", "hash"]
}`

// Bag bundles the compiled validators the rest of the module consumes as
// capability interfaces (peers.SchemaValidator, transport.SchemaValidator).
type Bag struct {
	Header      *Validator
	Peer        *Validator
	PeerList    *Validator
	DappMessage *Validator
}

// NewBag compiles every schema used across the module.
func NewBag() (*Bag, error) {
	header, err := New("header", HeaderSchema)
	if err != nil {
		return nil, err
	}
	peer, err := New("peer", PeerSchema)
	if err != nil {
		return nil, err
	}
	peerList, err := New("peer-list", PeerListSchema)
	if err != nil {
		return nil, err
	}
	dappMessage, err := New("dapp-message", DappMessageSchema)
	if err != nil {
		return nil, err
	}
	return &Bag{Header: header, Peer: peer, PeerList: peerList, DappMessage: dappMessage}, nil
}

// ValidatePeer implements peers.SchemaValidator.
func (b *Bag) ValidatePeer(data any) error {
	return b.Peer.Validate(data)
}

// ValidateHeader implements transport.SchemaValidator.
func (b *Bag) ValidateHeader(data any) error {
	return b.Header.Validate(data)
}

// ValidatePeerList validates a /peer/list response body.
func (b *Bag) ValidatePeerList(data any) error {
	return b.PeerList.Validate(data)
}

// ValidateDappMessage validates a /peer/dapp/message or /peer/dapp/request body.
func (b *Bag) ValidateDappMessage(data any) error {
	return b.DappMessage.Validate(data)
}
