package governance

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/ruteri/tee-agent-registry/interfaces"
)

// orderedSet keeps unique elements in insertion order.
type orderedSet[T comparable] struct {
	items []T
	index map[T]struct{}
}

func newOrderedSet[T comparable]() *orderedSet[T] {
	return &orderedSet[T]{index: make(map[T]struct{})}
}

func (s *orderedSet[T]) add(v T) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

func (s *orderedSet[T]) remove(v T) bool {
	if _, ok := s.index[v]; !ok {
		return false
	}
	delete(s.index, v)
	if i := slices.Index(s.items, v); i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
	}
	return true
}

func (s *orderedSet[T]) contains(v T) bool {
	_, ok := s.index[v]
	return ok
}

func (s *orderedSet[T]) len() int {
	return len(s.items)
}

// page returns items[offset:offset+limit]; limit <= 0 means no limit.
func (s *orderedSet[T]) page(offset, limit int) []T {
	return paginate(s.items, offset, limit)
}

func (s *orderedSet[T]) clone() *orderedSet[T] {
	c := &orderedSet[T]{
		items: slices.Clone(s.items),
		index: make(map[T]struct{}, len(s.index)),
	}
	for k := range s.index {
		c.index[k] = struct{}{}
	}
	return c
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 || offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return slices.Clone(items[offset:end])
}

// state is the complete registry state. It is only mutated through a clone
// that replaces the live state once persisted.
type state struct {
	owner               interfaces.AccountID
	signerEndpoint      string
	requiresAttestation bool
	expirationDuration  time.Duration

	measurements *orderedSet[interfaces.MeasurementBundle]
	platformIDs  *orderedSet[interfaces.PlatformID]
	agentOrder   *orderedSet[interfaces.AccountID]
	agents       map[interfaces.AccountID]interfaces.AgentRecord
	whitelist    *orderedSet[interfaces.AccountID]
}

func newState(cfg Config) *state {
	return &state{
		owner:               cfg.Owner,
		signerEndpoint:      cfg.SignerEndpoint,
		requiresAttestation: cfg.RequiresAttestation,
		expirationDuration:  cfg.ExpirationDuration,
		measurements:        newOrderedSet[interfaces.MeasurementBundle](),
		platformIDs:         newOrderedSet[interfaces.PlatformID](),
		agentOrder:          newOrderedSet[interfaces.AccountID](),
		agents:              make(map[interfaces.AccountID]interfaces.AgentRecord),
		whitelist:           newOrderedSet[interfaces.AccountID](),
	}
}

func (s *state) clone() *state {
	agents := make(map[interfaces.AccountID]interfaces.AgentRecord, len(s.agents))
	for k, v := range s.agents {
		agents[k] = v
	}
	return &state{
		owner:               s.owner,
		signerEndpoint:      s.signerEndpoint,
		requiresAttestation: s.requiresAttestation,
		expirationDuration:  s.expirationDuration,
		measurements:        s.measurements.clone(),
		platformIDs:         s.platformIDs.clone(),
		agentOrder:          s.agentOrder.clone(),
		agents:              agents,
		whitelist:           s.whitelist.clone(),
	}
}

func (s *state) putAgent(account interfaces.AccountID, record interfaces.AgentRecord) {
	s.agentOrder.add(account)
	s.agents[account] = record
}

func (s *state) deleteAgent(account interfaces.AccountID) {
	s.agentOrder.remove(account)
	delete(s.agents, account)
}

// approvals copies the approved sets for a verifier.
func (s *state) approvals() interfaces.ApprovalSnapshot {
	snap := interfaces.ApprovalSnapshot{
		Measurements: make(map[interfaces.MeasurementBundle]struct{}, s.measurements.len()),
		PlatformIDs:  make(map[interfaces.PlatformID]struct{}, s.platformIDs.len()),
	}
	for _, m := range s.measurements.items {
		snap.Measurements[m] = struct{}{}
	}
	for _, p := range s.platformIDs.items {
		snap.PlatformIDs[p] = struct{}{}
	}
	return snap
}

// removalReasons evaluates every validity condition of record at now and
// returns all that fail.
func (s *state) removalReasons(account interfaces.AccountID, record interfaces.AgentRecord, now time.Time) []interfaces.RemovalReason {
	var reasons []interfaces.RemovalReason
	if record.Expired(now) {
		reasons = append(reasons, interfaces.ReasonExpiredAttestation)
	}
	if !s.measurements.contains(record.Measurements) {
		reasons = append(reasons, interfaces.ReasonInvalidMeasurements)
	}
	if !s.platformIDs.contains(record.PlatformID) {
		reasons = append(reasons, interfaces.ReasonInvalidPlatformID)
	}
	if !s.requiresAttestation && !s.whitelist.contains(account) {
		reasons = append(reasons, interfaces.ReasonNotWhitelistedForLocal)
	}
	return reasons
}

func (s *state) view(account interfaces.AccountID, record interfaces.AgentRecord, now time.Time) interfaces.AgentView {
	measurementsApproved := s.measurements.contains(record.Measurements)
	platformIDApproved := s.platformIDs.contains(record.PlatformID)
	notExpired := !record.Expired(now)
	return interfaces.AgentView{
		Account:              account,
		Measurements:         record.Measurements.Hex(),
		MeasurementsApproved: measurementsApproved,
		PlatformID:           record.PlatformID,
		PlatformIDApproved:   platformIDApproved,
		ValidUntil:           record.ValidUntil,
		NotExpired:           notExpired,
		IsValid:              measurementsApproved && platformIDApproved && notExpired,
	}
}

func (s *state) info() interfaces.ContractInfo {
	return interfaces.ContractInfo{
		Owner:               s.owner,
		SignerEndpoint:      s.signerEndpoint,
		RequiresAttestation: s.requiresAttestation,
		ExpirationDuration:  interfaces.Duration(s.expirationDuration),
	}
}

// snapshot is the persisted form of state.
type snapshot struct {
	Owner               interfaces.AccountID           `json:"owner"`
	SignerEndpoint      string                         `json:"signer_endpoint"`
	RequiresAttestation bool                           `json:"requires_attestation"`
	ExpirationDuration  interfaces.Duration            `json:"expiration_duration"`
	Measurements        []interfaces.MeasurementBundle `json:"approved_measurements"`
	PlatformIDs         []interfaces.PlatformID        `json:"approved_platform_ids"`
	Agents              []snapshotAgent                `json:"agents"`
	LocalWhitelist      []interfaces.AccountID         `json:"local_whitelist"`
}

type snapshotAgent struct {
	Account interfaces.AccountID   `json:"account"`
	Record  interfaces.AgentRecord `json:"record"`
}

func (s *state) marshal() ([]byte, error) {
	snap := snapshot{
		Owner:               s.owner,
		SignerEndpoint:      s.signerEndpoint,
		RequiresAttestation: s.requiresAttestation,
		ExpirationDuration:  interfaces.Duration(s.expirationDuration),
		Measurements:        s.measurements.items,
		PlatformIDs:         s.platformIDs.items,
		Agents:              make([]snapshotAgent, 0, s.agentOrder.len()),
		LocalWhitelist:      s.whitelist.items,
	}
	for _, account := range s.agentOrder.items {
		snap.Agents = append(snap.Agents, snapshotAgent{Account: account, Record: s.agents[account]})
	}
	return json.Marshal(snap)
}

func unmarshalState(data []byte) (*state, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode registry state: %w", err)
	}

	s := newState(Config{
		Owner:               snap.Owner,
		SignerEndpoint:      snap.SignerEndpoint,
		RequiresAttestation: snap.RequiresAttestation,
		ExpirationDuration:  time.Duration(snap.ExpirationDuration),
	})
	for _, m := range snap.Measurements {
		s.measurements.add(m)
	}
	for _, p := range snap.PlatformIDs {
		s.platformIDs.add(p)
	}
	for _, a := range snap.Agents {
		s.putAgent(a.Account, a.Record)
	}
	for _, a := range snap.LocalWhitelist {
		s.whitelist.add(a)
	}
	return s, nil
}
