package api

import (
	"context"
	"time"

	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the Registry interface
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Register(ctx context.Context, caller interfaces.AccountID, att interfaces.Attestation) (interfaces.AgentView, error) {
	args := m.Called(ctx, caller, att)
	return args.Get(0).(interfaces.AgentView), args.Error(1)
}

func (m *MockRegistry) RequestSignature(ctx context.Context, caller interfaces.AccountID, path, payload, keyType string) (string, error) {
	args := m.Called(ctx, caller, path, payload, keyType)
	return args.String(0), args.Error(1)
}

func (m *MockRegistry) GetAgent(account interfaces.AccountID) (interfaces.AgentView, bool) {
	args := m.Called(account)
	return args.Get(0).(interfaces.AgentView), args.Bool(1)
}

func (m *MockRegistry) ListAgents(offset, limit int) []interfaces.AgentView {
	args := m.Called(offset, limit)
	return args.Get(0).([]interfaces.AgentView)
}

func (m *MockRegistry) ListMeasurements(offset, limit int) []interfaces.MeasurementBundle {
	args := m.Called(offset, limit)
	return args.Get(0).([]interfaces.MeasurementBundle)
}

func (m *MockRegistry) ListPlatformIDs(offset, limit int) []interfaces.PlatformID {
	args := m.Called(offset, limit)
	return args.Get(0).([]interfaces.PlatformID)
}

func (m *MockRegistry) ListWhitelistedAgentsForLocal() ([]interfaces.AccountID, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.AccountID), args.Error(1)
}

func (m *MockRegistry) ContractInfo() interfaces.ContractInfo {
	args := m.Called()
	return args.Get(0).(interfaces.ContractInfo)
}

func (m *MockRegistry) ApproveMeasurements(ctx context.Context, caller interfaces.AccountID, bundle interfaces.MeasurementBundle) error {
	return m.Called(ctx, caller, bundle).Error(0)
}

func (m *MockRegistry) RemoveMeasurements(ctx context.Context, caller interfaces.AccountID, bundle interfaces.MeasurementBundle) error {
	return m.Called(ctx, caller, bundle).Error(0)
}

func (m *MockRegistry) ApprovePlatformIDs(ctx context.Context, caller interfaces.AccountID, ids []interfaces.PlatformID) error {
	return m.Called(ctx, caller, ids).Error(0)
}

func (m *MockRegistry) RemovePlatformIDs(ctx context.Context, caller interfaces.AccountID, ids []interfaces.PlatformID) error {
	return m.Called(ctx, caller, ids).Error(0)
}

func (m *MockRegistry) RemoveAgent(ctx context.Context, caller, account interfaces.AccountID) error {
	return m.Called(ctx, caller, account).Error(0)
}

func (m *MockRegistry) UpdateOwner(ctx context.Context, caller, newOwner interfaces.AccountID) error {
	return m.Called(ctx, caller, newOwner).Error(0)
}

func (m *MockRegistry) UpdateSignerEndpoint(ctx context.Context, caller interfaces.AccountID, endpoint string) error {
	return m.Called(ctx, caller, endpoint).Error(0)
}

func (m *MockRegistry) UpdateExpirationDuration(ctx context.Context, caller interfaces.AccountID, d time.Duration) error {
	return m.Called(ctx, caller, d).Error(0)
}

func (m *MockRegistry) WhitelistAgentForLocal(ctx context.Context, caller, account interfaces.AccountID) error {
	return m.Called(ctx, caller, account).Error(0)
}

func (m *MockRegistry) RemoveAgentFromWhitelistForLocal(ctx context.Context, caller, account interfaces.AccountID) error {
	return m.Called(ctx, caller, account).Error(0)
}
