package signer

import (
	"context"

	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockSigner mocks the Signer interface
type MockSigner struct {
	mock.Mock
}

// Sign mocks the Sign method
func (m *MockSigner) Sign(ctx context.Context, req interfaces.SignatureRequest) (*interfaces.SignatureResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.SignatureResponse), args.Error(1)
}

// MockDispatcher mocks the SignatureDispatcher interface
type MockDispatcher struct {
	mock.Mock
}

// Dispatch mocks the Dispatch method
func (m *MockDispatcher) Dispatch(ctx context.Context, req interfaces.SignatureRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
