package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/avatar-broker/internal/vastai"
)

// mockMarketplace is a simple mock for testing VastAIAdapter.
type mockMarketplace struct {
	mock.Mock
}

func (m *mockMarketplace) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockMarketplace) FindCheapestOffer(ctx context.Context) (vastai.Offer, error) {
	args := m.Called(ctx)
	return args.Get(0).(vastai.Offer), args.Error(1)
}

func (m *mockMarketplace) CreateInstance(ctx context.Context, offerID int64, onStart string) (int64, error) {
	args := m.Called(ctx, offerID, onStart)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMarketplace) WaitInstanceReady(ctx context.Context, instanceID int64) (vastai.Instance, error) {
	args := m.Called(ctx, instanceID)
	return args.Get(0).(vastai.Instance), args.Error(1)
}

func (m *mockMarketplace) GetInstance(ctx context.Context, instanceID int64) (vastai.Instance, error) {
	args := m.Called(ctx, instanceID)
	return args.Get(0).(vastai.Instance), args.Error(1)
}

func (m *mockMarketplace) DestroyInstance(ctx context.Context, instanceID int64) bool {
	args := m.Called(ctx, instanceID)
	return args.Bool(0)
}

func TestVastAIAdapter_Submit_DispatchUnsupported(t *testing.T) {
	ctx := context.Background()
	mp := &mockMarketplace{}
	adapter := NewVastAIAdapter(mp)

	mp.On("Configured").Return(true)
	mp.On("FindCheapestOffer", ctx).Return(vastai.Offer{ID: 42, PricePerHr: 0.8}, nil)
	mp.On("CreateInstance", ctx, int64(42), mock.Anything).Return(int64(777), nil)
	mp.On("WaitInstanceReady", ctx, int64(777)).
		Return(vastai.Instance{ID: 777, ActualStatus: "running", SSHHost: "h", SSHPort: 22}, nil)
	mp.On("DestroyInstance", mock.Anything, int64(777)).Return(true)

	_, err := adapter.Submit(ctx, JobSpec{ImageData: []byte("img"), AudioData: []byte("wav")})
	require.ErrorIs(t, err, ErrNotImplemented)

	// The rented instance must be destroyed exactly once even though
	// dispatch failed.
	mp.AssertNumberOfCalls(t, "DestroyInstance", 1)
	mp.AssertExpectations(t)
}

func TestVastAIAdapter_Submit_DestroysOnReadinessFailure(t *testing.T) {
	ctx := context.Background()
	mp := &mockMarketplace{}
	adapter := NewVastAIAdapter(mp)

	mp.On("Configured").Return(true)
	mp.On("FindCheapestOffer", ctx).Return(vastai.Offer{ID: 42}, nil)
	mp.On("CreateInstance", ctx, int64(42), mock.Anything).Return(int64(777), nil)
	mp.On("WaitInstanceReady", ctx, int64(777)).
		Return(vastai.Instance{}, vastai.ErrInstanceNotReady)
	mp.On("DestroyInstance", mock.Anything, int64(777)).Return(true)

	_, err := adapter.Submit(ctx, JobSpec{})
	require.ErrorIs(t, err, ErrSubmitFailed)
	mp.AssertNumberOfCalls(t, "DestroyInstance", 1)
}

func TestVastAIAdapter_Submit_NoOffers(t *testing.T) {
	ctx := context.Background()
	mp := &mockMarketplace{}
	adapter := NewVastAIAdapter(mp)

	mp.On("Configured").Return(true)
	mp.On("FindCheapestOffer", ctx).Return(vastai.Offer{}, vastai.ErrNoOffers)

	_, err := adapter.Submit(ctx, JobSpec{})
	require.ErrorIs(t, err, ErrSubmitFailed)

	// Nothing was rented, so nothing to destroy.
	mp.AssertNotCalled(t, "DestroyInstance", mock.Anything, mock.Anything)
}

func TestVastAIAdapter_Submit_NotConfigured(t *testing.T) {
	mp := &mockMarketplace{}
	mp.On("Configured").Return(false)
	adapter := NewVastAIAdapter(mp)

	_, err := adapter.Submit(context.Background(), JobSpec{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestVastAIAdapter_CheckStatus(t *testing.T) {
	ctx := context.Background()
	mp := &mockMarketplace{}
	adapter := NewVastAIAdapter(mp)

	mp.On("GetInstance", ctx, int64(777)).
		Return(vastai.Instance{ID: 777, ActualStatus: "running", SSHHost: "h", SSHPort: 22}, nil).Once()
	raw, err := adapter.CheckStatus(ctx, "777")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, raw.Status)

	mp.On("GetInstance", ctx, int64(777)).
		Return(vastai.Instance{ID: 777, ActualStatus: "loading"}, nil).Once()
	raw, err = adapter.CheckStatus(ctx, "777")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, raw.Status)
}

func TestVastAIAdapter_CheckStatus_BadHandle(t *testing.T) {
	adapter := NewVastAIAdapter(&mockMarketplace{})
	_, err := adapter.CheckStatus(context.Background(), "not-a-number")
	require.Error(t, err)
}

func TestVastAIAdapter_CheckStatus_TransportError(t *testing.T) {
	ctx := context.Background()
	mp := &mockMarketplace{}
	adapter := NewVastAIAdapter(mp)

	mp.On("GetInstance", ctx, int64(777)).
		Return(vastai.Instance{}, errors.New("api down"))

	_, err := adapter.CheckStatus(ctx, "777")
	require.Error(t, err)
}

func TestVastAIAdapter_Cancel(t *testing.T) {
	ctx := context.Background()
	mp := &mockMarketplace{}
	adapter := NewVastAIAdapter(mp)

	mp.On("DestroyInstance", ctx, int64(777)).Return(true)
	assert.True(t, adapter.Cancel(ctx, "777"))
	assert.False(t, adapter.Cancel(ctx, "garbage"))
}
