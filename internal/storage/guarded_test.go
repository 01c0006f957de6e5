package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/p2p/pkg/types"
)

type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) QueryItems(ctx context.Context, qv types.QueryVars) (*ItemQuery, error) {
	args := m.Called(ctx, qv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ItemQuery), args.Error(1)
}

func (m *mockQuerier) QueryUsers(ctx context.Context, qv types.QueryVars) (*UserQuery, error) {
	args := m.Called(ctx, qv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserQuery), args.Error(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuardedQuerier_PassesThrough(t *testing.T) {
	m := &mockQuerier{}
	items := &ItemQuery{Items: []*types.Item{{ID: 1}}}
	users := &UserQuery{Results: []*types.User{{ID: 2}}, Total: 1}
	m.On("QueryItems", mock.Anything, types.QueryVars{"post_type": "post"}).Return(items, nil)
	m.On("QueryUsers", mock.Anything, mock.Anything).Return(users, nil)

	g := NewGuardedQuerier(m, BreakerConfig{}, quietLogger())
	ctx := context.Background()

	gotItems, err := g.QueryItems(ctx, types.QueryVars{"post_type": "post"})
	require.NoError(t, err)
	assert.Same(t, items, gotItems)

	gotUsers, err := g.QueryUsers(ctx, nil)
	require.NoError(t, err)
	assert.Same(t, users, gotUsers)

	assert.Equal(t, "closed", g.State())
	m.AssertExpectations(t)
}

func TestGuardedQuerier_OpensAfterFailures(t *testing.T) {
	m := &mockQuerier{}
	m.On("QueryItems", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	g := NewGuardedQuerier(m, BreakerConfig{MaxFailures: 2, Timeout: time.Minute}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.QueryItems(ctx, nil)
		assert.EqualError(t, err, "connection refused")
	}
	assert.Equal(t, "open", g.State())

	_, err := g.QueryItems(ctx, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = g.QueryUsers(ctx, nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	m.AssertNumberOfCalls(t, "QueryItems", 2)
}

func TestGuardedQuerier_InputErrorsDoNotTrip(t *testing.T) {
	m := &mockQuerier{}
	m.On("QueryItems", mock.Anything, mock.Anything).Return(nil, ErrInvalidInput)
	m.On("QueryUsers", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	g := NewGuardedQuerier(m, BreakerConfig{MaxFailures: 1}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.QueryItems(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = g.QueryUsers(ctx, nil)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", g.State())
}

func TestBreakerConfig_Defaults(t *testing.T) {
	var cfg BreakerConfig
	cfg.normalize()
	assert.Equal(t, uint32(5), cfg.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, uint32(1), cfg.HalfOpenMaxRequests)
}
