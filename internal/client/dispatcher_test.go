package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchmand/internal/client/mocks"
	"watchmand/internal/protocol"
)

func TestDispatchRelaysRawBytes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// Whatever the daemon produced comes back verbatim, pretty whitespace
	// and all.
	raw := []byte("{\n    \"error\": \"watchman::CommandValidationError: failed to validate command: unknown command unknown-command\"\n}\n")

	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().
		RoundTrip(gomock.Any(), gomock.AssignableToTypeOf(&protocol.Request{})).
		DoAndReturn(func(_ context.Context, req *protocol.Request) ([]byte, error) {
			assert.Equal(t, protocol.ProtocolVersion, req.Protocol)
			assert.Equal(t, "unknown-command", req.Command)
			assert.True(t, req.Pretty)
			assert.NotEmpty(t, req.ID)
			return raw, nil
		})

	d := NewDispatcher(transport)
	got, err := d.Dispatch(context.Background(), "unknown-command", nil, true)
	require.NoError(t, err, "an in-band daemon error is not a dispatch failure")
	assert.Equal(t, raw, got, "response bytes must pass through unmodified")
}

func TestDispatchCommandNameTravelsVerbatim(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	for _, name := range []string{"", " spaced ", "MiXeD-Case"} {
		transport := mocks.NewMockTransport(ctrl)
		transport.EXPECT().
			RoundTrip(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *protocol.Request) ([]byte, error) {
				assert.Equal(t, name, req.Command, "no normalization on the way out")
				return []byte(`{}`), nil
			})

		_, err := NewDispatcher(transport).Dispatch(context.Background(), name, nil, false)
		require.NoError(t, err)
	}
}

func TestDispatchPropagatesTransportFault(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().
		RoundTrip(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: dial /tmp/w.sock: no such file", ErrDaemonUnreachable))

	_, err := NewDispatcher(transport).Dispatch(context.Background(), "version", nil, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDaemonUnreachable))
}

func TestQueryDecodesResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().
		RoundTrip(gomock.Any(), gomock.Any()).
		Return([]byte(`{"version":"0.1.0","pid":99}`), nil)

	resp, err := NewDispatcher(transport).Query(context.Background(), "get-pid", nil)
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", resp.Version)
	assert.Equal(t, float64(99), resp.Fields["pid"])
	assert.False(t, resp.IsError())
}

func TestQueryRejectsGarbageOutput(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().
		RoundTrip(gomock.Any(), gomock.Any()).
		Return([]byte("not json"), nil)

	_, err := NewDispatcher(transport).Query(context.Background(), "version", nil)
	assert.Error(t, err)
}
