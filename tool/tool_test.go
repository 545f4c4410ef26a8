package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/reconpipe/health"
	"github.com/zero-day-ai/reconpipe/toolerr"
)

type stubTool struct {
	Unimplemented
}

func TestUnimplemented_Fails(t *testing.T) {
	var tl Tool = stubTool{Unimplemented{ToolName: "stub", ToolDescription: "does nothing"}}

	out, err := tl.Invoke(context.Background(), map[string]any{})
	assert.Nil(t, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.Equal(t, toolerr.ErrCodeNotImplemented, toolerr.Code(err))
	assert.Equal(t, "stub", tl.Name())
	assert.Equal(t, "does nothing", tl.Description())
}

func TestNew_Validation(t *testing.T) {
	noop := func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "config cannot be nil"},
		{name: "missing name", cfg: NewConfig().SetInvokeFunc(noop), wantErr: "tool name is required"},
		{name: "missing func", cfg: NewConfig().SetName("x"), wantErr: "invoke function is required"},
		{name: "valid", cfg: NewConfig().SetName("x").SetInvokeFunc(noop)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, err := New(tt.cfg)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", tl.Name())
		})
	}
}

func TestHealth(t *testing.T) {
	plain := MustNew(NewConfig().SetName("plain").
		SetInvokeFunc(func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }))
	assert.True(t, Health(context.Background(), plain).IsHealthy())

	sick := MustNew(NewConfig().SetName("sick").
		SetInvokeFunc(func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }).
		SetHealthFunc(func(context.Context) health.Status { return health.Unhealthy("down", nil) }))
	assert.True(t, Health(context.Background(), sick).IsUnhealthy())

	assert.True(t, Health(context.Background(), stubTool{}).IsHealthy())
}

func TestObserve(t *testing.T) {
	echo := MustNew(NewConfig().SetName("echo").
		SetInvokeFunc(func(_ context.Context, in map[string]any) (map[string]any, error) {
			return map[string]any{"echo": in["msg"]}, nil
		}))
	broken := MustNew(NewConfig().SetName("broken").
		SetInvokeFunc(func(context.Context, map[string]any) (map[string]any, error) {
			return map[string]any{"partial": true}, errors.New("network down")
		}))

	ok := Observe(context.Background(), echo, map[string]any{"msg": "hi"})
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Error)
	assert.Equal(t, "echo", ok.Tool)
	assert.Equal(t, map[string]any{"echo": "hi"}, ok.Output)
	assert.False(t, ok.Timestamp.IsZero())

	bad := Observe(context.Background(), broken, nil)
	assert.False(t, bad.Success)
	assert.Equal(t, "network down", bad.Error)
	assert.Equal(t, map[string]any{"partial": true}, bad.Output)
	assert.Equal(t, map[string]any{}, bad.Input)

	rec := bad.Record()
	assert.Equal(t, "network down", rec["error"])
	assert.Equal(t, false, rec["success"])
	_, hasErr := ok.Record()["error"]
	assert.False(t, hasErr)
}

func TestSet(t *testing.T) {
	mk := func(name string) Tool {
		return MustNew(NewConfig().SetName(name).
			SetInvokeFunc(func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }))
	}

	s, err := NewSet(mk("b"), mk("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.Names())
	assert.Equal(t, 2, s.Len())

	_, ok := s.Get("a")
	assert.True(t, ok)
	_, ok = s.Get("zzz")
	assert.False(t, ok)

	_, err = NewSet(mk("a"), mk("a"))
	assert.Error(t, err)
}

func TestRequireString(t *testing.T) {
	in := map[string]any{"host": "example.com", "blank": "  ", "num": 3}

	s, err := RequireString("ping", in, "host")
	require.NoError(t, err)
	assert.Equal(t, "example.com", s)

	for _, key := range []string{"missing", "blank", "num"} {
		_, err := RequireString("ping", in, key)
		require.Error(t, err, key)
		assert.ErrorIs(t, err, toolerr.ErrInvalidInput)
	}

	assert.Equal(t, "def", OptionalString(in, "num", "def"))
	assert.Equal(t, "example.com", OptionalString(in, "host", "def"))
}
