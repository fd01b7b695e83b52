package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

type staticFallback struct {
	token types.Token
	ok    bool
	calls int
}

func (s *staticFallback) Lookup(context.Context, types.Identity) (types.Token, bool) {
	s.calls++
	return s.token, s.ok
}

func TestNewFallback(t *testing.T) {
	keyring.MockInit()

	tests := []struct {
		name    string
		config  *FallbackConfig
		want    interface{}
		wantErr bool
	}{
		{name: "nil config", config: nil, want: &FileFallback{}},
		{name: "default type", config: &FallbackConfig{}, want: &FileFallback{}},
		{name: "file", config: &FallbackConfig{Type: FallbackTypeFile, Dir: "/tmp/pwd"}, want: &FileFallback{}},
		{name: "keyring", config: &FallbackConfig{Type: FallbackTypeKeyring, KeyringService: "svc"}, want: &KeyringFallback{}},
		{name: "keyring without service", config: &FallbackConfig{Type: FallbackTypeKeyring}, wantErr: true},
		{name: "chain", config: &FallbackConfig{Type: FallbackTypeChain, KeyringService: "svc"}, want: &ChainFallback{}},
		{name: "none", config: &FallbackConfig{Type: FallbackTypeNone}, want: NoFallback{}},
		{name: "unknown", config: &FallbackConfig{Type: "vault"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback, err := NewFallback(tt.config, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, fallback)
		})
	}
}

func TestNewFallback_UnknownIsNotValid(t *testing.T) {
	_, err := NewFallback(&FallbackConfig{Type: "vault"}, nil)
	assert.True(t, errors.Is(err, errors.NotValid), "got %v", err)
}

func TestChainFallback(t *testing.T) {
	ctx := context.Background()
	token := types.NewToken("second", time.Now().Add(time.Hour))

	first := &staticFallback{}
	second := &staticFallback{token: token, ok: true}
	third := &staticFallback{token: types.NewToken("third", time.Now()), ok: true}

	chain := NewChainFallback(first, second, third)
	got, ok := chain.Lookup(ctx, testIdentity)
	require.True(t, ok)
	assert.Equal(t, "second", got.Secret())
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, third.calls, "sources after the first hit must not be consulted")

	_, ok = NewChainFallback(first).Lookup(ctx, testIdentity)
	assert.False(t, ok)
}

func TestNoFallback(t *testing.T) {
	_, ok := NoFallback{}.Lookup(context.Background(), testIdentity)
	assert.False(t, ok)
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{text: "", want: nil},
		{text: "one", want: []string{"one"}},
		{text: "one\n", want: []string{"one"}},
		{text: "one\r\n", want: []string{"one"}},
		{text: "one\rtwo", want: []string{"one", "two"}},
		{text: "one\r\ntwo", want: []string{"one", "two"}},
		{text: "one\n\rtwo", want: []string{"one", "", "two"}},
		{text: "one\vtwo\x1ethree", want: []string{"one", "two", "three"}},
		{text: "one\u0085two\u2029", want: []string{"one", "two"}},
		{text: "\n", want: []string{""}},
		{text: "one\n\n", want: []string{"one", ""}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.text), func(t *testing.T) {
			assert.Equal(t, tt.want, splitLines(tt.text))
		})
	}
}

func TestParsePassword(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		want   string
		wantOK bool
	}{
		{name: "single line", data: "secret", want: "secret", wantOK: true},
		{name: "trailing crlf", data: "secret\r\n", want: "secret", wantOK: true},
		{name: "lone carriage return", data: "first\rsecond"},
		{name: "vertical tab", data: "first\vsecond"},
		{name: "empty line", data: "\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parsePassword("test", []byte(tt.data))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
