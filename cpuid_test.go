package main

import (
	"context"
	"os/exec"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func lookPathIn(found map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", exec.ErrNotFound
	}
}

func TestHostPlatform(t *testing.T) {
	tests := []struct {
		goos string
		env  map[string]string
		want string
	}{
		{"linux", nil, platformLinux},
		{"windows", nil, platformWindows},
		{"windows", map[string]string{"OSTYPE": "cygwin"}, platformCygwin},
		{"darwin", nil, platformDefault},
		{"freebsd", map[string]string{"OSTYPE": "cygwin"}, platformDefault},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hostPlatform(tt.goos, env(tt.env)), "%s %v", tt.goos, tt.env)
	}
}

func TestNewIdentifier(t *testing.T) {
	found := lookPathIn(map[string]string{"pcm-core": "/usr/local/sbin/pcm-core", "cpu-sig": "/opt/bin/cpu-sig"})

	tests := []struct {
		name     string
		cfg      identifierConfig
		platform string
		want     identifier
	}{
		{"linux", identifierConfig{}, platformLinux, &helperIdentifier{argv: []string{"/usr/local/sbin/pcm-core", "-c"}}},
		{"windows", identifierConfig{}, platformWindows, &helperIdentifier{argv: []string{"cmd", "/C", "pcm-core.exe", "-c"}}},
		{"cygwin", identifierConfig{}, platformCygwin, &helperIdentifier{argv: []string{"sh", "-c", "./pcm-core.exe -c"}}},
		{"default", identifierConfig{}, platformDefault, &helperIdentifier{argv: []string{"sh", "-c", "../build/bin/pcm-core -c"}}},
		{"unknown platform", identifierConfig{}, "plan9", &helperIdentifier{argv: []string{"sh", "-c", "../build/bin/pcm-core -c"}}},
		{"strategy override", identifierConfig{Strategy: platformDefault}, platformLinux, &helperIdentifier{argv: []string{"sh", "-c", "../build/bin/pcm-core -c"}}},
		{"command override", identifierConfig{Strategy: "builtin", Command: []string{"cpu-sig", "--short"}}, platformLinux, &helperIdentifier{argv: []string{"/opt/bin/cpu-sig", "--short"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newIdentifier(tt.cfg, tt.platform, found)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := newIdentifier(identifierConfig{Strategy: "builtin"}, platformLinux, found)
	require.NoError(t, err)
	assert.IsType(t, &builtinIdentifier{}, got)
}

func TestNewIdentifierErrors(t *testing.T) {
	none := lookPathIn(nil)

	_, err := newIdentifier(identifierConfig{}, platformLinux, none)
	var resErr *resolutionError
	require.True(t, errors.As(err, &resErr), "got %v", err)
	assert.Equal(t, "Could not find pcm-core executable!", resErr.Error())

	_, err = newIdentifier(identifierConfig{Command: []string{"cpu-sig"}}, platformLinux, none)
	require.True(t, errors.As(err, &resErr), "got %v", err)

	_, err = newIdentifier(identifierConfig{Strategy: "nope"}, platformLinux, none)
	var argErr *argumentError
	require.True(t, errors.As(err, &argErr), "got %v", err)
}

func TestBuiltinIdentifier(t *testing.T) {
	tests := []struct {
		vendor        string
		family, model int
		want          string
	}{
		{"GenuineIntel", 6, 0x55, "GenuineIntel-6-55"},
		{"GenuineIntel", 6, 0x8F, "GenuineIntel-6-8F"},
		// pcm-core pads with a space, not a zero
		{"GenuineIntel", 6, 0xF, "GenuineIntel-6- F"},
		{"AuthenticAMD", 25, 0x11, "AuthenticAMD-25-11"},
	}
	for _, tt := range tests {
		b := &builtinIdentifier{read: func() (string, int, int) { return tt.vendor, tt.family, tt.model }}
		got, err := b.Identify(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	b := &builtinIdentifier{read: func() (string, int, int) { return "", 0, 0 }}
	_, err := b.Identify(context.Background())
	assert.Error(t, err)
}

func TestHelperIdentifier(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	tests := []struct {
		name    string
		script  string
		want    string
		wantErr bool
	}{
		{"signature", "echo GenuineIntel-6-55", "GenuineIntel-6-55", false},
		{"non-zero exit is tolerated", "echo GenuineIntel-6-3F; exit 3", "GenuineIntel-6-3F", false},
		{"stderr ignored", "echo noise >&2; printf 'GenuineIntel-6- F\\r\\n'", "GenuineIntel-6- F", false},
		{"no output", "exit 0", "", true},
		{"no output and failure", "exit 1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &helperIdentifier{argv: []string{"sh", "-c", tt.script}}
			got, err := h.Identify(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHelperIdentifierLaunchFailure(t *testing.T) {
	h := &helperIdentifier{argv: []string{"/nonexistent/pcm-core", "-c"}}
	_, err := h.Identify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run /nonexistent/pcm-core -c")
}
