package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
)

// identifier returns the host CPU signature matched against the map file,
// e.g. "GenuineIntel-6-55".
type identifier interface {
	Identify(ctx context.Context) (string, error)
}

// identifyStrategy is one way of obtaining the signature. When lookup is
// set it is resolved on PATH and run with argv as its arguments; otherwise
// argv is the full command line.
type identifyStrategy struct {
	lookup  string
	argv    []string
	builtin bool
}

const (
	platformCygwin  = "cygwin"
	platformWindows = "windows"
	platformLinux   = "linux"
	platformDefault = "default"
	strategyBuiltin = "builtin"
)

// identifyStrategies is keyed by platform. New platforms only need a row.
var identifyStrategies = map[string]identifyStrategy{
	platformCygwin:  {argv: []string{"sh", "-c", "./pcm-core.exe -c"}},
	platformWindows: {argv: []string{"cmd", "/C", "pcm-core.exe", "-c"}},
	platformLinux:   {lookup: "pcm-core", argv: []string{"-c"}},
	platformDefault: {argv: []string{"sh", "-c", "../build/bin/pcm-core -c"}},
	strategyBuiltin: {builtin: true},
}

// hostPlatform maps a GOOS value to a strategy key. A Windows binary started
// from a Cygwin shell sees OSTYPE=cygwin.
func hostPlatform(goos string, getenv func(string) string) string {
	switch goos {
	case "windows":
		if strings.HasPrefix(getenv("OSTYPE"), "cygwin") {
			return platformCygwin
		}
		return platformWindows
	case "linux":
		return platformLinux
	default:
		return platformDefault
	}
}

// newIdentifier picks the identifier for cfg on platform. A configured
// command wins over the strategy table; a configured strategy wins over the
// platform.
func newIdentifier(cfg identifierConfig, platform string, lookPath func(string) (string, error)) (identifier, error) {
	if len(cfg.Command) > 0 {
		path, err := lookPath(cfg.Command[0])
		if err != nil {
			return nil, newResolutionError("Could not find %s executable!", cfg.Command[0])
		}
		return &helperIdentifier{argv: append([]string{path}, cfg.Command[1:]...)}, nil
	}

	key := platform
	if cfg.Strategy != "" {
		key = cfg.Strategy
	}
	s, ok := identifyStrategies[key]
	if !ok {
		if cfg.Strategy != "" {
			return nil, &argumentError{err: errors.Errorf("unknown cpuid strategy %q", cfg.Strategy)}
		}
		s = identifyStrategies[platformDefault]
	}

	if s.builtin {
		return &builtinIdentifier{read: readCPUID}, nil
	}
	if s.lookup == "" {
		return &helperIdentifier{argv: s.argv}, nil
	}
	path, err := lookPath(s.lookup)
	if err != nil {
		return nil, newResolutionError("Could not find %s executable!", s.lookup)
	}
	return &helperIdentifier{argv: append([]string{path}, s.argv...)}, nil
}

// helperIdentifier runs pcm-core (or a stand-in) and takes its stdout.
type helperIdentifier struct {
	argv []string
}

func (h *helperIdentifier) Identify(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, h.argv[0], h.argv[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		// A non-zero exit is tolerated as long as something was printed.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", errors.Wrapf(err, "run %s", strings.Join(h.argv, " "))
		}
	}
	out := strings.TrimRight(stdout.String(), "\r\n")
	if strings.TrimSpace(out) == "" {
		return "", errors.Errorf("%s printed no CPU signature", strings.Join(h.argv, " "))
	}
	return out, nil
}

// builtinIdentifier formats the signature from CPUID the same way pcm-core
// does: vendor, decimal family, model as %2X.
type builtinIdentifier struct {
	read func() (vendor string, family, model int)
}

func (b *builtinIdentifier) Identify(context.Context) (string, error) {
	vendor, family, model := b.read()
	if vendor == "" {
		return "", errors.New("CPUID is not available on this host")
	}
	return fmt.Sprintf("%s-%d-%2X", vendor, family, model), nil
}

func readCPUID() (string, int, int) {
	return cpuid.CPU.VendorString, cpuid.CPU.Family, cpuid.CPU.Model
}
