package main

import (
	"encoding/csv"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	eventTypeCore    = "core"
	eventTypeOffcore = "offcore"
)

// mapEntry is one row of mapfile.csv.
type mapEntry struct {
	familyModel string // regexp matched against the CPU signature
	version     string
	filename    string // path under the perfmon base URL, leading "/"
	eventType   string // core, offcore, uncore, ...
	line        int    // 1-based CSV line, header is line 1
}

// parseMapFile reads mapfile.csv. The header row decides column positions;
// extra columns are ignored and short rows yield empty values.
func parseMapFile(r io.Reader) ([]mapEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("mapfile: empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "mapfile header")
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, want := range []string{"Family-model", "Filename", "EventType"} {
		if _, ok := cols[want]; !ok {
			return nil, errors.Errorf("mapfile: missing column %q", want)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var entries []mapEntry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "mapfile")
		}
		line, _ := cr.FieldPos(0)
		entries = append(entries, mapEntry{
			familyModel: field(rec, "Family-model"),
			version:     field(rec, "Version"),
			filename:    field(rec, "Filename"),
			eventType:   field(rec, "EventType"),
			line:        line,
		})
	}
	return entries, nil
}

// catalogPaths is the result of matching the map file against one CPU.
type catalogPaths struct {
	core    string
	offcore string
}

// resolveCatalog scans entries in file order. Every match overwrites the
// previous one of the same type, so the last matching row wins for core and
// for offcore independently. Every row's pattern is compiled, matched or not.
func resolveCatalog(entries []mapEntry, cpuID string, logger *slog.Logger) (catalogPaths, error) {
	var paths catalogPaths
	for _, e := range entries {
		re, err := regexp.Compile(e.familyModel)
		if err != nil {
			return catalogPaths{}, errors.Wrapf(err, "mapfile line %d: bad Family-model %q", e.line, e.familyModel)
		}
		if !re.MatchString(cpuID) {
			continue
		}
		switch e.eventType {
		case eventTypeCore:
			paths.core = e.filename
		case eventTypeOffcore:
			paths.offcore = e.filename
		}
		logger.Info("mapfile match",
			"family_model", e.familyModel,
			"version", e.version,
			"event_type", e.eventType,
			"filename", e.filename,
			"line", e.line)
	}
	return paths, nil
}
