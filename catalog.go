package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
)

// ---------------------------------------------------------------------------
// Data model
// ---------------------------------------------------------------------------

// eventRecord is one perfmon event definition. The modifier fields hold the
// string "0" when the modifier is unused.
type eventRecord struct {
	Name        string
	Description string
	Code        string // one or more codes separated by ", "
	UMask       string
	MSRValue    string
	Invert      string
	AnyThread   string
	EdgeDetect  string
	CounterMask string

	hasName        bool
	hasDescription bool
	hasCode        bool
	hasUMask       bool
}

func (e *eventRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = eventRecord{
		MSRValue:    "0",
		Invert:      "0",
		AnyThread:   "0",
		EdgeDetect:  "0",
		CounterMask: "0",
	}
	fields := []struct {
		key     string
		dst     *string
		present *bool
	}{
		{"EventName", &e.Name, &e.hasName},
		{"BriefDescription", &e.Description, &e.hasDescription},
		{"EventCode", &e.Code, &e.hasCode},
		{"UMask", &e.UMask, &e.hasUMask},
		{"MSRValue", &e.MSRValue, nil},
		{"Invert", &e.Invert, nil},
		{"AnyThread", &e.AnyThread, nil},
		{"EdgeDetect", &e.EdgeDetect, nil},
		{"CounterMask", &e.CounterMask, nil},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			return errors.Wrapf(err, "field %s", f.key)
		}
		*f.dst = s
		if f.present != nil {
			*f.present = true
		}
	}
	return nil
}

// scalarString accepts a JSON string or number. Perfmon files use strings
// throughout, hand-written catalogs sometimes don't.
func scalarString(v json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return "", err
	}
	switch x := x.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	default:
		return "", errors.Errorf("want string or number, got %s", string(v))
	}
}

// validate rejects named events that cannot be turned into a counter string.
func (e *eventRecord) validate() error {
	if !e.hasName {
		return nil
	}
	if !e.hasCode {
		return errors.Errorf("event %q: missing EventCode", e.Name)
	}
	if !e.hasUMask {
		return errors.Errorf("event %q: missing UMask", e.Name)
	}
	return nil
}

// catalog is the loaded event store. Both lists are fixed once loading
// returns.
type catalog struct {
	core    []eventRecord
	offcore []eventRecord
}

// events returns core events followed by offcore events.
func (c *catalog) events() []eventRecord {
	all := make([]eventRecord, 0, len(c.core)+len(c.offcore))
	all = append(all, c.core...)
	return append(all, c.offcore...)
}

// ---------------------------------------------------------------------------
// Event documents
// ---------------------------------------------------------------------------

// eventDocument is one decoded event-definition file. tree keeps the generic
// JSON value so it can be written back out unchanged.
type eventDocument struct {
	records []eventRecord
	tree    any
}

// decodeDocument accepts the classic layout (a JSON array of events) and the
// current one ({"Header": ..., "Events": [...]}).
func decodeDocument(data []byte) (*eventDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, errors.Wrap(err, "decode events")
	}

	doc := &eventDocument{tree: tree}
	switch tree.(type) {
	case []any:
		if err := json.Unmarshal(data, &doc.records); err != nil {
			return nil, errors.Wrap(err, "decode events")
		}
	case map[string]any:
		var wrapped struct {
			Events *[]eventRecord `json:"Events"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, errors.Wrap(err, "decode events")
		}
		if wrapped.Events == nil {
			return nil, errors.New("decode events: object without an Events array")
		}
		doc.records = *wrapped.Events
	default:
		return nil, errors.Errorf("decode events: want array or object, got %T", tree)
	}

	for i := range doc.records {
		if err := doc.records[i].validate(); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// encodeDocument renders a document the way it is persisted: keys sorted,
// four-space indent, no HTML escaping, no trailing newline.
func encodeDocument(tree any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(tree); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// downloadName is the last path segment of a map file Filename.
func downloadName(filename string) string {
	return filename[strings.LastIndex(filename, "/")+1:]
}

// saveDocument writes doc into the working directory of fs under the last
// segment of filename and returns the name written.
func saveDocument(fs afero.Fs, filename string, doc *eventDocument, logger *slog.Logger) (string, error) {
	name := downloadName(filename)
	if name == "" {
		return "", errors.Errorf("cannot derive a file name from %q", filename)
	}
	data, err := encodeDocument(doc.tree)
	if err != nil {
		return "", errors.Wrapf(err, "encode %s", name)
	}
	if err := afero.WriteFile(fs, name, data, 0644); err != nil {
		return "", errors.Wrapf(err, "write %s", name)
	}
	logger.Info("saved event file", "file", name, "size", humanize.Bytes(uint64(len(data))), "events", len(doc.records))
	return name, nil
}

// ---------------------------------------------------------------------------
// Local catalogs
// ---------------------------------------------------------------------------

// readLocal returns the JSON bytes of a local catalog file. ".gz" files are
// decompressed; comments and trailing commas are stripped.
func readLocal(fs afero.Fs, path string) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer gr.Close()
		r = gr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return jsonc.ToJSON(data), nil
}

// loadLocal loads a comma-separated list of files. Every file lands in the
// core list, whatever kind of events it holds; the offcore list stays empty.
func loadLocal(fs afero.Fs, files string, logger *slog.Logger) (*catalog, error) {
	cat := &catalog{}
	for _, path := range strings.Split(files, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		logger.Info("loading event file", "file", path)
		data, err := readLocal(fs, path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		cat.core = append(cat.core, doc.records...)
	}
	return cat, nil
}

// ---------------------------------------------------------------------------
// Remote catalogs
// ---------------------------------------------------------------------------

// catalogSource is where remote resolution gets its inputs from.
type catalogSource interface {
	MapFile(ctx context.Context) ([]mapEntry, error)
	Document(ctx context.Context, filename string) ([]byte, error)
}

type remoteOptions struct {
	download bool
	fs       afero.Fs // destination for downloads
}

// loadRemote resolves the host CPU against the map file and fetches its core
// and, when listed, offcore events. Without a core match nothing else is
// fetched.
func loadRemote(ctx context.Context, src catalogSource, id identifier, opts remoteOptions, logger *slog.Logger) (*catalog, error) {
	entries, err := src.MapFile(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("mapfile loaded", "entries", len(entries))

	cpuID, err := id.Identify(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("cpu identified", "signature", cpuID)

	paths, err := resolveCatalog(entries, cpuID, logger)
	if err != nil {
		return nil, err
	}
	if paths.core == "" {
		return nil, newResolutionError("no core event found for %s CPU, program abort...", cpuID)
	}

	cat := &catalog{}
	if cat.core, err = fetchEvents(ctx, src, paths.core, opts, logger); err != nil {
		return nil, err
	}
	if paths.offcore != "" {
		if cat.offcore, err = fetchEvents(ctx, src, paths.offcore, opts, logger); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func fetchEvents(ctx context.Context, src catalogSource, filename string, opts remoteOptions, logger *slog.Logger) ([]eventRecord, error) {
	data, err := src.Document(ctx, filename)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	if opts.download {
		if _, err := saveDocument(opts.fs, filename, doc, logger); err != nil {
			return nil, err
		}
	}
	return doc.records, nil
}
