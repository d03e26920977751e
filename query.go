package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const queryPrompt = "Event to query (empty enter to quit):"

// formatCounter renders one perf-style counter string for a single event
// code. Modifiers equal to "0" are left out.
func formatCounter(e eventRecord, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cpu/umask=%s,event=%s,name=%s", e.UMask, code, e.Name)
	for _, m := range []struct{ key, val string }{
		{"offcore_rsp", e.MSRValue},
		{"inv", e.Invert},
		{"any", e.AnyThread},
		{"edge", e.EdgeDetect},
		{"cmask", e.CounterMask},
	} {
		if m.val != "0" {
			fmt.Fprintf(&b, ",%s=%s", m.key, m.val)
		}
	}
	b.WriteString("/")
	return b.String()
}

// counterStrings returns one counter string per code in e.Code.
func counterStrings(e eventRecord) []string {
	codes := strings.Split(e.Code, ", ")
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		out = append(out, formatCounter(e, code))
	}
	return out
}

// dumpEvents prints "name:description" for every event that has both.
func dumpEvents(w io.Writer, events []eventRecord, filter *recordFilter) error {
	for _, e := range events {
		if !e.hasName || !e.hasDescription {
			continue
		}
		ok, err := filter.keep(e)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(w, "%s:%s\n", e.Name, e.Description)
		}
	}
	return nil
}

// querySession answers substring queries against a loaded catalog.
type querySession struct {
	events  []eventRecord
	filter  *recordFilter
	out     io.Writer
	heading func(string) string
}

func newQuerySession(out io.Writer, events []eventRecord, filter *recordFilter) *querySession {
	s := &querySession{events: events, filter: filter, out: out, heading: func(name string) string { return name }}
	if isTerminal(out) {
		style := lipgloss.NewRenderer(out).NewStyle().Bold(true)
		s.heading = func(name string) string { return style.Render(name) }
	}
	return s
}

// match returns the events whose name contains q, ignoring case, in catalog
// order.
func (s *querySession) match(q string) ([]eventRecord, error) {
	q = strings.ToLower(q)
	var matched []eventRecord
	for _, e := range s.events {
		if !e.hasName || !strings.Contains(strings.ToLower(e.Name), q) {
			continue
		}
		ok, err := s.filter.keep(e)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// answer prints each matching event followed by its counter strings.
func (s *querySession) answer(q string) error {
	matched, err := s.match(q)
	if err != nil {
		return err
	}
	for _, e := range matched {
		fmt.Fprintf(s.out, "%s:%s\n", s.heading(e.Name), e.Description)
		for _, c := range counterStrings(e) {
			fmt.Fprintln(s.out, c)
		}
	}
	return nil
}

// run prompts until an empty line or end of input.
func (s *querySession) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, queryPrompt)
		if !scanner.Scan() {
			return scanner.Err()
		}
		q := strings.TrimSuffix(scanner.Text(), "\r")
		if q == "" {
			return nil
		}
		if err := s.answer(q); err != nil {
			return err
		}
	}
}
