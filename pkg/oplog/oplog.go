// Package oplog is the session operation log: one line per stage call with
// its resolved parameters, written so a session can be replayed offline.
//
// A line is an operation name followed by key=value pairs:
//
//	normalize pad=2048 air=10 background=true floor=1e-06
//
// Values containing spaces, quotes or '=' are written as Go quoted strings.
// Lines starting with '#' are comments.
package oplog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Param is one resolved parameter of an operation.
type Param struct {
	Key   string
	Value string
}

// P builds a Param, formatting floats with the shortest exact
// representation.
func P(key string, value interface{}) Param {
	var s string
	switch v := value.(type) {
	case float64:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(v), 'g', -1, 32)
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	return Param{Key: key, Value: s}
}

// Entry is one parsed log line.
type Entry struct {
	Line   int
	Op     string
	Params []Param
}

// Log appends entries to a writer. A nil *Log discards everything.
type Log struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// New returns a Log writing to w.
func New(w io.Writer) *Log {
	return &Log{w: w}
}

// Open opens path for appending, creating it if needed, and writes a
// session comment line.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening operation log: %w", err)
	}
	l := &Log{w: f, closer: f}
	if _, err := fmt.Fprintf(f, "# session %s\n", time.Now().Format(time.RFC3339)); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing operation log: %w", err)
	}
	return l, nil
}

// Record appends one operation.
func (l *Log) Record(op string, params ...Param) error {
	if l == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString(op)
	for _, p := range params {
		b.WriteByte(' ')
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(quote(p.Value))
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, b.String())
	return err
}

// Close closes the underlying file if the Log opened it.
func (l *Log) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"=#\\") {
		return strconv.Quote(s)
	}
	return s
}

// Parse reads a log back.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		e.Line = n
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ParseFile reads the log at path.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func parseLine(line string) (Entry, error) {
	var e Entry
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		e.Op = line
		return e, nil
	}
	e.Op = line[:i]
	rest := strings.TrimLeft(line[i:], " \t")

	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return e, fmt.Errorf("expected key=value, got %q", rest)
		}
		key := rest[:eq]
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, "\"") {
			q, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return e, fmt.Errorf("bad quoted value for %s: %w", key, err)
			}
			if value, err = strconv.Unquote(q); err != nil {
				return e, err
			}
			rest = rest[len(q):]
		} else {
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				end = len(rest)
			}
			value = rest[:end]
			rest = rest[end:]
		}
		e.Params = append(e.Params, Param{Key: key, Value: value})
		rest = strings.TrimLeft(rest, " \t")
	}
	return e, nil
}

// Get returns the value of key.
func (e Entry) Get(key string) (string, bool) {
	for _, p := range e.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Value returns the value of key or def.
func (e Entry) Value(key, def string) string {
	if v, ok := e.Get(key); ok {
		return v
	}
	return def
}

// Float returns the value of key as a float, or def when absent.
func (e Entry) Float(key string, def float64) (float64, error) {
	v, ok := e.Get(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", e.Op, key, err)
	}
	return f, nil
}

// Int returns the value of key as an int, or def when absent.
func (e Entry) Int(key string, def int) (int, error) {
	v, ok := e.Get(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", e.Op, key, err)
	}
	return n, nil
}

// Bool returns the value of key as a bool, or def when absent.
func (e Entry) Bool(key string, def bool) (bool, error) {
	v, ok := e.Get(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", e.Op, key, err)
	}
	return b, nil
}
