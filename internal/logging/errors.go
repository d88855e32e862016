package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ErrorEntry is one ERROR record found in the JSON log files.
type ErrorEntry struct {
	Time    time.Time
	Message string

	// Err is the "err" attribute, if any.
	Err string

	// Attrs holds the remaining attributes.
	Attrs map[string]any

	// File is the log file the entry came from.
	File string
}

// RecentErrors returns up to n ERROR entries from the log files in dir,
// newest first. Lines that are not JSON are skipped.
func RecentErrors(dir string, n int) ([]ErrorEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	// Date-stamped names sort chronologically.
	slices.Sort(matches)
	slices.Reverse(matches)

	var out []ErrorEntry
	for _, path := range matches {
		entries, err := scanErrors(path)
		if err != nil {
			return out, err
		}
		for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
			out = append(out, entries[i])
		}
		if len(out) >= n {
			break
		}
	}
	return out, nil
}

func scanErrors(path string) ([]ErrorEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []ErrorEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if level, _ := rec["level"].(string); !strings.EqualFold(level, "ERROR") {
			continue
		}
		e := ErrorEntry{File: filepath.Base(path), Attrs: map[string]any{}}
		if ts, ok := rec["time"].(string); ok {
			e.Time, _ = time.Parse(time.RFC3339Nano, ts)
		}
		e.Message, _ = rec["msg"].(string)
		if v, ok := rec["err"]; ok {
			e.Err = toString(v)
		}
		for k, v := range rec {
			switch k {
			case "time", "level", "msg", "err", "pid":
			default:
				e.Attrs[k] = v
			}
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
