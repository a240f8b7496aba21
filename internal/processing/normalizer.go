package processing

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ResponseTimeField is the only field the normalizer rewrites.
const ResponseTimeField = "responseTime"

// CoerceResponseTime converts a raw JSON value into a number. Numbers are kept,
// numeric strings are parsed, booleans become 1 or 0. Everything else,
// including null and non-finite values, becomes 0.
func CoerceResponseTime(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0
	}

	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// NormalizeLine rewrites the responseTime field of one JSON object and returns
// the re-serialised object terminated by a newline. Keys are emitted sorted.
func NormalizeLine(line []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if fields == nil {
		return nil, errors.New("decode record: not a JSON object")
	}

	coerced, err := json.Marshal(CoerceResponseTime(fields[ResponseTimeField]))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ResponseTimeField, err)
	}
	fields[ResponseTimeField] = coerced

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// NormalizeStream reads newline-delimited JSON objects from r and writes each
// one, normalised, to w in input order. Blank lines are skipped. It returns the
// number of records written; the first bad line aborts the run.
func NormalizeStream(r io.Reader, w io.Writer) (int, error) {
	reader := bufio.NewReader(r)
	writer := bufio.NewWriter(w)

	written := 0
	lineNo := 0
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				out, err := NormalizeLine(trimmed)
				if err != nil {
					_ = writer.Flush()
					return written, fmt.Errorf("line %d: %w", lineNo, err)
				}
				if _, err := writer.Write(out); err != nil {
					return written, fmt.Errorf("write line %d: %w", lineNo, err)
				}
				written++
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			_ = writer.Flush()
			return written, fmt.Errorf("read line %d: %w", lineNo+1, readErr)
		}
	}

	if err := writer.Flush(); err != nil {
		return written, fmt.Errorf("flush output: %w", err)
	}
	return written, nil
}
