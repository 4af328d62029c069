package trace

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// JSONLWriter writes one JSON object per line.
type JSONLWriter struct {
	closer io.Closer
	enc    *json.Encoder
}

// NewJSONLWriter wraps w. Close closes w if it is an io.Closer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	c, _ := w.(io.Closer)
	return &JSONLWriter{closer: c, enc: json.NewEncoder(w)}
}

// Write logs a single record.
func (j *JSONLWriter) Write(r Record) error {
	return j.enc.Encode(r)
}

// Close closes the underlying file, if any.
func (j *JSONLWriter) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

var csvHeader = []string{"kind", "time", "channel", "src", "dst", "packet_uid", "bytes", "delay_ns", "reason", "node", "x", "y", "z", "seq"}

// CSVWriter writes records as comma-separated rows under a fixed header.
type CSVWriter struct {
	closer io.Closer
	w      *csv.Writer
	header bool
}

// NewCSVWriter wraps w. The header is written with the first record.
func NewCSVWriter(w io.Writer) *CSVWriter {
	c, _ := w.(io.Closer)
	return &CSVWriter{closer: c, w: csv.NewWriter(w)}
}

// Write logs a single record.
func (c *CSVWriter) Write(r Record) error {
	if !c.header {
		if err := c.w.Write(csvHeader); err != nil {
			return err
		}
		c.header = true
	}
	x, y, z := "", "", ""
	if r.Position != nil {
		x = strconv.FormatFloat(r.Position.X, 'f', 3, 64)
		y = strconv.FormatFloat(r.Position.Y, 'f', 3, 64)
		z = strconv.FormatFloat(r.Position.Z, 'f', 3, 64)
	}
	return c.w.Write([]string{
		string(r.Kind),
		r.Time.Format(time.RFC3339Nano),
		r.Channel,
		r.Src,
		r.Dst,
		strconv.FormatUint(r.PacketUID, 10),
		strconv.Itoa(r.Bytes),
		strconv.FormatInt(int64(r.Delay), 10),
		r.Reason,
		r.Node,
		x, y, z,
		strconv.FormatUint(uint64(r.Seq), 10),
	})
}

// Close flushes buffered rows and closes the underlying file, if any.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if e := c.closer.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Open creates path and returns a sink for the given format ("csv" or
// "jsonl"). An empty format is inferred from the file extension.
func Open(path, format string) (Sink, error) {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	switch strings.ToLower(format) {
	case "csv", "jsonl", "json":
	default:
		return nil, fmt.Errorf("unsupported trace format %q", format)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(format, "csv") {
		return NewCSVWriter(f), nil
	}
	return NewJSONLWriter(f), nil
}
