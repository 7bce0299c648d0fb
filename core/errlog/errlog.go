// Package errlog is the shared, append-only diagnostic log of a download pass.
//
// Every per-file failure the reconciliation engine swallows is appended here
// with enough context to retry the file by hand. Several title workers write
// concurrently; each Append holds the sink exclusively for the duration of one
// entry so blocks never interleave.
package errlog

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Separator ends every entry in the file log.
const Separator = "---------------------------------------------------------"

// Kind classifies a logged failure.
type Kind string

const (
	// KindNoDownload is a 2xx response that was not a file.
	KindNoDownload Kind = "no_download"
	// KindHTTP is a non-success HTTP status.
	KindHTTP Kind = "http"
	// KindTransport is a network level failure.
	KindTransport Kind = "transport"
	// KindVerify is a downloaded file whose digest did not match.
	KindVerify Kind = "verify"
	// KindArchive is a failure to move a superseded file aside.
	KindArchive Kind = "archive"
	// KindSession is a failure to obtain a download session.
	KindSession Kind = "session"
	// KindFilesystem is a local I/O failure.
	KindFilesystem Kind = "filesystem"
	// KindReplicate is a failure to copy a verified file to object storage.
	KindReplicate Kind = "replicate"
)

// Entry is one logged failure.
type Entry struct {
	Kind       Kind
	Time       time.Time
	Title      string
	Publisher  string
	Path       string
	File       string
	URL        string
	StatusCode int
	Reason     string
}

// Sink receives entries.
type Sink interface {
	Append(Entry) error
}

// FileSink appends entries to a text file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink returns a sink writing to path. The file is created on first use.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the log file path.
func (s *FileSink) Path() string {
	return s.path
}

// Append writes e as one block.
func (s *FileSink) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	block := Format(e)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open error log: %w", err)
	}
	if _, err := f.WriteString(block); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to error log: %w", err)
	}
	return f.Close()
}

// Format renders e the way it is stored in the file log.
func Format(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cannot download game/asset: %s\n", e.Title)
	fmt.Fprintf(&b, "Time: %s\n", e.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Kind: %s\n", e.Kind)
	fmt.Fprintf(&b, "Publisher Name: %s\n", e.Publisher)
	fmt.Fprintf(&b, "Path: %s\n", e.Path)
	fmt.Fprintf(&b, "File: %s\n", e.File)
	if e.URL != "" {
		fmt.Fprintf(&b, "Request URL: %s\n", RedactURL(e.URL))
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "Request Response Code: %d\n", e.StatusCode)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, "Error Reason: %s\n", e.Reason)
	}
	b.WriteString("This game/asset has been skipped, please download it manually\n")
	b.WriteString(Separator + "\n")
	return b.String()
}

// RedactURL hides credentials carried in the query string.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("api_key") == "" {
		return raw
	}
	q.Set("api_key", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}

// ReadBlocks returns the entries stored at path as raw text blocks. A missing
// file yields no blocks.
func ReadBlocks(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	blocks := []string{}
	var cur strings.Builder
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == Separator {
			if block := strings.TrimSpace(cur.String()); block != "" {
				blocks = append(blocks, block)
			}
			cur.Reset()
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	if block := strings.TrimSpace(cur.String()); block != "" {
		blocks = append(blocks, block)
	}
	return blocks, sc.Err()
}

// Collector keeps entries in memory.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
}

// Append records e.
func (c *Collector) Append(e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

// Entries returns a copy of the recorded entries.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}
