// Package daemon tracks a background pmdash server through a record file
// holding its PID, listen URL and start time.
package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrAlreadyRunning is returned by Claim when a live server owns the file.
var ErrAlreadyRunning = errors.New("server is already running")

// Record is what a running server advertises about itself.
type Record struct {
	PID     int
	URL     string
	Started time.Time
}

// PIDFile is the on-disk record of a background server.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Claim records the current process as the server at url. A record left by
// a dead process is replaced; a live one yields ErrAlreadyRunning.
func (p *PIDFile) Claim(url string) error {
	if pid, running := p.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	return p.Save(Record{PID: os.Getpid(), URL: url, Started: time.Now().UTC()})
}

// Release removes the record if it still names the current process.
func (p *PIDFile) Release() error {
	rec, err := p.Load()
	if err != nil || rec.PID != os.Getpid() {
		return nil
	}
	return p.Remove()
}

// Save writes r atomically: a reader never sees a half-written record.
func (p *PIDFile) Save(r Record) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID file dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.Path), ".pid-*")
	if err != nil {
		return fmt.Errorf("create PID file: %w", err)
	}
	lines := []string{strconv.Itoa(r.PID), r.URL}
	if !r.Started.IsZero() {
		lines = append(lines, r.Started.Format(time.RFC3339))
	}
	if _, err := tmp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write PID file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write PID file: %w", err)
	}
	return os.Rename(tmp.Name(), p.Path)
}

// Load reads the record. Only the PID line is required.
func (p *PIDFile) Load() (Record, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return Record{}, fmt.Errorf("read PID file: %w", err)
	}
	if len(lines) == 0 {
		return Record{}, fmt.Errorf("invalid PID file content: empty")
	}

	var r Record
	if r.PID, err = strconv.Atoi(lines[0]); err != nil || r.PID <= 0 {
		return Record{}, fmt.Errorf("invalid PID file content: %q", lines[0])
	}
	if len(lines) > 1 {
		r.URL = lines[1]
	}
	if len(lines) > 2 {
		r.Started, _ = time.Parse(time.RFC3339, lines[2])
	}
	return r, nil
}

// Read returns just the PID.
func (p *PIDFile) Read() (int, error) {
	r, err := p.Load()
	return r.PID, err
}

// Remove deletes the record file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
