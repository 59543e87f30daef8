// Package naming turns frame identifiers into output paths and finalizes
// them atomically: data goes to "<final>~" and is renamed into place only
// after the frame completed.
package naming

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TempSuffix is appended to the final path while a frame is being written.
const TempSuffix = "~"

// Mode selects the frame identifier policy.
type Mode int

const (
	ModeCounter Mode = iota
	ModeTimestamp
	ModeDateTime
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeCounter:
		return "counter"
	case ModeTimestamp:
		return "timestamp"
	case ModeDateTime:
		return "datetime"
	default:
		return "unknown"
	}
}

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "counter":
		return ModeCounter, nil
	case "timestamp":
		return ModeTimestamp, nil
	case "datetime":
		return ModeDateTime, nil
	default:
		return ModeCounter, fmt.Errorf("naming: unknown frame id mode %q", s)
	}
}

// Policy describes how frames are named.
type Policy struct {
	Dir        string
	Template   string // printf-style, e.g. "image%04d.jpg"
	Mode       Mode
	FrameStart int64
	LatestLink string // optional symlink to the newest frame
}

// FilenamePair is the temporary and final path of one frame.
type FilenamePair struct {
	FrameID int64
	Temp    string
	Final   string
}

// FileError is a failed file operation on an output path.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("naming: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// DateTimeID packs month, day, hour, minute and second in base 100.
func DateTimeID(t time.Time) int64 {
	id := int64(t.Month())
	id = id*100 + int64(t.Day())
	id = id*100 + int64(t.Hour())
	id = id*100 + int64(t.Minute())
	id = id*100 + int64(t.Second())
	return id
}

// TimestampID is the Unix time in seconds.
func TimestampID(t time.Time) int64 {
	return t.Unix()
}

// SyncFunc flushes an open file or directory to stable storage.
type SyncFunc func(f *os.File) error

// Namer hands out FilenamePairs for consecutive frames.
type Namer struct {
	policy Policy
	sync   SyncFunc

	mu    sync.Mutex
	frame int64
}

// NewNamer validates p and returns a namer positioned before the first frame.
func NewNamer(p Policy) (*Namer, error) {
	if p.Template == "" {
		return nil, errors.New("naming: output template is required")
	}
	if hasVerb(p.Template) {
		if out := fmt.Sprintf(p.Template, int64(0)); strings.Contains(out, "%!") {
			return nil, fmt.Errorf("naming: template %q must take exactly one integer verb", p.Template)
		}
	}
	if strings.HasSuffix(p.Template, string(filepath.Separator)) {
		return nil, fmt.Errorf("naming: template %q names a directory", p.Template)
	}
	return &Namer{policy: p, sync: (*os.File).Sync, frame: p.FrameStart - 1}, nil
}

// WithSync replaces the function used to flush files and directories.
func (n *Namer) WithSync(fn SyncFunc) *Namer {
	n.sync = fn
	return n
}

// hasVerb reports whether tmpl contains a formatting verb other than "%%".
func hasVerb(tmpl string) bool {
	return strings.Contains(strings.ReplaceAll(tmpl, "%%", ""), "%")
}

// Policy returns the naming policy.
func (n *Namer) Policy() Policy { return n.policy }

// Next advances the frame counter and names the frame captured at now.
func (n *Namer) Next(now time.Time) FilenamePair {
	n.mu.Lock()
	n.frame++
	id := n.frame
	n.mu.Unlock()

	switch n.policy.Mode {
	case ModeDateTime:
		id = DateTimeID(now)
	case ModeTimestamp:
		id = TimestampID(now)
	}

	final := n.Format(id)
	return FilenamePair{FrameID: id, Temp: final + TempSuffix, Final: final}
}

// Format renders the final path for id.
func (n *Namer) Format(id int64) string {
	name := n.policy.Template
	if hasVerb(name) {
		name = fmt.Sprintf(name, id)
	} else {
		name = strings.ReplaceAll(name, "%%", "%")
	}
	if n.policy.Dir != "" && !filepath.IsAbs(name) {
		name = filepath.Join(n.policy.Dir, name)
	}
	return name
}

// Open creates (or truncates) the temporary file of pair.
func (n *Namer) Open(pair FilenamePair) (*os.File, error) {
	f, err := os.OpenFile(pair.Temp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &FileError{Op: "open", Path: pair.Temp, Err: err}
	}
	return f, nil
}

// Sync flushes the temporary file of pair. It must succeed before Finalize
// so that the final name never points at a partial image after a crash.
func (n *Namer) Sync(f *os.File, pair FilenamePair) error {
	if err := n.sync(f); err != nil {
		return &FileError{Op: "sync", Path: pair.Temp, Err: err}
	}
	return nil
}

// Finalize renames the temporary file onto the final path, flushes the
// directory entry and refreshes the latest link, if one is configured.
//
// An error whose Path is the temporary file means the frame is not in
// place. Any other error leaves the frame at its final path.
func (n *Namer) Finalize(pair FilenamePair) error {
	if err := os.Rename(pair.Temp, pair.Final); err != nil {
		return &FileError{Op: "rename", Path: pair.Temp, Err: err}
	}
	if err := n.syncDir(filepath.Dir(pair.Final)); err != nil {
		return err
	}
	if n.policy.LatestLink != "" {
		if err := n.link(pair.Final); err != nil {
			return err
		}
	}
	return nil
}

func (n *Namer) syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return &FileError{Op: "sync", Path: dir, Err: err}
	}
	defer d.Close()
	if err := n.sync(d); err != nil {
		return &FileError{Op: "sync", Path: dir, Err: err}
	}
	return nil
}

// Discard removes the temporary file. A missing file is not an error.
func (n *Namer) Discard(pair FilenamePair) error {
	if err := os.Remove(pair.Temp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &FileError{Op: "remove", Path: pair.Temp, Err: err}
	}
	return nil
}

// link points LatestLink at final through a temporary link and a rename.
func (n *Namer) link(final string) error {
	linkPath := n.policy.LatestLink
	if n.policy.Dir != "" && !filepath.IsAbs(linkPath) {
		linkPath = filepath.Join(n.policy.Dir, linkPath)
	}

	target := final
	if rel, err := filepath.Rel(filepath.Dir(linkPath), final); err == nil {
		target = rel
	}

	tmp := linkPath + TempSuffix
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return &FileError{Op: "symlink", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		_ = os.Remove(tmp)
		return &FileError{Op: "rename", Path: tmp, Err: err}
	}
	return nil
}
