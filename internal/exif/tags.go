// Package exif assembles the per-frame EXIF tag list and applies it to the
// encoder output port.
package exif

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

const (
	// DefaultMaxTags bounds a whole tag set.
	DefaultMaxTags = 64
	// MaxUserTags bounds caller-supplied tags.
	MaxUserTags = 32
)

// TagSet is an ordered, bounded list of "Group.Tag=value" strings.
type TagSet struct {
	tags    []string
	max     int
	dropped int
}

// NewTagSet returns an empty set holding at most max tags.
func NewTagSet(max int) *TagSet {
	if max <= 0 {
		max = DefaultMaxTags
	}
	return &TagSet{tags: make([]string, 0, max), max: max}
}

// Add appends tag. Tags past the maximum are dropped and Add returns false.
func (s *TagSet) Add(tag string) bool {
	if len(s.tags) >= s.max {
		s.dropped++
		return false
	}
	s.tags = append(s.tags, tag)
	return true
}

// Addf formats and appends a tag.
func (s *TagSet) Addf(format string, args ...any) bool {
	return s.Add(fmt.Sprintf(format, args...))
}

// Tags returns a copy of the tags in insertion order.
func (s *TagSet) Tags() []string {
	return append([]string(nil), s.tags...)
}

// Len returns the number of tags held.
func (s *TagSet) Len() int { return len(s.tags) }

// Max returns the configured maximum.
func (s *TagSet) Max() int { return s.max }

// Dropped returns how many tags were refused.
func (s *TagSet) Dropped() int { return s.dropped }

// TagError is a tag the encoder refused. It is logged, never fatal.
type TagError struct {
	Tag string
	Err error
}

func (e *TagError) Error() string {
	return fmt.Sprintf("exif: unable to set tag %q: %v", e.Tag, e.Err)
}

func (e *TagError) Unwrap() error { return e.Err }

// Split returns the key and value of a tag string.
func Split(tag string) (key, value string, ok bool) {
	return strings.Cut(tag, "=")
}

// Apply sets every tag of s on port. Refused tags are logged and skipped;
// a port that does not implement tags at all ends the pass. The number of
// tags applied is returned.
func Apply(port pipeline.Port, s *TagSet, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	applied := 0
	for _, tag := range s.tags {
		if err := port.SetParameter(pipeline.ExifTag{Tag: tag}); err != nil {
			if pipeline.StatusOf(err) == pipeline.StatusNotImplemented {
				logger.Info("exif: port does not embed tags, metadata skipped", "port", port.Name())
				return applied
			}
			logger.Warn("exif: tag not applied",
				"port", port.Name(),
				"error", &TagError{Tag: tag, Err: err},
			)
			continue
		}
		applied++
	}
	if s.dropped > 0 {
		logger.Debug("exif: tags dropped over limit", "dropped", s.dropped, "max", s.max)
	}
	return applied
}
