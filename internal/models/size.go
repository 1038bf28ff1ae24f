package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var sizePattern = regexp.MustCompile(`(\d+)x(\d+)`)

// Size is a creative or placement dimension in pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// String renders the canonical "{width}x{height}" key.
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// ParseSize parses a "WxH" key. Labels such as "300x250_2" parse to their base size.
func ParseSize(v string) (Size, error) {
	m := sizePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(v)))
	if m == nil {
		return Size{}, fmt.Errorf("invalid size %q", v)
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return Size{Width: w, Height: h}, nil
}

// MustParseSize is ParseSize for compile-time constants.
func MustParseSize(v string) Size {
	s, err := ParseSize(v)
	if err != nil {
		panic(err)
	}
	return s
}

// BaseSize strips any label suffix such as "_2x" or "_nolp" from a size key.
func BaseSize(key string) string {
	return strings.TrimSpace(strings.SplitN(key, "_", 2)[0])
}
