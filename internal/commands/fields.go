package commands

import (
	"fmt"
	"strings"
	"time"

	"atask/internal/output"
	"atask/internal/service"
)

// optString is a string flag that remembers whether it was given.
type optString struct {
	value string
	set   bool
}

func (o *optString) String() string { return o.value }

func (o *optString) Set(s string) error {
	o.value = s
	o.set = true
	return nil
}

// parseDue accepts YYYY-MM-DD or an RFC 3339 timestamp.
func parseDue(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(output.DateLayout, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("invalid due date: %s (want YYYY-MM-DD)", s)
}

func parsePriority(s string) (service.Priority, error) {
	p, ok := service.ParsePriority(s)
	if !ok {
		return "", fmt.Errorf("invalid priority: %s (want low, medium or high)", s)
	}
	return p, nil
}

// parseTags splits a comma-separated list, dropping blanks.
func parseTags(s string) []string {
	tags := []string{}
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
