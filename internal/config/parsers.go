package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+)([smh])$`)

// ParseDuration parses the "<n><unit>" grammar used by test configs, unit being one of s, m or h.
func ParseDuration(value string) (time.Duration, error) {
	match := durationPattern.FindStringSubmatch(value)
	if match == nil {
		return 0, fmt.Errorf("invalid duration %q, expected <n>s, <n>m or <n>h", value)
	}

	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}

	var unit time.Duration
	switch match[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	default:
		unit = time.Hour
	}

	if n > int64(1<<63-1)/int64(unit) {
		return 0, fmt.Errorf("duration %q overflows", value)
	}
	return time.Duration(n) * unit, nil
}

// ValidDuration reports whether value matches the duration grammar.
func ValidDuration(value string) bool {
	_, err := ParseDuration(value)
	return err == nil
}

func parseKeyValue(raw, sep string) (KeyValue, error) {
	key, value, ok := strings.Cut(raw, sep)
	if !ok {
		return KeyValue{}, fmt.Errorf("invalid entry %q, expected key%svalue", raw, sep)
	}
	return KeyValue{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)}, nil
}

// ParseHeader parses a "Key: Value" command line header.
func ParseHeader(raw string) (KeyValue, error) {
	return parseKeyValue(raw, ":")
}

// ParseParam parses a "key=value" command line query parameter.
func ParseParam(raw string) (KeyValue, error) {
	return parseKeyValue(raw, "=")
}
