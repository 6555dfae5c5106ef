package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"loadtest-engine/internal/config"
)

var ErrInvalidConfig = errors.New("invalid config")

type BodyKind string

const (
	BodyJSON BodyKind = "json"
	BodyRaw  BodyKind = "raw"
)

// Body is the resolved request payload. JSON bodies keep their parsed structure.
type Body struct {
	Kind BodyKind `json:"kind"`
	JSON any      `json:"json,omitempty"`
	Raw  string   `json:"raw,omitempty"`
}

// Payload returns the bytes the driver sends on the wire.
func (b *Body) Payload() (string, error) {
	if b.Kind == BodyRaw {
		return b.Raw, nil
	}
	data, err := json.Marshal(b.JSON)
	if err != nil {
		return "", fmt.Errorf("failed to serialize json body: %w", err)
	}
	return string(data), nil
}

type Stage struct {
	Target   int    `json:"target"`
	Duration string `json:"duration"`
}

// Plan is the fully resolved, immutable form of a TestConfig.
type Plan struct {
	Method       config.Method     `json:"method"`
	FinalURL     string            `json:"finalUrl"`
	Headers      []config.KeyValue `json:"headers"`
	Body         *Body             `json:"body,omitempty"`
	Stages       []Stage           `json:"stages"`
	VirtualUsers int               `json:"virtualUsers"`
	Duration     string            `json:"duration"`

	HoldDuration   time.Duration `json:"-"`
	RampUpDuration time.Duration `json:"-"`
}

// Build validates cfg and resolves it into a Plan. It is pure: equal configs give equal plans.
func Build(cfg config.TestConfig) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	hold, err := config.ParseDuration(cfg.Duration)
	if err != nil {
		return nil, fmt.Errorf("%w: duration: %w", ErrInvalidConfig, err)
	}
	rampUp, err := config.ParseDuration(cfg.RampUp)
	if err != nil {
		return nil, fmt.Errorf("%w: rampUp: %w", ErrInvalidConfig, err)
	}

	p := &Plan{
		Method:       cfg.Method,
		FinalURL:     mergeQuery(cfg.URL, cfg.Parameters),
		Headers:      nonEmpty(cfg.Headers),
		VirtualUsers: cfg.VirtualUsers,
		Duration:     cfg.Duration,
		Stages: []Stage{
			{Target: cfg.VirtualUsers, Duration: cfg.RampUp},
			{Target: cfg.VirtualUsers, Duration: cfg.Duration},
			{Target: 0, Duration: cfg.RampUp},
		},
		HoldDuration:   hold,
		RampUpDuration: rampUp,
	}

	if cfg.Method != config.MethodGet && cfg.Body != "" {
		p.Body = resolveBody(cfg.Body)
	}

	return p, nil
}

// HeaderMap flattens the ordered headers; the last value wins for repeated keys.
func (p *Plan) HeaderMap() map[string]string {
	out := make(map[string]string, len(p.Headers))
	for _, h := range p.Headers {
		out[h.Key] = h.Value
	}
	return out
}

// TotalDuration is the wall time of all three stages.
func (p *Plan) TotalDuration() time.Duration {
	return 2*p.RampUpDuration + p.HoldDuration
}

func nonEmpty(entries []config.KeyValue) []config.KeyValue {
	out := make([]config.KeyValue, 0, len(entries))
	for _, e := range entries {
		if e.Key != "" && e.Value != "" {
			out = append(out, e)
		}
	}
	return out
}

func mergeQuery(base string, params []config.KeyValue) string {
	valid := nonEmpty(params)
	if len(valid) == 0 {
		return base
	}

	pairs := make([]string, 0, len(valid))
	for _, p := range valid {
		pairs = append(pairs, encodeURIComponent(p.Key)+"="+encodeURIComponent(p.Value))
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(pairs, "&")
}

func resolveBody(raw string) *Body {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return &Body{Kind: BodyRaw, Raw: raw}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &Body{Kind: BodyRaw, Raw: raw}
	}
	return &Body{Kind: BodyJSON, JSON: parsed}
}

const upperhex = "0123456789ABCDEF"

// encodeURIComponent escapes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	var buf bytes.Buffer
	buf.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			buf.WriteByte(c)
			continue
		}
		buf.WriteByte('%')
		buf.WriteByte(upperhex[c>>4])
		buf.WriteByte(upperhex[c&15])
	}
	return buf.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
