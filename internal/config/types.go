package config

type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodPatch  Method = "PATCH"
)

var validMethods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch}

// KeyValue is one ordered header or query parameter entry.
type KeyValue struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// TestConfig is the declarative description of a single HTTP load test.
type TestConfig struct {
	URL          string     `json:"url" yaml:"url" validate:"required"`
	Method       Method     `json:"method" yaml:"method" validate:"required,method"`
	Headers      []KeyValue `json:"headers,omitempty" yaml:"headers,omitempty"`
	Parameters   []KeyValue `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Body         string     `json:"body,omitempty" yaml:"body,omitempty"`
	VirtualUsers int        `json:"virtualUsers" yaml:"virtualUsers" validate:"gt=0"`
	Duration     string     `json:"duration" yaml:"duration" validate:"duration"`
	RampUp       string     `json:"rampUp" yaml:"rampUp" validate:"duration"`
}

// Clone returns a deep copy so stored configs can be re-run without aliasing.
func (c TestConfig) Clone() TestConfig {
	out := c
	out.Headers = append([]KeyValue(nil), c.Headers...)
	out.Parameters = append([]KeyValue(nil), c.Parameters...)
	return out
}

type fileDocument struct {
	Tests []TestConfig `json:"tests" yaml:"tests"`
}
