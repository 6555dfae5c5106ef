package aggregate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	MetricDuration     = "http_req_duration"
	MetricRequests     = "http_reqs"
	MetricFailed       = "http_req_failed"
	MetricDataReceived = "data_received"
	MetricDataSent     = "data_sent"

	pointType     = "Point"
	defaultStatus = "200"
)

var ErrMalformedLine = errors.New("malformed measurement line")

// Point is one line of the driver's JSON output: {"type":"Point","metric":...,"data":{...}}.
type Point struct {
	Type   string    `json:"type"`
	Metric string    `json:"metric"`
	Data   PointData `json:"data"`
}

type PointData struct {
	Time  time.Time      `json:"time"`
	Value float64        `json:"value"`
	Tags  map[string]any `json:"tags,omitempty"`
}

// Status returns the HTTP status tag, "200" when the tag is absent or empty.
func (p Point) Status() string {
	switch v := p.Data.Tags["status"].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return defaultStatus
}

// ParseLine decodes a single stream line.
func ParseLine(line []byte) (Point, error) {
	var p Point
	if err := json.Unmarshal(line, &p); err != nil {
		return Point{}, fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}
	return p, nil
}
