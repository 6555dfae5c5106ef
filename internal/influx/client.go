// Package influx exports finished runs to InfluxDB 3 for dashboards.
package influx

import (
	"context"
	"fmt"

	"github.com/InfluxCommunity/influxdb3-go/influxdb3"
	"go.uber.org/zap"

	"loadtest-engine/internal/config"
)

type pointWriter interface {
	WritePoints(ctx context.Context, points []*influxdb3.Point, options ...influxdb3.WriteOption) error
	Close() error
}

// Client wraps InfluxDB write operations. A nil Client is valid and writes nothing.
type Client struct {
	writer pointWriter
	logger *zap.Logger
}

// NewClient returns nil when export is disabled.
func NewClient(cfg config.InfluxSettings, logger *zap.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     cfg.Host,
		Token:    cfg.Token,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create influxdb client: %w", err)
	}

	logger.Info("influxdb export enabled", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return &Client{writer: client, logger: logger}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.writer.Close()
}
