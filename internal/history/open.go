package history

import (
	"fmt"

	"loadtest-engine/internal/config"
)

// Open builds the repository selected by HISTORY_BACKEND. Network backends connect lazily.
func Open(s *config.Settings) (Repository, error) {
	switch s.HistoryBackend {
	case config.HistoryMemory, "":
		return NewMemoryRepository(0), nil
	case config.HistoryFile:
		return NewFileRepository(s.HistoryPath, DefaultFileQuota), nil
	case config.HistoryRedis:
		return NewRedisRepository(s.RedisUrl), nil
	case config.HistoryPostgres:
		return NewPostgresRepository(s.PostgresUrl), nil
	case config.HistoryMongoDb:
		return NewMongoRepository(s.MongoDbUrl, s.MongoDbDatabase), nil
	case config.HistoryCassandra:
		return NewCassandraRepository(s.CassandraContactPoints, s.CassandraLocalDc, s.CassandraKeyspace), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", s.HistoryBackend)
	}
}
