package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pscheid92/chatrelay/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "relay"
	takeBatchSize    = 256
)

// RetentionStore is a domain.RetentionStore backed by Redis.
type RetentionStore struct {
	rdb       *goredis.Client
	recordKey string
	indexKey  string
	batchSize int
}

var _ domain.RetentionStore = (*RetentionStore)(nil)

// NewRetentionStore stores records under "<prefix>:records"; an empty prefix
// means "relay".
func NewRetentionStore(rdb *goredis.Client, prefix string) *RetentionStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RetentionStore{
		rdb:       rdb,
		recordKey: prefix + ":records",
		indexKey:  prefix + ":records:by_arrival",
		batchSize: takeBatchSize,
	}
}

func (s *RetentionStore) Put(ctx context.Context, rec domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	inserted, err := putRecordScript.Run(ctx, s.rdb,
		[]string{s.recordKey, s.indexKey},
		rec.ID.String(),
		data,
		arrivalScore(rec.ArrivedAt),
	).Int()
	if err != nil {
		return fmt.Errorf("put record script failed: %w", err)
	}
	if inserted == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateRecord, rec.ID)
	}
	return nil
}

// TakeExpired drains expired records in batches. Each batch is atomic; records
// put concurrently with a younger arrival are never touched. If a later batch
// fails, the records taken so far are returned together with the error.
func (s *RetentionStore) TakeExpired(ctx context.Context, now time.Time, lifetime time.Duration) ([]domain.Record, error) {
	cutoff := arrivalScore(now.Add(-lifetime))

	var expired []domain.Record
	for {
		reply, err := takeExpiredScript.Run(ctx, s.rdb,
			[]string{s.recordKey, s.indexKey},
			cutoff,
			s.batchSize,
		).Slice()
		if err != nil {
			return expired, fmt.Errorf("take expired script failed: %w", err)
		}

		removed, records, err := parseTakeReply(reply)
		if err != nil {
			return expired, err
		}

		for _, item := range records {
			var rec domain.Record
			if err := json.Unmarshal([]byte(item), &rec); err != nil {
				// already removed from Redis; nothing left to announce
				slog.WarnContext(ctx, "Dropping undecodable record", "error", err)
				continue
			}
			expired = append(expired, rec)
		}

		if removed < int64(s.batchSize) {
			return expired, nil
		}
	}
}

func parseTakeReply(reply []any) (int64, []string, error) {
	if len(reply) == 0 {
		return 0, nil, errors.New("take expired script: empty reply")
	}
	removed, ok := reply[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("take expired script: unexpected count %T", reply[0])
	}

	records := make([]string, 0, len(reply)-1)
	for _, item := range reply[1:] {
		str, ok := item.(string)
		if !ok {
			return removed, nil, fmt.Errorf("take expired script: unexpected record %T", item)
		}
		records = append(records, str)
	}
	return removed, records, nil
}

func (s *RetentionStore) Len(ctx context.Context) (int, error) {
	n, err := s.rdb.ZCard(ctx, s.indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(n), nil
}

func (s *RetentionStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func arrivalScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}
