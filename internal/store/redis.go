package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const maxWatchRetries = 5

// RedisStore 基于 Redis 的存储
//
// 键布局:
//
//	{prefix}{collection}:{id}        记录 JSON
//	{prefix}{collection}:index       ZSET，score 为写入时间（毫秒）
//	{prefix}changes:{collection}     Pub/Sub 变更通知
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *RedisStore) recordKey(collection, id string) string {
	return s.prefix + collection + ":" + id
}

func (s *RedisStore) indexKey(collection string) string {
	return s.prefix + collection + ":index"
}

func (s *RedisStore) channel(collection string) string {
	return s.prefix + "changes:" + collection
}

// putIfAbsentScript 记录写入、索引登记、变更发布在同一脚本内完成
// KEYS[1] 记录键，KEYS[2] 索引键；ARGV: 记录 JSON、score、id、变更通道
var putIfAbsentScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
	redis.call('PUBLISH', ARGV[4], ARGV[3])
	return 1
end
return 0
`)

// PutIfAbsent 原子写入：记录不存在时写入并登记索引，失败时不留下未索引的记录
func (s *RedisStore) PutIfAbsent(ctx context.Context, collection, id string, record any) (bool, error) {
	data, err := encode(record)
	if err != nil {
		return false, err
	}

	keys := []string{s.recordKey(collection, id), s.indexKey(collection)}
	n, err := putIfAbsentScript.Run(ctx, s.client, keys,
		string(data), time.Now().UnixMilli(), id, s.channel(collection),
	).Int()
	if err != nil {
		return false, mapRedisError(fmt.Errorf("failed to put %s/%s: %w", collection, id, err))
	}
	return n == 1, nil
}

// Update WATCH/MULTI 读改写，冲突时重试
func (s *RedisStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	key := s.recordKey(collection, id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		if err != nil {
			return err
		}

		merged, err := mergePatch(data, patch)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, []byte(merged), 0)
			pipe.Publish(ctx, s.channel(collection), id)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("Record changed during update, retrying",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Int("attempt", i+1),
			)
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return mapRedisError(fmt.Errorf("failed to update %s/%s: %w", collection, id, err))
	}
	return fmt.Errorf("failed to update %s/%s: too many concurrent modifications", collection, id)
}

// Get 读取单条记录
func (s *RedisStore) Get(ctx context.Context, collection, id string, dest any) error {
	data, err := s.client.Get(ctx, s.recordKey(collection, id)).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return mapRedisError(fmt.Errorf("failed to get %s/%s: %w", collection, id, err))
	}
	return Record{ID: id, Data: data}.Decode(dest)
}

// List 按索引读取全部记录后过滤排序
func (s *RedisStore) List(ctx context.Context, q Query) ([]Record, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(q.Collection), 0, -1).Result()
	if err != nil {
		return nil, mapRedisError(fmt.Errorf("failed to list %s: %w", q.Collection, err))
	}
	if len(ids) == 0 {
		return []Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(q.Collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, mapRedisError(fmt.Errorf("failed to load %s: %w", q.Collection, err))
	}

	records := make([]Record, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// 索引中存在但记录已被外部清理
			continue
		}
		records = append(records, Record{ID: ids[i], Data: []byte(str)})
	}
	return applyQuery(records, q)
}

// Subscribe 订阅集合变更，每次变更推送一次完整快照
func (s *RedisStore) Subscribe(ctx context.Context, q Query) (<-chan []Record, error) {
	ps := s.client.Subscribe(ctx, s.channel(q.Collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, mapRedisError(fmt.Errorf("failed to subscribe %s: %w", q.Collection, err))
	}

	snap, err := s.List(ctx, q)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan []Record, 1)
	offer(out, snap)

	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				snap, err := s.List(ctx, q)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Warn("Failed to refresh subscription snapshot",
							zap.String("collection", q.Collection),
							zap.Error(err),
						)
					}
					continue
				}
				offer(out, snap)
			}
		}
	}()
	return out, nil
}

// mapRedisError 将 ACL/认证错误映射为 ErrPermissionDenied
func mapRedisError(err error) error {
	if err == nil {
		return nil
	}
	// 取最内层的服务端错误
	inner := err
	for u := errors.Unwrap(inner); u != nil; u = errors.Unwrap(inner) {
		inner = u
	}
	msg := inner.Error()
	if strings.HasPrefix(msg, "NOPERM") || strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "WRONGPASS") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}
