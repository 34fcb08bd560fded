package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotifyChannel Postgres LISTEN/NOTIFY 通道名，payload 为集合名
const NotifyChannel = "motion_records_changed"

// 权限相关的 SQLSTATE
const (
	pqInsufficientPrivilege = "42501"
	pqInvalidAuthorization  = "28000"
	pqInvalidPassword       = "28P01"
)

// Schema 记录表结构
const Schema = `
CREATE TABLE IF NOT EXISTS motion_records (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_motion_records_data ON motion_records USING GIN (data);
`

// PostgresStore 基于 PostgreSQL jsonb 的存储
type PostgresStore struct {
	db     *sql.DB
	dsn    string // LISTEN 需要独立连接
	logger *zap.Logger
}

// NewPostgresStore 创建 Postgres 存储；dsn 为空时不支持 Subscribe
func NewPostgresStore(db *sql.DB, dsn string, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		dsn:    dsn,
		logger: logger,
	}
}

// EnsureSchema 创建记录表
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return mapPQError(fmt.Errorf("failed to create schema: %w", err))
	}
	return nil
}

// PutIfAbsent INSERT ... ON CONFLICT DO NOTHING
func (s *PostgresStore) PutIfAbsent(ctx context.Context, collection, id string, record any) (bool, error) {
	data, err := encode(record)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO motion_records (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, collection, id, []byte(data))
	if err != nil {
		return false, mapPQError(fmt.Errorf("failed to put %s/%s: %w", collection, id, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	s.notify(ctx, collection)
	return true, nil
}

// Update jsonb 顶层合并（data || patch）
func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}

	query := `
		UPDATE motion_records
		SET data = data || $3::jsonb
		WHERE collection = $1 AND id = $2
	`
	result, err := s.db.ExecContext(ctx, query, collection, id, patchJSON)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to update %s/%s: %w", collection, id, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}

	s.notify(ctx, collection)
	return nil
}

// Get 读取单条记录
func (s *PostgresStore) Get(ctx context.Context, collection, id string, dest any) error {
	query := `SELECT data FROM motion_records WHERE collection = $1 AND id = $2`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return mapPQError(fmt.Errorf("failed to get %s/%s: %w", collection, id, err))
	}
	return Record{ID: id, Data: data}.Decode(dest)
}

// List 等值过滤下推为 jsonb 包含（@>），排序与截断在内存完成
func (s *PostgresStore) List(ctx context.Context, q Query) ([]Record, error) {
	where := q.Where
	if where == nil {
		where = map[string]any{}
	}
	whereJSON, err := json.Marshal(where)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}

	query := `
		SELECT id, data FROM motion_records
		WHERE collection = $1 AND data @> $2::jsonb
	`
	rows, err := s.db.QueryContext(ctx, query, q.Collection, whereJSON)
	if err != nil {
		return nil, mapPQError(fmt.Errorf("failed to list %s: %w", q.Collection, err))
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", q.Collection, err)
		}
		records = append(records, Record{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, mapPQError(fmt.Errorf("failed to iterate %s: %w", q.Collection, err))
	}
	return applyQuery(records, q)
}

// Subscribe 通过 pq.Listener 监听变更通知
func (s *PostgresStore) Subscribe(ctx context.Context, q Query) (<-chan []Record, error) {
	if s.dsn == "" {
		return nil, errors.New("postgres store: subscribe requires a DSN")
	}

	listener := pq.NewListener(s.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("Postgres listener event",
				zap.Int("event", int(ev)),
				zap.Error(err),
			)
		}
	})
	if err := listener.Listen(NotifyChannel); err != nil {
		_ = listener.Close()
		return nil, mapPQError(fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err))
	}

	snap, err := s.List(ctx, q)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	out := make(chan []Record, 1)
	offer(out, snap)

	go func() {
		defer close(out)
		defer listener.Close()

		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// n 为 nil 表示连接重建，期间可能丢失通知，直接刷新
				if n != nil && n.Extra != q.Collection {
					continue
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
			case <-ping.C:
				go func() {
					_ = listener.Ping()
				}()
			}
		}
	}()
	return out, nil
}

// notify 发布变更通知（失败只记录日志，写入已成功）
func (s *PostgresStore) notify(ctx context.Context, collection string) {
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, collection); err != nil {
		s.logger.Warn("Failed to publish change notification",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}
}

// mapPQError 将权限类 SQLSTATE 映射为 ErrPermissionDenied
func mapPQError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqInsufficientPrivilege, pqInvalidAuthorization, pqInvalidPassword:
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}
	return err
}
