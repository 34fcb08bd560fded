package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrPermissionDenied 存储拒绝了本次操作（权限/认证失败）
	ErrPermissionDenied = errors.New("permission denied")
)

// Query 集合查询条件
type Query struct {
	Collection string
	Where      map[string]any // 顶层字段等值过滤
	OrderBy    string         // 顶层字段名；为空时按 ID 排序
	Desc       bool
	Limit      int // <= 0 表示不限
}

// Record 存储中的一条记录
type Record struct {
	ID   string
	Data json.RawMessage
}

// Decode 反序列化记录内容
func (r Record) Decode(dest any) error {
	if err := json.Unmarshal(r.Data, dest); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", r.ID, err)
	}
	return nil
}

// Store 只追加的键值存储（外部协作者）
// 写入以 (collection, id) 为键；Subscribe 先推送当前快照，之后每次集合变化推送新快照
type Store interface {
	PutIfAbsent(ctx context.Context, collection, id string, record any) (bool, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Get(ctx context.Context, collection, id string, dest any) error
	List(ctx context.Context, q Query) ([]Record, error)
	Subscribe(ctx context.Context, q Query) (<-chan []Record, error)
}

// IsPermissionDenied 是否为权限错误
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func encode(record any) (json.RawMessage, error) {
	if raw, ok := record.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// mergePatch 顶层字段浅合并
func mergePatch(data json.RawMessage, patch map[string]any) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode record for patch: %w", err)
	}
	if doc == nil {
		doc = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		doc[k] = v
	}
	return encode(doc)
}

// applyQuery 过滤、排序、截断（各后端共用同一语义）
func applyQuery(records []Record, q Query) ([]Record, error) {
	type row struct {
		rec Record
		doc map[string]any
	}
	rows := make([]row, 0, len(records))
	for _, rec := range records {
		var doc map[string]any
		if err := json.Unmarshal(rec.Data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", rec.ID, err)
		}
		if !matches(doc, q.Where) {
			continue
		}
		rows = append(rows, row{rec: rec, doc: doc})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		c := 0
		if q.OrderBy != "" {
			c = compareValues(rows[i].doc[q.OrderBy], rows[j].doc[q.OrderBy])
		}
		if c == 0 {
			c = compareStrings(rows[i].rec.ID, rows[j].rec.ID)
			// ID 作为次序键始终升序，保证结果确定
			return c < 0
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.rec
	}
	return out, nil
}

func matches(doc map[string]any, where map[string]any) bool {
	for k, want := range where {
		got, ok := doc[k]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

// equalValues 以 JSON 表示比较，避免 float64/int 等类型差异
func equalValues(a, b any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ja) == string(jb)
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		ta, errA := time.Parse(time.RFC3339Nano, av)
		tb, errB := time.Parse(time.RFC3339Nano, bv)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		return compareStrings(av, bv)
	case float64:
		bv, ok := b.(float64)
		if !ok {
			break
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv, ok := b.(bool)
		if !ok || av == bv {
			break
		}
		if !av {
			return -1
		}
		return 1
	}
	// 缺失字段排在最前
	switch {
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
