package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"BrowserPerfTraceKit/internal/config"
	"BrowserPerfTraceKit/internal/perftrace"
)

// archiveSchema 归档表结构，启动时按需创建
const archiveSchema = `
CREATE TABLE IF NOT EXISTS recorded_traces (
    id            BIGSERIAL PRIMARY KEY,
    generation    BIGINT      NOT NULL,
    target_url    TEXT        NOT NULL,
    recorded_at   TIMESTAMPTZ NOT NULL,
    event_count   INTEGER     NOT NULL,
    trace_min_us  BIGINT      NOT NULL,
    trace_max_us  BIGINT      NOT NULL,
    metrics       JSONB       NOT NULL DEFAULT '{}'::jsonb,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_recorded_traces_generation ON recorded_traces (generation);
`

// TraceArchive 基于PostgreSQL的录制归档，实现会话控制器的归档协作接口
type TraceArchive struct {
	pool *pgxpool.Pool
}

// ArchivedTrace 归档记录摘要
type ArchivedTrace struct {
	ID         int64     `json:"id"`
	Generation int64     `json:"generation"`
	TargetURL  string    `json:"target_url"`
	RecordedAt time.Time `json:"recorded_at"`
	EventCount int       `json:"event_count"`
	TraceMinUs int64     `json:"trace_min_us"`
	TraceMaxUs int64     `json:"trace_max_us"`
}

// Connect 创建连接池并确保归档表存在
func Connect(ctx context.Context, cfg *config.ArchiveConfig) (*TraceArchive, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析归档数据库配置失败: %w", err)
	}

	// 连接池参数
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("创建归档连接池失败: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("归档数据库不可达: %w", err)
	}

	if _, err := pool.Exec(ctx, archiveSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("初始化归档表失败: %w", err)
	}

	log.Println("✅ 录制归档数据库已连接")
	return &TraceArchive{pool: pool}, nil
}

// SaveTrace 归档一次录制的摘要与指标
func (a *TraceArchive) SaveTrace(ctx context.Context, record *perftrace.RecordedTrace) error {
	metrics, err := json.Marshal(record.Parsed.Metrics)
	if err != nil {
		return fmt.Errorf("序列化指标失败: %w", err)
	}

	_, err = a.pool.Exec(ctx, `
		INSERT INTO recorded_traces
			(generation, target_url, recorded_at, event_count, trace_min_us, trace_max_us, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.Generation,
		record.TargetURL,
		record.RecordedAt,
		len(record.Parsed.Events),
		record.Parsed.TraceMin,
		record.Parsed.TraceMax,
		metrics,
	)
	if err != nil {
		return fmt.Errorf("写入归档记录失败: %w", err)
	}
	return nil
}

// ListTraces 按录制时间倒序列出最近的归档记录
func (a *TraceArchive) ListTraces(ctx context.Context, limit int) ([]ArchivedTrace, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.pool.Query(ctx, `
		SELECT id, generation, target_url, recorded_at, event_count, trace_min_us, trace_max_us
		FROM recorded_traces
		ORDER BY recorded_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询归档记录失败: %w", err)
	}
	defer rows.Close()

	var traces []ArchivedTrace
	for rows.Next() {
		var tr ArchivedTrace
		if err := rows.Scan(&tr.ID, &tr.Generation, &tr.TargetURL, &tr.RecordedAt,
			&tr.EventCount, &tr.TraceMinUs, &tr.TraceMaxUs); err != nil {
			return nil, fmt.Errorf("读取归档记录失败: %w", err)
		}
		traces = append(traces, tr)
	}
	return traces, rows.Err()
}

// Ping 健康检查
func (a *TraceArchive) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return a.pool.Ping(pingCtx)
}

// Stats 连接池统计信息
func (a *TraceArchive) Stats() *pgxpool.Stat {
	return a.pool.Stat()
}

// Close 关闭连接池
func (a *TraceArchive) Close() {
	a.pool.Close()
	log.Println("✅ 录制归档连接池已关闭")
}
