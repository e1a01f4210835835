package pg

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pgOnce sync.Once
	pgMgr  *PgManager
)

type PgManager struct {
	pool *pgxpool.Pool
}

// InitPg 初始化 pgx 连接池（单例），会话摘要表走这里
func InitPg(ctx context.Context, databaseURL string) error {
	var initErr error
	pgOnce.Do(func() {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			initErr = err
			return
		}

		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := pool.Ping(cctx); err != nil {
			initErr = err
			return
		}
		pgMgr = &PgManager{pool: pool}
	})
	return initErr
}

func GetPool() *pgxpool.Pool {
	if pgMgr == nil {
		panic("Postgres not initialized, call InitPg first")
	}
	return pgMgr.pool
}

func ClosePg() {
	if pgMgr != nil && pgMgr.pool != nil {
		pgMgr.pool.Close()
	}
}
