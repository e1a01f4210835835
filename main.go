package main

import (
	"context"
	"time"

	"FleetsIM/global"
	"FleetsIM/logger"
	"FleetsIM/module/conversation"
	"FleetsIM/module/mailbox"
	"FleetsIM/module/mailbox/seq"
	mailstore "FleetsIM/module/mailbox/store"
	"FleetsIM/module/message"
	"FleetsIM/module/message/handler"
	ka "FleetsIM/service/kafka"
	mgoSrv "FleetsIM/service/mgo"
	pgSrv "FleetsIM/service/pg"
	redisSrv "FleetsIM/service/storage/redis"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := global.ConfigAll(ctx); err != nil {
		logger.Errorf("init infrastructure: %v", err)
		return
	}
	defer global.CloseAll(context.Background())
	cfg := global.Cfg

	// 信箱：Mongo 副本存储 + Redis 发号 + Redis 未读缓存
	st := mailstore.NewMongoStore(mgoSrv.GetDB())
	if err := st.EnsureIndexes(ctx); err != nil {
		logger.Errorf("ensure mailbox indexes: %v", err)
		return
	}
	alloc := seq.NewAllocator(
		&seq.RedisCounter{Rdb: redisSrv.GetRedis()},
		st,
		cfg.Keys.SequencePrefix,
		cfg.Keys.SequenceTTL(),
	)
	cache := &mailbox.RedisUnreadCache{Rdb: redisSrv.GetRedis(), Prefix: cfg.Keys.UnreadCountPrefix}
	mbox := mailbox.NewService(st, alloc, cache, &cfg.Mailbox)

	// 会话摘要：Postgres
	sumStore := conversation.NewPgSummaryStore(pgSrv.GetPool())
	if err := sumStore.EnsureSchema(ctx); err != nil {
		logger.Errorf("ensure conversation schema: %v", err)
		return
	}
	summary := conversation.NewUpdater(sumStore, cfg.Message.SummarySnippetLength)

	// 消息正本与扇出
	canonical := message.NewMongoCanonicalStore(mgoSrv.GetDB())
	if err := canonical.EnsureIndexes(ctx); err != nil {
		logger.Errorf("ensure message indexes: %v", err)
		return
	}
	sender := message.NewSender(
		canonical,
		message.NewMongoGroupResolver(mgoSrv.GetDB()),
		mbox,
		summary,
		ka.SyncPublisher{},
		message.LogReportSink{},
		cfg.MessageTopic,
		&cfg.Message,
	)

	r := gin.Default()
	handler.New(sender, mbox, summary).Register(r)

	logger.Info("fleets-im listening on :8080")
	if err := r.Run(":8080"); err != nil {
		logger.Errorf("http server: %v", err)
	}
}
