package global

import (
	"context"

	"FleetsIM/logger"
	ka "FleetsIM/service/kafka"
	mgoSrv "FleetsIM/service/mgo"
	pgSrv "FleetsIM/service/pg"
	redis "FleetsIM/service/storage/redis"
	ids "FleetsIM/tools/ids"
)

// ConfigAll 按依赖顺序初始化全部基础设施
func ConfigAll(ctx context.Context) error {
	if Cfg == nil {
		Cfg = DefaultConfig()
	}
	ConfigIds()
	if err := ConfigRedis(); err != nil {
		return err
	}
	if err := ConfigMgo(ctx); err != nil {
		return err
	}
	if err := ConfigPg(ctx); err != nil {
		return err
	}
	if err := ConfigKafka(); err != nil {
		return err
	}
	return nil
}

func ConfigIds() {
	ids.SetNodeID(100)
}

func ConfigRedis() error {
	return redis.InitRedis(redis.Config{
		Addr:     Cfg.RedisAddr,
		Password: Cfg.RedisPassword,
		DB:       Cfg.RedisDB,
	})
}

func ConfigMgo(ctx context.Context) error {
	return mgoSrv.InitMongo(ctx, &mgoSrv.Config{
		URI:         Cfg.MongoURI,
		Database:    Cfg.MongoDatabase,
		MaxPoolSize: 20,
	})
}

func ConfigPg(ctx context.Context) error {
	return pgSrv.InitPg(ctx, Cfg.PgURL)
}

func ConfigKafka() error {
	if err := ka.InitKafkaClient(Cfg.KafkaBrokers); err != nil {
		return err
	}
	return ka.InitSyncProducerFromClient()
}

// CloseAll 逆序释放
func CloseAll(ctx context.Context) {
	ka.CloseKafka()
	pgSrv.ClosePg()
	if err := mgoSrv.CloseMongo(ctx); err != nil {
		logger.Errorf("close mongo: %v", err)
	}
	if err := redis.CloseRedis(); err != nil {
		logger.Errorf("close redis: %v", err)
	}
}
