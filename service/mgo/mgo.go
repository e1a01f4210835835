package mgo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	mgoOnce sync.Once
	mgoMgr  *MongoManager
)

type MongoManager struct {
	client *mongo.Client
	db     *mongo.Database
}

type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	Username    string
	Password    string
}

// InitMongo 初始化 Mongo 管理器（单例）
func InitMongo(ctx context.Context, cfg *Config) error {
	var initErr error
	mgoOnce.Do(func() {
		opts := options.Client().ApplyURI(cfg.URI)
		if cfg.MaxPoolSize > 0 {
			opts.SetMaxPoolSize(cfg.MaxPoolSize)
		}
		if cfg.Username != "" {
			opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
		}

		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		cli, err := mongo.Connect(cctx, opts)
		if err != nil {
			initErr = err
			return
		}
		if err := cli.Ping(cctx, readpref.Primary()); err != nil {
			initErr = err
			return
		}
		mgoMgr = &MongoManager{client: cli, db: cli.Database(cfg.Database)}
	})
	return initErr
}

func GetDB() *mongo.Database {
	if mgoMgr == nil {
		panic("Mongo not initialized, call InitMongo first")
	}
	return mgoMgr.db
}

func CloseMongo(ctx context.Context) error {
	if mgoMgr != nil && mgoMgr.client != nil {
		return mgoMgr.client.Disconnect(ctx)
	}
	return nil
}
