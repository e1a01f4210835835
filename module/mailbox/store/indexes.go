package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func indexOptions(unique bool, name string) *options.IndexOptions {
	opts := options.Index()
	opts.SetUnique(unique)
	opts.SetName(name)
	return opts
}

// EnsureIndexes 建信箱两张集合的索引。
// (owner, conv, message_id) 唯一索引是写入幂等的依据：重试命中 dup key 即视为已落。
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.CursorColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "conversation_id", Value: 1}},
			Options: indexOptions(true, "idx_owner_conversation_unique"),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "max_seq", Value: -1}},
			Options: indexOptions(false, "idx_owner_sequence"),
		},
	})
	if err != nil {
		return err
	}

	_, err = s.EntryColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "conversation_id", Value: 1},
				{Key: "message_id", Value: 1}},
			Options: indexOptions(true, "idx_owner_conversation_message_unique"),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "conversation_id", Value: 1},
				{Key: "seq", Value: -1}},
			Options: indexOptions(true, "idx_owner_conversation_sequence"),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "status", Value: 1},
				{Key: "create_time", Value: -1}},
			Options: indexOptions(false, "idx_owner_status_time"),
		},
		{
			// 到期自动清理（保留窗口见 global.MailboxConfig.EntryExpireDays）
			Keys: bson.D{{Key: "expire_time", Value: 1}},
			Options: options.Index().SetName("idx_expire_time_ttl").
				SetExpireAfterSeconds(0),
		},
	})
	return err
}
