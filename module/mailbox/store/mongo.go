package store

import (
	"context"
	"time"

	"FleetsIM/module/mailbox/model"
	errs "FleetsIM/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	EntryColl  *mongo.Collection // mailbox_message
	CursorColl *mongo.Collection // user_mailbox
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	e := model.MailboxEntry{}
	c := model.MailboxCursor{}
	return &MongoStore{
		EntryColl:  db.Collection(e.GetTableName()),
		CursorColl: db.Collection(c.GetTableName()),
	}
}

func (s *MongoStore) InsertEntry(ctx context.Context, e *model.MailboxEntry) error {
	_, err := s.EntryColl.InsertOne(ctx, e)
	return err
}

func (s *MongoStore) GetEntryByMessageID(ctx context.Context, owner, conv, messageID string) (*model.MailboxEntry, error) {
	var e model.MailboxEntry
	err := s.EntryColl.FindOne(ctx, bson.M{
		"owner_id": owner, "conversation_id": conv, "message_id": messageID,
	}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("entry", "owner", owner, "conv", conv, "messageId", messageID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkEntryRead 未读→已读的单条转移；非未读状态不算错误，返回 false
func (s *MongoStore) MarkEntryRead(ctx context.Context, owner, conv string, seq, readAtMS int64) (bool, error) {
	res, err := s.EntryColl.UpdateOne(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv, "seq": seq, "status": model.EntryStatusUnread},
		bson.M{"$set": bson.M{"status": model.EntryStatusRead, "read_time": readAtMS}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStore) MarkEntriesReadUpTo(ctx context.Context, owner, conv string, toSeq, readAtMS int64) (int64, error) {
	res, err := s.EntryColl.UpdateMany(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv,
			"seq": bson.M{"$lte": toSeq}, "status": model.EntryStatusUnread},
		bson.M{"$set": bson.M{"status": model.EntryStatusRead, "read_time": readAtMS}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) SoftDeleteEntry(ctx context.Context, owner, conv string, seq int64) (bool, bool, error) {
	res := s.EntryColl.FindOneAndUpdate(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv, "seq": seq,
			"status": bson.M{"$ne": model.EntryStatusDeleted}},
		bson.M{"$set": bson.M{"status": model.EntryStatusDeleted}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	)
	var before model.MailboxEntry
	if err := res.Decode(&before); err != nil {
		if err == mongo.ErrNoDocuments {
			return false, false, nil
		}
		return false, false, err
	}
	return before.Status == model.EntryStatusUnread, true, nil
}

func (s *MongoStore) ClearEntries(ctx context.Context, owner, conv string) (int64, error) {
	res, err := s.EntryColl.UpdateMany(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv,
			"status": bson.M{"$ne": model.EntryStatusDeleted}},
		bson.M{"$set": bson.M{"status": model.EntryStatusDeleted}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// RangeEntries seq > fromSeq 升序分页，不含已删除副本
func (s *MongoStore) RangeEntries(ctx context.Context, owner, conv string, fromSeq, limit int64) ([]*model.MailboxEntry, error) {
	cur, err := s.EntryColl.Find(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv,
			"seq":    bson.M{"$gt": fromSeq},
			"status": bson.M{"$ne": model.EntryStatusDeleted}},
		options.Find().SetSort(bson.M{"seq": 1}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*model.MailboxEntry
	for cur.Next(ctx) {
		var e model.MailboxEntry
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, cur.Err()
}

func (s *MongoStore) CountUnread(ctx context.Context, owner, conv string) (int64, error) {
	return s.EntryColl.CountDocuments(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv, "status": model.EntryStatusUnread})
}

func (s *MongoStore) CountUnreadTotal(ctx context.Context, owner string) (int64, error) {
	return s.EntryColl.CountDocuments(ctx,
		bson.M{"owner_id": owner, "status": model.EntryStatusUnread})
}

func (s *MongoStore) MaxEntrySeq(ctx context.Context, owner, conv string) (int64, error) {
	cur, err := s.EntryColl.Find(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv},
		options.Find().SetSort(bson.M{"seq": -1}).SetLimit(1).
			SetProjection(bson.M{"seq": 1}),
	)
	if err != nil {
		return 0, err
	}
	defer func() { _ = cur.Close(ctx) }()
	if cur.Next(ctx) {
		var e model.MailboxEntry
		if err := cur.Decode(&e); err != nil {
			return 0, err
		}
		return e.Seq, nil
	}
	return 0, cur.Err()
}

func (s *MongoStore) MaxDurableSeq(ctx context.Context, owner, conv string) (int64, error) {
	max, err := s.MaxEntrySeq(ctx, owner, conv)
	if err != nil {
		return 0, err
	}
	c, err := s.GetCursor(ctx, owner, conv)
	if err != nil {
		if s.IsNotFound(err) {
			return max, nil
		}
		return 0, err
	}
	if c.MaxSeq > max {
		max = c.MaxSeq
	}
	return max, nil
}

// EnsureCursor 首写懒创建，计数清零
func (s *MongoStore) EnsureCursor(ctx context.Context, owner, conv string, convType int32) error {
	now := time.Now()
	_, err := s.CursorColl.UpdateOne(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv},
		bson.M{"$setOnInsert": bson.M{
			"owner_id": owner, "conversation_id": conv,
			"conversation_type": convType,
			"max_seq":           int64(0),
			"unread_count":      int64(0),
			"last_message_id":   "",
			"last_message_time": int64(0),
			"create_time":       now,
			"update_time":       now,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) GetCursor(ctx context.Context, owner, conv string) (*model.MailboxCursor, error) {
	var c model.MailboxCursor
	err := s.CursorColl.FindOne(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("cursor", "owner", owner, "conv", conv)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) ListCursors(ctx context.Context, owner string) ([]*model.MailboxCursor, error) {
	cur, err := s.CursorColl.Find(ctx, bson.M{"owner_id": owner},
		options.Find().SetSort(bson.M{"conversation_id": 1}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*model.MailboxCursor
	for cur.Next(ctx) {
		var c model.MailboxCursor
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

// BumpCursor 写入后推进游标：max_seq 只升不降；未读按需 +1；
// 最后一条指针带时间护栏，乱序补写不回退
func (s *MongoStore) BumpCursor(ctx context.Context, owner, conv string, seq int64, messageID string, sendTimeMS int64, incrUnread bool) error {
	update := bson.M{
		"$max": bson.M{"max_seq": seq},
		"$set": bson.M{"update_time": time.Now()},
	}
	if incrUnread {
		update["$inc"] = bson.M{"unread_count": int64(1)}
	}
	if _, err := s.CursorColl.UpdateOne(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv}, update); err != nil {
		return err
	}

	_, err := s.CursorColl.UpdateOne(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv,
			"last_message_time": bson.M{"$lte": sendTimeMS}},
		bson.M{"$set": bson.M{"last_message_id": messageID, "last_message_time": sendTimeMS}},
	)
	return err
}

func (s *MongoStore) SetUnread(ctx context.Context, owner, conv string, n int64) error {
	if n < 0 {
		n = 0
	}
	_, err := s.CursorColl.UpdateOne(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv},
		bson.M{"$set": bson.M{"unread_count": n, "update_time": time.Now()}},
	)
	return err
}

// DecrUnread 未读数 -1，下限0（过滤条件保证不产生负数）
func (s *MongoStore) DecrUnread(ctx context.Context, owner, conv string) error {
	_, err := s.CursorColl.UpdateOne(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv,
			"unread_count": bson.M{"$gt": int64(0)}},
		bson.M{"$inc": bson.M{"unread_count": int64(-1)},
			"$set": bson.M{"update_time": time.Now()}},
	)
	return err
}

func (s *MongoStore) ZeroUnread(ctx context.Context, owner, conv string) error {
	return s.SetUnread(ctx, owner, conv, 0)
}

// ResyncCursor 修复：游标可由副本集合安全重导（写副本成功但游标更新失败时的补偿）。
// max_seq 只升不降：副本可能已被保留期清理，重导不能压低序列水位
func (s *MongoStore) ResyncCursor(ctx context.Context, owner, conv string) (*CursorStats, error) {
	maxSeq, err := s.MaxDurableSeq(ctx, owner, conv)
	if err != nil {
		return nil, err
	}
	unread, err := s.CountUnread(ctx, owner, conv)
	if err != nil {
		return nil, err
	}

	stats := &CursorStats{MaxSeq: maxSeq, UnreadCount: unread}

	// 指针取最新的未删除副本
	latest, err := s.RangeEntries(ctx, owner, conv, maxSeq-1, 1)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		all, err := s.EntryColl.Find(ctx,
			bson.M{"owner_id": owner, "conversation_id": conv,
				"status": bson.M{"$ne": model.EntryStatusDeleted}},
			options.Find().SetSort(bson.M{"seq": -1}).SetLimit(1))
		if err != nil {
			return nil, err
		}
		defer func() { _ = all.Close(ctx) }()
		if all.Next(ctx) {
			var e model.MailboxEntry
			if err := all.Decode(&e); err != nil {
				return nil, err
			}
			latest = append(latest, &e)
		}
	}
	set := bson.M{
		"unread_count": stats.UnreadCount,
		"update_time":  time.Now(),
	}
	if len(latest) > 0 {
		stats.LastMessageID = latest[len(latest)-1].MessageID
		stats.LastMessageTime = latest[len(latest)-1].SendTime
		set["last_message_id"] = stats.LastMessageID
		set["last_message_time"] = stats.LastMessageTime
	}

	_, err = s.CursorColl.UpdateOne(ctx,
		bson.M{"owner_id": owner, "conversation_id": conv},
		bson.M{"$set": set, "$max": bson.M{"max_seq": stats.MaxSeq}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *MongoStore) IsDupEntry(err error) bool { return mongo.IsDuplicateKeyError(err) }

func (s *MongoStore) IsNotFound(err error) bool {
	return err == mongo.ErrNoDocuments || errs.IsNotFound(err)
}

func (s *MongoStore) IsTransient(err error) bool {
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
