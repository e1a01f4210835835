package message

import (
	"context"
	"time"

	errs "FleetsIM/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const canonicalCollection = "im_message"

// MongoCanonicalStore 正本存储的 Mongo 实现
type MongoCanonicalStore struct {
	Coll *mongo.Collection
}

func NewMongoCanonicalStore(db *mongo.Database) *MongoCanonicalStore {
	return &MongoCanonicalStore{Coll: db.Collection(canonicalCollection)}
}

type canonicalDoc struct {
	MessageID   string    `bson:"message_id"`
	SenderID    string    `bson:"sender_id"`
	TargetID    string    `bson:"target_id"`
	SessionType int32     `bson:"session_type"`
	ContentType int32     `bson:"content_type"`
	Content     string    `bson:"content"`
	SendTime    int64     `bson:"send_time"`
	CreateTime  time.Time `bson:"create_time"`
}

func (s *MongoCanonicalStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_message_id_unique"),
		},
		{
			Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "send_time", Value: -1}},
		},
	})
	return err
}

func (s *MongoCanonicalStore) Save(ctx context.Context, m *Message) error {
	_, err := s.Coll.InsertOne(ctx, &canonicalDoc{
		MessageID:   m.ID,
		SenderID:    m.SenderID,
		TargetID:    m.TargetID,
		SessionType: m.SessionType,
		ContentType: m.ContentType,
		Content:     m.Content,
		SendTime:    m.SendTime,
		CreateTime:  time.Now(),
	})
	if mongo.IsDuplicateKeyError(err) {
		// 正本重放：已存在即成功
		return nil
	}
	return err
}

func (s *MongoCanonicalStore) Get(ctx context.Context, id string) (*Message, error) {
	var doc canonicalDoc
	err := s.Coll.FindOne(ctx, bson.M{"message_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("message", "id", id)
	}
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:          doc.MessageID,
		SenderID:    doc.SenderID,
		TargetID:    doc.TargetID,
		SessionType: doc.SessionType,
		ContentType: doc.ContentType,
		Content:     doc.Content,
		SendTime:    doc.SendTime,
	}, nil
}
