package message

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const groupMemberCollection = "group_member"

// MongoGroupResolver 群成员表：每个成员一行 {group_id, user_id}
type MongoGroupResolver struct {
	Coll *mongo.Collection
}

func NewMongoGroupResolver(db *mongo.Database) *MongoGroupResolver {
	return &MongoGroupResolver{Coll: db.Collection(groupMemberCollection)}
}

func (r *MongoGroupResolver) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	cur, err := r.Coll.Find(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc struct {
			UserID string `bson:"user_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.UserID)
	}
	return out, cur.Err()
}
