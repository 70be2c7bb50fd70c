package schema

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSource infers a schema for a schema-less document store by
// sampling documents from every collection.
type MongoSource struct {
	db         *mongo.Database
	sampleSize int64
}

func NewMongoSource(db *mongo.Database, sampleSize int64) *MongoSource {
	if sampleSize <= 0 {
		sampleSize = 50
	}
	return &MongoSource{db: db, sampleSize: sampleSize}
}

// Load lists the collections and infers field names, types and
// nullability from a bounded sample of each. Field order is sorted by
// name: sampling has no stable natural order, and the slicer needs a
// deterministic input.
func (m *MongoSource) Load(ctx context.Context) (Schema, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)

	var out Schema
	for _, name := range names {
		fields, err := m.sampleFields(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", name, err)
		}
		out = append(out, Element{Name: name, Fields: fields})
	}
	return out, nil
}

func (m *MongoSource) sampleFields(ctx context.Context, collection string) ([]Field, error) {
	cursor, err := m.db.Collection(collection).Find(ctx, bson.D{}, options.Find().SetLimit(m.sampleSize))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	types := map[string]map[string]bool{}
	nullable := map[string]bool{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		for key, value := range doc {
			if types[key] == nil {
				types[key] = map[string]bool{}
			}
			if value == nil {
				nullable[key] = true
				continue
			}
			types[key][fmt.Sprintf("%T", value)] = true
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		typeNames := make([]string, 0, len(types[name]))
		for t := range types[name] {
			typeNames = append(typeNames, t)
		}
		sort.Strings(typeNames)
		typeStr := "unknown"
		if len(typeNames) > 0 {
			typeStr = typeNames[0]
			for _, t := range typeNames[1:] {
				typeStr += ", " + t
			}
		}
		fields = append(fields, Field{
			Name:     name,
			Type:     typeStr,
			Nullable: nullable[name],
		})
	}
	return fields, nil
}
