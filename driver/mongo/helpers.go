// Package driver provides the MongoDB implementation of core.Driver.
// This file translates core conditions and pipelines into BSON and decoded
// BSON back into plain Go values.
package driver

import (
	"fmt"
	"slices"
	"time"

	"github.com/leandroluk/golem-statichooks/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// buildFilter translates a condition tree into a MongoDB query document.
// A nil condition matches every document.
func buildFilter(condition *core.Condition) (bson.M, error) {
	if condition == nil {
		return bson.M{}, nil
	}
	if condition.Operator == nil {
		return nil, fmt.Errorf("mongo driver: condition on %q has no operator", condition.FieldName)
	}
	if condition.Operator.IsLogical() {
		childFilterList := make(bson.A, 0, len(condition.Children))
		for _, child := range condition.Children {
			childFilter, err := buildFilter(child)
			if err != nil {
				return nil, err
			}
			childFilterList = append(childFilterList, childFilter)
		}
		switch *condition.Operator {
		case core.OpAnd:
			return bson.M{"$and": childFilterList}, nil
		case core.OpOr:
			return bson.M{"$or": childFilterList}, nil
		default:
			return bson.M{"$nor": bson.A{bson.M{"$and": childFilterList}}}, nil
		}
	}

	fieldName := condition.FieldName
	switch *condition.Operator {
	case core.OpNil:
		return bson.M{fieldName: bson.M{"$eq": nil}}, nil
	case core.OpEq:
		return bson.M{fieldName: bson.M{"$eq": condition.Value}}, nil
	case core.OpNe:
		return bson.M{fieldName: bson.M{"$ne": condition.Value}}, nil
	case core.OpGt:
		return bson.M{fieldName: bson.M{"$gt": condition.Value}}, nil
	case core.OpGte:
		return bson.M{fieldName: bson.M{"$gte": condition.Value}}, nil
	case core.OpLt:
		return bson.M{fieldName: bson.M{"$lt": condition.Value}}, nil
	case core.OpLte:
		return bson.M{fieldName: bson.M{"$lte": condition.Value}}, nil
	case core.OpLike:
		pattern := toMongoLikePattern(fmt.Sprintf("%v", condition.Value))
		return bson.M{fieldName: primitive.Regex{Pattern: pattern, Options: "i"}}, nil
	case core.OpIn:
		array, ok := condition.Value.([]any)
		if !ok {
			array = []any{condition.Value}
		}
		return bson.M{fieldName: bson.M{"$in": array}}, nil
	}
	return nil, fmt.Errorf("mongo driver: unsupported operator %q", *condition.Operator)
}

// toMongoLikePattern converts a SQL-like pattern into an anchored MongoDB
// regex pattern.
//
// Example:
//
//	input := "%admin_"
//	regex := toMongoLikePattern(input)
//	// regex == "^.*admin.$"
func toMongoLikePattern(input string) string {
	return "^" + core.LikePattern(input) + "$"
}

// safeCondition returns the root condition of a Where clause, or nil when
// there is none.
func safeCondition(query *core.Where) *core.Condition {
	if query == nil {
		return nil
	}
	return query.Condition
}

func buildSort(sortList []core.Sort) bson.D {
	sortDoc := bson.D{}
	for _, sortItem := range sortList {
		direction := 1
		if sortItem.Order < 0 {
			direction = -1
		}
		sortDoc = append(sortDoc, bson.E{Key: sortItem.FieldName, Value: direction})
	}
	return sortDoc
}

// buildPipeline translates a core pipeline into aggregation stages.
func buildPipeline(pipeline core.Pipeline) (bson.A, error) {
	stageList := make(bson.A, 0, len(pipeline))
	for i, stage := range pipeline {
		switch stage.Kind {
		case core.StageMatch:
			filter, err := buildFilter(stage.Match)
			if err != nil {
				return nil, fmt.Errorf("mongo driver: stage %d: %w", i, err)
			}
			stageList = append(stageList, bson.D{{Key: "$match", Value: filter}})
		case core.StageSort:
			stageList = append(stageList, bson.D{{Key: "$sort", Value: buildSort(stage.Sort)}})
		case core.StageSkip:
			stageList = append(stageList, bson.D{{Key: "$skip", Value: int64(stage.N)}})
		case core.StageLimit:
			stageList = append(stageList, bson.D{{Key: "$limit", Value: int64(stage.N)}})
		case core.StageProject:
			projection := bson.D{}
			for _, name := range stage.Fields {
				projection = append(projection, bson.E{Key: name, Value: 1})
			}
			if !slices.Contains(stage.Fields, "_id") {
				projection = append(projection, bson.E{Key: "_id", Value: 0})
			}
			stageList = append(stageList, bson.D{{Key: "$project", Value: projection}})
		case core.StageCount:
			stageList = append(stageList, bson.D{{Key: "$count", Value: stage.As}})
		default:
			return nil, fmt.Errorf("mongo driver: stage %d: unsupported kind %q", i, stage.Kind)
		}
	}
	return stageList, nil
}

// normalizeValue converts driver specific BSON types into the plain Go values
// the rest of the ORM works with.
func normalizeValue(v any) any {
	switch value := v.(type) {
	case primitive.DateTime:
		return value.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(value.T), 0).UTC()
	case primitive.ObjectID:
		return value.Hex()
	case int32:
		return int64(value)
	case primitive.A:
		out := make([]any, 0, len(value))
		for _, item := range value {
			out = append(out, normalizeValue(item))
		}
		return out
	case bson.M:
		return normalizeDocument(value)
	case bson.D:
		return normalizeDocument(value.Map())
	default:
		return v
	}
}

func normalizeDocument(m bson.M) core.Document {
	doc := make(core.Document, len(m))
	for key, value := range m {
		doc[key] = normalizeValue(value)
	}
	return doc
}

// decodeRow normalizes a decoded row and drops the server generated ObjectID,
// which no schema field maps to.
func decodeRow(m bson.M) core.Document {
	if _, generated := m["_id"].(primitive.ObjectID); generated {
		delete(m, "_id")
	}
	return normalizeDocument(m)
}

// buildIndexes returns a unique index model per primary key or unique field.
func buildIndexes(schema *core.SchemaCore) []mongo.IndexModel {
	indexList := []mongo.IndexModel{}
	for _, field := range schema.Fields {
		if !field.IsPrimaryKey && !field.IsUnique {
			continue
		}
		indexList = append(indexList, mongo.IndexModel{
			Keys:    bson.D{{Key: field.DatabaseColumnName, Value: 1}},
			Options: mopt.Index().SetUnique(true),
		})
	}
	return indexList
}
