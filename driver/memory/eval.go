// Package memory provides an in-process implementation of core.Driver.
// This file evaluates conditions and pipeline stages against documents.
package memory

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/leandroluk/golem-statichooks/core"
)

// Matches reports whether doc satisfies condition. A nil condition matches
// every document.
func Matches(doc core.Document, condition *core.Condition) (bool, error) {
	if condition == nil {
		return true, nil
	}
	if condition.Operator == nil {
		return false, fmt.Errorf("memory: condition on %q has no operator", condition.FieldName)
	}

	switch *condition.Operator {
	case core.OpAnd:
		for _, child := range condition.Children {
			ok, err := Matches(doc, child)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case core.OpOr:
		for _, child := range condition.Children {
			ok, err := Matches(doc, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case core.OpNot:
		ok, err := Matches(doc, (&core.Condition{Operator: &core.OpAnd, Children: condition.Children}))
		return !ok, err
	}

	value, present := doc[condition.FieldName]
	switch *condition.Operator {
	case core.OpNil:
		return !present || isNil(value), nil
	case core.OpEq:
		return equal(value, condition.Value), nil
	case core.OpNe:
		return !equal(value, condition.Value), nil
	case core.OpGt, core.OpGte, core.OpLt, core.OpLte:
		if !present || isNil(value) {
			return false, nil
		}
		cmp, ok := compare(value, condition.Value)
		if !ok {
			return false, nil
		}
		switch *condition.Operator {
		case core.OpGt:
			return cmp > 0, nil
		case core.OpGte:
			return cmp >= 0, nil
		case core.OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case core.OpLike:
		if !present || isNil(value) {
			return false, nil
		}
		re, err := regexp.Compile("(?i)^" + core.LikePattern(fmt.Sprintf("%v", condition.Value)) + "$")
		if err != nil {
			return false, err
		}
		return re.MatchString(fmt.Sprintf("%v", value)), nil
	case core.OpIn:
		valueList, ok := condition.Value.([]any)
		if !ok {
			valueList = []any{condition.Value}
		}
		for _, candidate := range valueList {
			if equal(value, candidate) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("memory: unsupported operator %q", *condition.Operator)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func equal(a, b any) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers, strings and times. ok is false for values of
// incomparable kinds.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), true
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb), true
		}
	}
	return 0, false
}

// sortDocuments orders documents in place. Missing values sort first.
func sortDocuments(documentList []core.Document, sortList []core.Sort) {
	if len(sortList) == 0 {
		return
	}
	sort.SliceStable(documentList, func(i, j int) bool {
		for _, s := range sortList {
			a, b := documentList[i][s.FieldName], documentList[j][s.FieldName]
			var cmp int
			switch {
			case isNil(a) && isNil(b):
				cmp = 0
			case isNil(a):
				cmp = -1
			case isNil(b):
				cmp = 1
			default:
				cmp, _ = compare(a, b)
			}
			if s.Order < 0 {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

func page(documentList []core.Document, offset, limit int) []core.Document {
	if offset > 0 {
		if offset >= len(documentList) {
			return []core.Document{}
		}
		documentList = documentList[offset:]
	}
	if limit > 0 && limit < len(documentList) {
		documentList = documentList[:limit]
	}
	return documentList
}

func filter(documentList []core.Document, condition *core.Condition) ([]core.Document, error) {
	out := make([]core.Document, 0, len(documentList))
	for _, doc := range documentList {
		ok, err := Matches(doc, condition)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// runPipeline applies the stages in order to documentList.
func runPipeline(documentList []core.Document, pipeline core.Pipeline) ([]core.Document, error) {
	var err error
	for _, stage := range pipeline {
		switch stage.Kind {
		case core.StageMatch:
			if documentList, err = filter(documentList, stage.Match); err != nil {
				return nil, err
			}
		case core.StageSort:
			sortDocuments(documentList, stage.Sort)
		case core.StageSkip:
			documentList = page(documentList, stage.N, 0)
		case core.StageLimit:
			documentList = page(documentList, 0, stage.N)
		case core.StageProject:
			projected := make([]core.Document, 0, len(documentList))
			for _, doc := range documentList {
				out := make(core.Document, len(stage.Fields))
				for _, name := range stage.Fields {
					if v, ok := doc[name]; ok {
						out[name] = v
					}
				}
				projected = append(projected, out)
			}
			documentList = projected
		case core.StageCount:
			if len(documentList) == 0 {
				return []core.Document{}, nil // $count emits nothing for an empty stream
			}
			documentList = []core.Document{{stage.As: int64(len(documentList))}}
		default:
			return nil, fmt.Errorf("memory: unsupported stage %q", stage.Kind)
		}
	}
	return documentList, nil
}
