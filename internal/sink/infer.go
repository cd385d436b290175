package sink

import (
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
)

// columnKind is the per-batch inferred type of one column.
type columnKind int

const (
	// kindNull marks an all-null column. Parquet has no standalone null
	// leaf, so these columns are stored as optional strings with every
	// cell null.
	kindNull columnKind = iota
	kindBool
	kindInt
	kindFloat
	kindString
)

// inferKind inspects the first non-null value of a column across the batch.
// Structured values (maps, lists) fall back to their JSON text, so they
// infer as strings.
func inferKind(batch []map[string]any, column string) columnKind {
	for _, rec := range batch {
		v, ok := rec[column]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case bool:
			return kindBool
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return kindInt
		case float32, float64:
			return kindFloat
		case string:
			return kindString
		default:
			return kindString
		}
	}
	return kindNull
}

func parquetNode(kind columnKind) parquet.Node {
	switch kind {
	case kindBool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	case kindInt:
		return parquet.Optional(parquet.Int(64))
	case kindFloat:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	default:
		return parquet.Optional(parquet.String())
	}
}

// coerceValue converts a cell to the column's inferred kind. A value that
// cannot be represented in the column type becomes null rather than failing
// the whole batch.
func coerceValue(v any, kind columnKind) (any, bool) {
	switch kind {
	case kindBool:
		b, ok := v.(bool)
		return b, ok
	case kindInt:
		switch t := v.(type) {
		case int:
			return int64(t), true
		case int8:
			return int64(t), true
		case int16:
			return int64(t), true
		case int32:
			return int64(t), true
		case int64:
			return t, true
		case uint:
			return int64(t), true
		case uint8:
			return int64(t), true
		case uint16:
			return int64(t), true
		case uint32:
			return int64(t), true
		case uint64:
			return int64(t), true
		case float32:
			return int64(t), true
		case float64:
			return int64(t), true
		default:
			return nil, false
		}
	case kindFloat:
		switch t := v.(type) {
		case float32:
			return float64(t), true
		case float64:
			return t, true
		case int:
			return float64(t), true
		case int64:
			return float64(t), true
		default:
			return nil, false
		}
	case kindString:
		switch t := v.(type) {
		case string:
			return t, true
		case map[string]any, []any, []string:
			encoded, err := event.EncodeJSON(t)
			if err != nil {
				return nil, false
			}
			return string(encoded), true
		default:
			return fmt.Sprint(t), true
		}
	default:
		return nil, false
	}
}
