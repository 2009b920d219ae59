package logcollection

import (
	"time"
)

// LogField is a structured log field independent of the logging backend
type LogField struct {
	Key   string
	Value interface{}
	Type  FieldType
}

// FieldType identifies how the field should be encoded
type FieldType int

const (
	StringField FieldType = iota
	IntField
	Int64Field
	Uint64Field
	Float64Field
	BoolField
	DurationField
	TimeField
	ErrorField
)

func (ft FieldType) String() string {
	switch ft {
	case StringField:
		return "string"
	case IntField:
		return "int"
	case Int64Field:
		return "int64"
	case Uint64Field:
		return "uint64"
	case Float64Field:
		return "float64"
	case BoolField:
		return "bool"
	case DurationField:
		return "duration"
	case TimeField:
		return "time"
	case ErrorField:
		return "error"
	default:
		return "unknown"
	}
}

func String(key, value string) LogField {
	return LogField{Key: key, Value: value, Type: StringField}
}

func Int(key string, value int) LogField {
	return LogField{Key: key, Value: value, Type: IntField}
}

func Int64(key string, value int64) LogField {
	return LogField{Key: key, Value: value, Type: Int64Field}
}

func Uint64(key string, value uint64) LogField {
	return LogField{Key: key, Value: value, Type: Uint64Field}
}

func Float64(key string, value float64) LogField {
	return LogField{Key: key, Value: value, Type: Float64Field}
}

func Bool(key string, value bool) LogField {
	return LogField{Key: key, Value: value, Type: BoolField}
}

func Duration(key string, value time.Duration) LogField {
	return LogField{Key: key, Value: value, Type: DurationField}
}

func Time(key string, value time.Time) LogField {
	return LogField{Key: key, Value: value, Type: TimeField}
}

// Error creates an error field, always keyed "error"
func Error(err error) LogField {
	return LogField{Key: "error", Value: err, Type: ErrorField}
}

// Unit creates a unit_id field
func Unit(unitID string) LogField {
	return String("unit_id", unitID)
}

// Event creates an event field naming the diagnostic event
func Event(name string) LogField {
	return String("event", name)
}

// Outcome creates an outcome field for per-unit tick results
func Outcome(outcome string) LogField {
	return String("outcome", outcome)
}

// Strategy creates a strategy field
func Strategy(key, description string) LogField {
	return String(key, description)
}
