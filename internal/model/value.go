package model

// Value is the sealed set of typed attribute values a population run can
// produce. The marker method keeps the set closed: a new value kind cannot be
// introduced without the compiler flagging every switch over Value.
type Value interface {
	isValue()
}

// BoolValue is a coerced boolean attribute value.
type BoolValue bool

// IntValue is a coerced integer attribute value.
type IntValue int64

// FloatValue is a coerced decimal attribute value.
type FloatValue float64

// StringValue is a coerced text, date, or single-choice (option code) value.
type StringValue string

// StringListValue is a coerced multi-choice (option codes) or string-array
// value.
type StringListValue []string

// DateRangeValue is a coerced date-range value; both bounds are ISO dates.
type DateRangeValue struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (BoolValue) isValue()       {}
func (IntValue) isValue()        {}
func (FloatValue) isValue()      {}
func (StringValue) isValue()     {}
func (StringListValue) isValue() {}
func (DateRangeValue) isValue()  {}
