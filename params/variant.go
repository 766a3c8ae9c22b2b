package params

import "fmt"

// Variant names one of the three models trained together. They share an
// architecture and differ only in the auxiliary stream appended to the source.
type Variant int

const (
	Student  Variant = iota // sentence only
	Teacher1                // sentence ++ gold entity tokens
	Teacher2                // sentence ++ gold relation tokens
)

var Variants = []Variant{Student, Teacher1, Teacher2}

func (v Variant) String() string {
	switch v {
	case Student:
		return "stu"
	case Teacher1:
		return "tea1"
	case Teacher2:
		return "tea2"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}
