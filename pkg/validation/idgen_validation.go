// Package validation wraps ozzo-validation rules used by the HTTP API and
// the console.
package validation

import (
	"errors"
	"fmt"
	"regexp"

	ozzo "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var decimalRegex = regexp.MustCompile(`^[0-9]*\.?[0-9]+$|^[0-9]+\.?[0-9]*$`)

// check reports whether input is non-empty and passes every rule. ozzo
// treats empty strings as valid, so that case is handled here.
func check(input string, rules ...ozzo.Rule) bool {
	if input == "" {
		return false
	}
	return ozzo.Validate(input, rules...) == nil
}

func IsEmail(input string) bool   { return check(input, is.EmailFormat) }
func IsIPv4(input string) bool    { return check(input, is.IPv4) }
func IsNumber(input string) bool  { return check(input, is.Digit) }
func IsEnglish(input string) bool { return check(input, is.Alpha) }

// IsDecimal accepts unsigned decimals such as "1", "1.", ".5" and "1.5".
func IsDecimal(input string) bool {
	return check(input, ozzo.Match(decimalRegex))
}

// NodeIDRule checks that a node id fits in bits.
func NodeIDRule(bits uint8) ozzo.Rule {
	maxNodeID := int64(-1) ^ (int64(-1) << bits)
	return ozzo.By(func(value any) error {
		v, ok := value.(int64)
		if !ok {
			if p, isPtr := value.(*int64); isPtr && p != nil {
				v, ok = *p, true
			}
		}
		if !ok {
			return errors.New("must be an integer")
		}
		if v < 0 || v > maxNodeID {
			return fmt.Errorf("must be between 0 and %d", maxNodeID)
		}
		return nil
	})
}

// CountRule checks a batch size.
func CountRule(maxCount int) ozzo.Rule {
	return ozzo.By(func(value any) error {
		v, ok := value.(int)
		if !ok {
			return errors.New("must be an integer")
		}
		if v < 1 || v > maxCount {
			return fmt.Errorf("must be between 1 and %d", maxCount)
		}
		return nil
	})
}
