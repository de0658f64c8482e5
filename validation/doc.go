// Package validation checks crossmatch inputs: struct tags on config and
// pipeline definitions through go-playground/validator, and programmatic
// checks on identifiers passed on the command line.
//
//	err := validation.ValidateStruct(limits)
//
//	v := validation.New()
//	v.ASINs("asins", asins)
//	err := v.Validate()
package validation
