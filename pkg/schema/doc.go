// Package schema declares and checks the types of state variables.
//
// A document may declare types next to its variables:
//
//	types:
//	  count: int
//	  ratio: float
//	  items: "[string]"
//	  payload: any
//
// Types are parsed with ParseTypeMap and checked with Validate, which reports
// every mismatch at once. Whole floats pass as int because JSON-backed
// snapshot stores return numbers as floats.
package schema
