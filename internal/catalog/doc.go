// Package catalog loads pricing rules and products from CUE.
//
// A catalog directory holds one or more .cue files of the same package:
//
//	rule: happy_hour: {
//		name:      "Happy hour"
//		level:     "ITEM"
//		scope:     "CATEGORY"
//		target:    "drinks"
//		zone:      "all"
//		direction: "DISCOUNT"
//		type:      "PERCENTAGE"
//		value:     10
//		priority:  5
//	}
//
//	product: espresso: {
//		name:     "Espresso"
//		price:    "3.50"
//		category: "drinks"
//		tags:     ["hot"]
//		tax_rate: 10
//	}
//
// The struct label is the id. Rule values are percent (10 = 10%) for
// PERCENTAGE rules and currency units for FIXED_AMOUNT rules. Prices are
// currency units and are converted to cents on load.
//
// A Catalog satisfies gateway.RuleSource.
package catalog
