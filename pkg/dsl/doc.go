/*
Package dsl builds guided analysis plans.

Plans can be assembled in Go with a fluent builder or decoded from YAML
documents. Both paths validate the result: step IDs are unique, progress
targets never go backwards and remote steps name a known category.

Example usage:

	plan, err := dsl.New().
		MinDuration(time.Second).
		SettleDelay(2 * time.Second).
		Step("validate").Title("Validating inputs").Progress(10).
		Then("portfolio").Remote(domain.CategoryAllocation).Progress(60).
		Then("explanation").Remote(domain.CategoryExplanation).Progress(100).
		Build()
*/
package dsl
