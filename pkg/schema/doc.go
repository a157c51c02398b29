// Package schema describes the shape of the scoring service answers.
//
// A Schema maps field names to types. Types nest (objects, slices) and can be
// optional, so a whole response document is described in one value:
//
//	s := schema.Schema{
//	    "allocation": schema.Slice(schema.Object(schema.Schema{
//	        "symbol": schema.String(),
//	        "weight": schema.Number(),
//	    })),
//	    "metrics": schema.Optional(schema.Object(nil)),
//	}
//
//	if err := schema.Validate(s, raw); err != nil {
//	    for _, fe := range schema.ValidationErrors(err) {
//	        log.Println(fe)
//	    }
//	}
//
// The engine never fails a category because of a mismatch: answers are
// normalized with defaults regardless. Check only reports the drift between
// the service and the Contract of a category so it can be logged.
package schema
