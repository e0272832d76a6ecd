// Package assertions checks the output of shell steps.
//
// Each expectation names a subject (see package capture), an operator and an expected value:
//
//	expect:
//	  - op: contains
//	    value: "3 packages"
//	  - subject: json.status
//	    op: in
//	    value: [ok, degraded]
//	  - subject: json
//	    op: schema
//	    value: ./schemas/status.json
//
// Operators: ==, !=, >, >=, <, <=, contains, !contains, startsWith, endsWith, matches,
// exists, !exists, length, includes, !includes, in, !in, type, schema and each.
package assertions
