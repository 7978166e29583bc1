// Package apitest defines the records behind API testing: suites of HTTP tests,
// the assertions each test declares, environments of interpolation variables,
// and the runs and results produced by executing them.
//
// Suites can also live in YAML or JSON files next to the code they exercise:
//
//	name: users api
//	variables:
//	  baseUrl: http://localhost:8080
//	tests:
//	  - name: list users
//	    url: "{{baseUrl}}/users"
//	    assertions:
//	      - type: status
//	        expected: 200
//	      - type: jsonPath
//	        property: $.data[0].id
//	        operator: exists
package apitest
