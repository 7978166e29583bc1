// Package matching holds the small matching primitives shared by the mock
// server and the assertion evaluator: route patterns, wildcard value patterns,
// JSONPath lookups and loose value equality.
//
// Route patterns accept three segment forms:
//
//	/users          literal
//	/users/:id      named parameter (also written /users/{id})
//	/files/*        wildcard, captures the rest of the path
//
// Patterns compile to anchored regular expressions. A trailing slash on the
// request path is ignored.
package matching
