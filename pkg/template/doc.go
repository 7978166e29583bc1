// Package template performs {{expression}} substitution for test requests
// and mock responses.
//
// # Variables
//
// A bare name such as {{baseUrl}} resolves from Context.Vars. Whitespace
// inside the braces is ignored. Names with no value are left untouched so
// that a missing environment variable is visible in the request.
//
// # Built-ins
//
//   - {{$uuid}} - Random UUID v4
//   - {{$timestamp}} - Current Unix timestamp (seconds)
//   - {{$isoTimestamp}} - Current time in RFC3339 (UTC)
//   - {{$randomInt}} - Random integer 0-1000
//   - {{$randomInt(min, max)}} - Random integer in range [min, max]
//
// # Request Variables
//
// Mock responses can read the incoming request:
//   - {{params.name}} - Path parameter captured by the route
//   - {{query.name}} - First value of a query parameter
//   - {{request.method}}, {{request.path}}
//   - {{request.header.Name}} - Request header value
//   - {{request.body.field.nested}} - Field of a JSON request body
//
// Request variables that are absent resolve to the empty string.
//
// # Functions
//
//   - {{upper(value)}}, {{lower(value)}}
//   - {{default(value, "fallback")}} - fallback when value resolves empty
package template
