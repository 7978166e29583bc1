// Package mockserver serves mock endpoints over HTTP.
//
// A Server answers each request with the best matching enabled endpoint:
// highest priority first, then the most specific route, then the endpoint
// created first. Response headers and bodies may reference the request with
// {{params.name}}, {{query.name}} and the other expressions understood by
// package template. Every request, matched or not, is recorded in a bounded
// request log.
package mockserver
