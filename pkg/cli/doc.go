// Package cli implements the apilab command line:
//   - serve: run the REST API and the mock server
//   - run: execute suite files against a live API and report the results
//   - mock: serve mocks from collection files or an OpenAPI document
//   - validate: check configuration, suite and mock files
//   - user add: create an account in the configured store
//   - version: print build information
package cli
