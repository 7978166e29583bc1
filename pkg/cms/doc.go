// Package cms is a headless content manager backed by flat JSON files.
//
// Schemas describe the fields of a content type. Content items are stored
// one file per item under the schema they belong to:
//
//	<root>/schemas/<slug>.json
//	<root>/content/<schema>/<id>.json
//
// Item data is checked against a JSON Schema compiled from the schema's
// fields before every write.
package cms
