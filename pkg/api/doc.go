// Package api is the JSON REST surface of apilab: suites, tests, runs,
// environments, mock endpoints, CMS schemas and content, users, and a
// websocket stream of live events.
//
// Every route except /health, /metrics, /auth/login and /public/... requires
// a bearer token (or the session cookie). Reads are open to any role; writes need
// editor or admin, and user management needs admin.
package api
