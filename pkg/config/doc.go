// Package config loads the apilab server configuration.
//
// Values are layered, later sources winning:
//
//  1. defaults (Default)
//  2. a YAML file (apilab.yaml in the working directory, the XDG config
//     directory, or an explicit path)
//  3. APILAB_* environment variables
//  4. command-line flags, applied by the CLI
//
// Sources records which layer set each key, for `apilab serve --print-config`
// style diagnostics.
package config
