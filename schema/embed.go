package schema

import _ "embed"

// OpenAPI holds the embedded OpenAPI document for the emission curve API.
//
//go:embed openapi.yaml
var OpenAPI []byte
