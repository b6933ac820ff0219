// Package resources resolves tracker resource URIs (issue://, project://,
// board://, sprint://, user://) into JSON documents scoped to the calling
// session's tenant, and publishes the matching resource templates.
package resources
