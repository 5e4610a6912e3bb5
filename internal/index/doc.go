// Package index loads the PEP index: the JSON document that lists every
// PEP number together with the URL of its rendered HTML page.
package index
