// Package extract locates the rendered body of a PEP inside its HTML
// document and returns its text content.
//
// Decoding and extraction are separate steps. Decode turns a response body
// into a parsed document, honoring the charset declared in the Content-Type
// header or the document itself. Extractor.Extract then finds the first
// element matching the content selector (section#pep-content by default)
// and concatenates its descendant text nodes. Markup is dropped; whitespace
// is kept exactly as it appears in the document.
package extract
