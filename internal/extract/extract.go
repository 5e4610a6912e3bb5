package extract

import (
	"errors"
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// DefaultSelector matches the region python.org renders PEP bodies into.
const DefaultSelector = "section#pep-content"

// nonTextElements hold character data that is not part of the readable text.
const nonTextElements = "script, style, template"

var (
	// ErrContentNotFound is returned when the document has no element
	// matching the content selector.
	ErrContentNotFound = errors.New("content region not found")

	// ErrInvalidSelector is returned when the content selector does not compile.
	ErrInvalidSelector = errors.New("invalid content selector")

	// ErrDecode is returned when a body cannot be decoded or parsed as HTML.
	ErrDecode = errors.New("decode document")
)

// Extractor pulls the content region out of parsed documents.
// It holds no per-document state and is safe for concurrent use.
type Extractor struct {
	selector string
	matcher  cascadia.Selector
}

// New creates an Extractor for the given CSS selector.
func New(selector string) (*Extractor, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSelector, selector, err)
	}
	return &Extractor{selector: selector, matcher: matcher}, nil
}

// Default returns an Extractor using DefaultSelector.
func Default() *Extractor {
	e, err := New(DefaultSelector)
	if err != nil {
		panic(err) // DefaultSelector is a constant known to compile.
	}
	return e
}

// Selector returns the CSS selector this Extractor matches.
func (e *Extractor) Selector() string {
	return e.selector
}

// Decode reads an HTML body and parses it. contentType is the response's
// Content-Type header and may be empty; the charset is then sniffed from
// the document itself, defaulting to UTF-8 compatible decoding.
func Decode(r io.Reader, contentType string) (*html.Node, error) {
	utf8Reader, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: charset: %w", ErrDecode, err)
	}

	root, err := html.Parse(utf8Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return root, nil
}

// Extract returns the text content of the first element matching the
// selector. The text is every descendant text node concatenated in
// document order, except the contents of script, style and template
// elements. Extract mutates root.
func (e *Extractor) Extract(root *html.Node) (string, error) {
	if root == nil {
		return "", ErrContentNotFound
	}

	region := goquery.NewDocumentFromNode(root).FindMatcher(e.matcher).First()
	if region.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrContentNotFound, e.selector)
	}

	region.Find(nonTextElements).Remove()
	return region.Text(), nil
}

// ExtractReader is Decode followed by Extract.
func (e *Extractor) ExtractReader(r io.Reader, contentType string) (string, error) {
	root, err := Decode(r, contentType)
	if err != nil {
		return "", err
	}
	return e.Extract(root)
}
