package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText returns the concatenated text content of a node, like
// Node.textContent in the DOM.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CompactText trims a scraped text blob down to something comparable:
// non-printable runes dropped, inner runs of whitespace collapsed to a
// single space, outer whitespace trimmed.
func CompactText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

// FindByClassPattern returns the elements matched by `selector` whose
// class attribute matches `pattern`. There is no CSS syntax for "class
// matches regex", which scraping unversioned markup constantly wants.
func FindByClassPattern(sel *goquery.Selection, selector string, pattern *regexp.Regexp) *goquery.Selection {
	return sel.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return ok && pattern.MatchString(class)
	})
}
