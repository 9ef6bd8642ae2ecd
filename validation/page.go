/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package validation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PivotLLM/MacroBench/global"
)

var whitespace = regexp.MustCompile(`\s+`)

// page is a parsed PageState. A nil or empty state parses to an empty document.
type page struct {
	state   global.PageState
	present bool
	doc     *goquery.Document
}

func newPage(s *global.PageState) *page {
	p := &page{}
	if s != nil {
		p.state = *s
		p.present = true
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.state.HTML))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	p.doc = doc
	return p
}

func (p *page) url() string {
	return p.state.URL
}

func (p *page) title() string {
	if p.state.Title != "" {
		return strings.TrimSpace(p.state.Title)
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

// text returns the visible text, normalised to single spaces
func (p *page) text() string {
	raw := p.state.Text
	if raw == "" {
		body := p.doc.Find("body")
		if body.Length() == 0 {
			body = p.doc.Selection
		}
		clone := body.Clone()
		clone.Find("script, style, noscript, template").Remove()
		raw = clone.Text()
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(raw, " "))
}

func (p *page) html() string {
	return p.state.HTML
}

// count returns the number of elements matching selector. Invalid selectors match nothing.
func (p *page) count(selector string) int {
	return p.doc.Find(selector).Length()
}

// visibleCount counts matches that are not hidden by attribute or inline style
func (p *page) visibleCount(selector string) int {
	n := 0
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if !hidden(s) {
			n++
		}
	})
	return n
}

// selectorText joins the text of all elements matching selector
func (p *page) selectorText(selector string) string {
	var parts []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(whitespace.ReplaceAllString(s.Text(), " ")); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " | ")
}

// number returns the first integer found in the text of selector's matches
func (p *page) number(selector string) (int, bool) {
	found := false
	value := 0
	p.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := firstInt(s.Text()); ok {
			value, found = v, true
			return false
		}
		if attr, ok := s.Attr("data-count"); ok {
			if v, ok := firstInt(attr); ok {
				value, found = v, true
				return false
			}
		}
		return true
	})
	return value, found
}

// attrSignature captures attributes that reflect widget state
func (p *page) attrSignature(selector string) string {
	var b strings.Builder
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		b.WriteString(goquery.NodeName(s))
		for _, a := range []string{"class", "aria-pressed", "aria-checked", "aria-label", "data-state", "paused", "muted", "playing"} {
			if v, ok := s.Attr(a); ok {
				b.WriteString(" " + a + "=" + v)
			}
		}
		b.WriteString(";")
	})
	return b.String()
}

func (p *page) excerpt(n int) string {
	t, cut := global.TruncateBytes(p.text(), n)
	if cut {
		return t + "..."
	}
	return t
}

var intPattern = regexp.MustCompile(`-?\d+`)

func firstInt(s string) (int, bool) {
	m := intPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return v, true
}

func hidden(s *goquery.Selection) bool {
	for sel := s; sel.Length() > 0; sel = sel.Parent() {
		if _, ok := sel.Attr("hidden"); ok {
			return true
		}
		if v, ok := sel.Attr("aria-hidden"); ok && v == "true" {
			return true
		}
		style, _ := sel.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
