// Package feed parses the raw bytes of SPC syndication feeds: RSS 2.0 text
// products and GeoJSON shape products. It knows nothing about risk records;
// normalization happens in the domain package.
package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ParseError marks structurally broken feed input. Callers keep their
// previously cached body when a parse fails; no partial result is returned.
type ParseError struct {
	Feed string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s feed: %v", e.Feed, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Item is one syndication entry. Transient; produced per parse and never
// persisted directly.
type Item struct {
	Title     string
	Link      string
	GUID      string
	Published time.Time
	Body      string
}

// Channel is a parsed RSS channel with its items in document order.
type Channel struct {
	Title       string
	Link        string
	Description string
	Items       []Item
}

// pubDateLayouts covers the date formats SPC feeds have been observed to
// emit. RFC1123Z is the documented RSS 2.0 format; the rest are drift.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05Z07:00",
}

// ParseRSS performs a single-pass event-driven parse of an RSS 2.0 document.
// <description> content is captured verbatim (it may be raw HTML or CDATA);
// other leaf elements accumulate plain character data. A description that
// wraps a <pre> block keeps only the trimmed inner text, which is how SPC
// embeds plain-text bulletins. Malformed XML returns a *ParseError and no
// channel.
func ParseRSS(feedName string, data []byte) (Channel, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// SPC feeds occasionally declare ISO-8859-1; the bytes are ASCII-safe.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var (
		ch            Channel
		item          Item
		text          strings.Builder
		inChannel     bool
		inItem        bool
		inDescription bool
		sawChannel    bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Channel{}, &ParseError{Feed: feedName, Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if inDescription {
				// Descriptions carry raw HTML; child tags are part of the
				// verbatim body, not structure.
				text.WriteString("<" + t.Name.Local + ">")
				continue
			}
			switch t.Name.Local {
			case "channel":
				inChannel = true
				sawChannel = true
			case "item":
				if inChannel {
					inItem = true
					item = Item{}
				}
			case "description":
				inDescription = true
			}
			text.Reset()

		case xml.CharData:
			// CDATA and plain character data arrive the same way; both
			// accumulate until the enclosing element closes.
			text.Write(t)

		case xml.EndElement:
			if inDescription && t.Name.Local != "description" {
				text.WriteString("</" + t.Name.Local + ">")
				continue
			}
			content := text.String()
			switch t.Name.Local {
			case "channel":
				inChannel = false
			case "item":
				if inItem {
					ch.Items = append(ch.Items, item)
					inItem = false
				}
			case "description":
				inDescription = false
				body := extractPreBlock(content)
				if inItem {
					item.Body = body
				} else if inChannel {
					ch.Description = strings.TrimSpace(body)
				}
			case "title":
				if inItem {
					item.Title = strings.TrimSpace(content)
				} else if inChannel {
					ch.Title = strings.TrimSpace(content)
				}
			case "link":
				if inItem {
					item.Link = strings.TrimSpace(content)
				} else if inChannel {
					ch.Link = strings.TrimSpace(content)
				}
			case "guid":
				if inItem {
					item.GUID = strings.TrimSpace(content)
				}
			case "pubDate":
				if inItem {
					item.Published = parsePubDate(content)
				}
			}
			text.Reset()
		}
	}

	if !sawChannel {
		return Channel{}, &ParseError{Feed: feedName, Err: errors.New("no rss channel element")}
	}
	return ch, nil
}

// extractPreBlock returns the inner text of the first <pre>...</pre> block,
// trimmed, or the input unchanged when no block is present.
func extractPreBlock(s string) string {
	lower := strings.ToLower(s)
	start := strings.Index(lower, "<pre>")
	if start < 0 {
		return s
	}
	rest := s[start+len("<pre>"):]
	end := strings.Index(strings.ToLower(rest), "</pre>")
	if end < 0 {
		return s
	}
	return strings.TrimSpace(rest[:end])
}

// parsePubDate tries each known layout; an unparsable date yields the zero
// time rather than failing the item (error class: recoverable format drift).
func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
