// Package feed fetches podcast RSS documents and extracts, per item, the
// episode id, enclosure URL, declared SHA-256 (the item GUID), and the local
// filename the enclosure is saved under.
package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// DefaultDelimiter separates the episode id from the rest of an item title.
const DefaultDelimiter = ":"

// ErrMalformedFeed reports a document that cannot be parsed or lacks a field
// the verifier depends on.
var ErrMalformedFeed = errors.New("malformed feed")

// Item is one published episode as a feed describes it.
type Item struct {
	Feed         string
	EpisodeID    string
	Title        string
	EnclosureURL string
	// DeclaredHash is the item GUID, which carries the enclosure's SHA-256.
	DeclaredHash string
	Filename     string
}

// Feed is a named, parsed feed document.
type Feed struct {
	Name  string
	URL   string
	Items []Item
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

// encoding/xml matches a bare tag name in any namespace, so extension
// elements such as itunes:title decode into the same slice as the RSS core
// element. Only un-namespaced elements are used.
type rssItem struct {
	Titles     []rssText      `xml:"title"`
	GUIDs      []rssText      `xml:"guid"`
	Enclosures []rssEnclosure `xml:"enclosure"`
}

type rssText struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type rssEnclosure struct {
	XMLName xml.Name
	URL     string `xml:"url,attr"`
}

func coreText(elems []rssText) (string, bool) {
	for _, el := range elems {
		if el.XMLName.Space == "" {
			return strings.TrimSpace(el.Value), true
		}
	}
	return "", false
}

func coreEnclosure(elems []rssEnclosure) (string, bool) {
	for _, el := range elems {
		if el.XMLName.Space == "" {
			return strings.TrimSpace(el.URL), true
		}
	}
	return "", false
}

// Parse decodes an RSS document. Any item missing its title, enclosure URL or
// GUID fails the whole feed.
func Parse(name string, r io.Reader, delimiter string) (*Feed, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	var doc rssDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFeed, name, err)
	}

	out := &Feed{Name: name, Items: make([]Item, 0, len(doc.Channel.Items))}
	for i, raw := range doc.Channel.Items {
		item, err := parseItem(name, raw, delimiter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: item %d: %v", ErrMalformedFeed, name, i+1, err)
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func parseItem(feedName string, raw rssItem, delimiter string) (Item, error) {
	title, ok := coreText(raw.Titles)
	if !ok || title == "" {
		return Item{}, errors.New("missing title")
	}
	enclosure, ok := coreEnclosure(raw.Enclosures)
	if !ok || enclosure == "" {
		return Item{}, errors.New("missing enclosure url")
	}
	guid, ok := coreText(raw.GUIDs)
	if !ok || guid == "" {
		return Item{}, errors.New("missing guid")
	}

	episodeID, _, _ := strings.Cut(title, delimiter)
	episodeID = strings.TrimSpace(episodeID)
	if episodeID == "" {
		return Item{}, fmt.Errorf("title %q has no episode id", title)
	}
	filename, err := filenameFromURL(enclosure)
	if err != nil {
		return Item{}, err
	}
	return Item{
		Feed:         feedName,
		EpisodeID:    episodeID,
		Title:        title,
		EnclosureURL: enclosure,
		DeclaredHash: strings.ToLower(guid),
		Filename:     filename,
	}, nil
}

func filenameFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("enclosure url %q: %w", raw, err)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("enclosure url %q has no filename", raw)
	}
	return base, nil
}
