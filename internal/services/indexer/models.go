// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

// SearchResult is one parsed, hash-resolved feed item. Results are value
// objects owned by the search call that produced them; the info-hash is
// lower-cased and unique within one search after orchestration dedup.
type SearchResult struct {
	Title        string
	DisplayTitle string
	Seeders      int
	Leechers     int
	Categories   []string
	InfoHash     string
	Size         int64
}

// rssFeed mirrors the Torznab search response envelope.
type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title string        `xml:"title"`
	Link  string        `xml:"link"`
	Size  int64         `xml:"size"`
	Attrs []torznabAttr `xml:"attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// attr returns the value of the named torznab attribute, or "".
func (i rssItem) attr(name string) string {
	for _, a := range i.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// attrAll returns every value of the named torznab attribute in feed order.
func (i rssItem) attrAll(name string) []string {
	var values []string
	for _, a := range i.Attrs {
		if a.Name == name {
			values = append(values, a.Value)
		}
	}
	return values
}
