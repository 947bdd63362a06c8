package web

import (
	"encoding/json"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// Article is the parsed form of a Wikipedia page, cached as JSON.
type Article struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	RelatedTopics []string `json:"related_topics"`
	Markdown      string   `json:"markdown,omitempty"`
}

// DecodeArticle decodes a cached or freshly fetched value.
func DecodeArticle(b []byte) (*Article, error) {
	var a Article
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

type parseLimits struct {
	maxParagraphs   int
	minParagraphLen int
	maxTopics       int
}

const unknownTitle = "Unknown"

// noise is removed from the content block before rendering markdown.
const noise = "script, style, noscript, iframe, object, embed, img, video, picture, svg, canvas, audio, source, track, map, area, form, input, button, select, textarea, sup.reference, .mw-editsection, .navbox, table.infobox"

func parseArticle(doc *goquery.Document, lim parseLimits) *Article {
	a := &Article{RelatedTopics: []string{}}

	a.Title = singleLine(doc.Find("h1.firstHeading").First().Text())
	if a.Title == "" {
		a.Title = singleLine(doc.Find("head > title").First().Text())
	}
	if a.Title == "" {
		a.Title = unknownTitle
	}

	content := doc.Find("div#mw-content-text").First()
	var paragraphs []string
	content.Find("p").EachWithBreak(func(i int, p *goquery.Selection) bool {
		if i >= lim.maxParagraphs {
			return false
		}
		if text := singleLine(p.Text()); len(text) > lim.minParagraphLen {
			paragraphs = append(paragraphs, text)
		}
		return true
	})
	a.Content = strings.Join(paragraphs, "\n\n")

	doc.Find("div#mw-normal-catlinks a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(a.RelatedTopics) >= lim.maxTopics {
			return false
		}
		// The first link is the "Categories" header pointing at Special:Categories.
		if strings.Contains(s.AttrOr("href", ""), "Special:Categories") {
			return true
		}
		if topic := singleLine(s.Text()); topic != "" {
			a.RelatedTopics = append(a.RelatedTopics, topic)
		}
		return true
	})

	if content.Length() > 0 {
		content.Find(noise).Remove()
		if html, err := content.Html(); err == nil {
			if md, err := htmltomarkdown.ConvertString(html); err == nil {
				a.Markdown = strings.TrimSpace(md)
			}
		}
	}
	return a
}

// singleLine trims and collapses internal whitespace/newlines to single spaces.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
