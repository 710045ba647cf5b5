package docs

import (
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/csound-plugins/risset/internal/errors"
)

// Link is a link extracted from a rendered html page.
type Link struct {
	URL       string
	Tag       string // html tag the link was found on (a, img, link, script)
	Attribute string // attribute holding the link (href or src)
}

// ExtractLinks collects every link-like reference from an html
// document: anchors, images, stylesheets and scripts.
func ExtractLinks(r io.Reader) ([]Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindParse, "could not parse html")
	}
	var links []Link
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a", "link":
				if href := getAttr(n, "href"); href != "" {
					links = append(links, Link{URL: href, Tag: n.Data, Attribute: "href"})
				}
			case "img", "script":
				if src := getAttr(n, "src"); src != "" {
					links = append(links, Link{URL: src, Tag: n.Data, Attribute: "src"})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(doc)
	return links, nil
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// BrokenLink reports a link in a rendered page whose target is missing
// from the site.
type BrokenLink struct {
	Page string // html file holding the link, relative to the site root
	URL  string
}

// CheckLinks verifies that every internal link in a rendered site
// points at an existing file. External urls, anchors and special
// protocols like mailto are not checked.
func CheckLinks(siteDir string) ([]BrokenLink, error) {
	var broken []BrokenLink
	err := filepath.WalkDir(siteDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, errors.KindIO, "could not walk %s", p)
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".html") {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return errors.Wrapf(err, errors.KindIO, "could not open %s", p)
		}
		links, err := ExtractLinks(f)
		f.Close()
		if err != nil {
			return errors.Wrapf(err, errors.KindParse, "could not extract links from %s", p)
		}
		rel, err := filepath.Rel(siteDir, p)
		if err != nil {
			return err
		}
		for _, link := range links {
			target, ok := resolveLocal(link.URL, siteDir, filepath.Dir(p))
			if !ok {
				continue
			}
			if _, err := os.Stat(target); err != nil {
				broken = append(broken, BrokenLink{Page: rel, URL: link.URL})
			}
		}
		return nil
	})
	return broken, err
}

// resolveLocal maps a link onto the file it addresses inside the site.
// The second return is false for links that do not name a local file.
func resolveLocal(link, siteDir, pageDir string) (string, bool) {
	if link == "" || strings.HasPrefix(link, "#") {
		return "", false
	}
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(link, prefix) {
			return "", false
		}
	}
	u, err := url.Parse(link)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	p := filepath.FromSlash(u.Path)
	if strings.HasPrefix(u.Path, "/") {
		return filepath.Join(siteDir, p), true
	}
	return filepath.Join(pageDir, p), true
}
