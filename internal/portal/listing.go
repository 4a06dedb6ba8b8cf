package portal

import (
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var fileExtensions = []string{".xls", ".xlsx", ".csv", ".zip"}

type listing struct {
	files []RemoteFile
	next  *url.URL
	login bool
}

// parseListing extracts file links, the rel=next pagination link, and whether
// the page is a login form from a portal listing page.
func parseListing(r io.Reader, page *url.URL) (*listing, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	l := &listing{}
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}

		switch n.DataAtom {
		case atom.Input:
			if strings.EqualFold(attr(n, "type"), "password") {
				l.login = true
			}
		case atom.A, atom.Link:
			href := strings.TrimSpace(attr(n, "href"))
			if href == "" || strings.HasPrefix(href, "javascript:") {
				continue
			}

			target, err := page.Parse(href)
			if err != nil {
				continue
			}

			if isNext(n) {
				if l.next == nil {
					l.next = target
				}
				continue
			}

			if name := fileName(target, text(n)); name != "" {
				l.files = append(l.files, RemoteFile{Filename: name, URL: target.String()})
			}
		}
	}

	return l, nil
}

func isNext(n *html.Node) bool {
	for _, rel := range strings.Fields(attr(n, "rel")) {
		if strings.EqualFold(rel, "next") {
			return true
		}
	}
	return false
}

// fileName picks the filename a link points to: a filename query parameter,
// then the last path segment, then the link text.
func fileName(u *url.URL, linkText string) string {
	q := u.Query()
	for _, key := range []string{"filename", "fileName", "file"} {
		if v := q.Get(key); hasFileExtension(v) {
			return path.Base(v)
		}
	}

	if base := path.Base(u.Path); hasFileExtension(base) {
		return base
	}

	if hasFileExtension(linkText) && !strings.ContainsAny(linkText, "/\\") {
		return linkText
	}

	return ""
}

func hasFileExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range fileExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}
	return strings.TrimSpace(b.String())
}
