package fetch

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// progressFormName identifies the auto-submitting form SAS returns while a
// job is still running.
const progressFormName = "ProgressForm"

// ProgressForm holds the hidden state of a SAS progress page. Submitting it
// back is what a browser's onload handler would have done.
type ProgressForm struct {
	Action string
	Fields url.Values
}

// ParseProgressForm extracts the ProgressForm from a response page. It
// returns nil when the page has none, which means the job already finished.
func ParseProgressForm(page string) (*ProgressForm, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	node := findProgressForm(doc, 0)
	if node == nil {
		return nil, nil
	}

	form := &ProgressForm{
		Action: getAttr(node, "action"),
		Fields: url.Values{},
	}
	collectFields(node, form.Fields, 0)
	return form, nil
}

func findProgressForm(n *html.Node, depth int) *html.Node {
	if depth > 100 {
		return nil
	}
	if n.Type == html.ElementNode && n.Data == "form" {
		if getAttr(n, "name") == progressFormName || getAttr(n, "id") == progressFormName {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findProgressForm(c, depth+1); found != nil {
			return found
		}
	}
	return nil
}

// collectFields gathers input and textarea values. The progress page carries
// its state in value attributes, so element text is ignored.
func collectFields(n *html.Node, fields url.Values, depth int) {
	if depth > 100 {
		return
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "input", "textarea":
			name := getAttr(n, "name")
			if name != "" {
				fields.Set(name, getAttr(n, "value"))
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectFields(c, fields, depth+1)
	}
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
