package adb

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/billbot/node/internal/capability"
)

// xmlNode mirrors a <node> element of a uiautomator dump.
type xmlNode struct {
	ResourceID  string    `xml:"resource-id,attr"`
	Text        string    `xml:"text,attr"`
	ContentDesc string    `xml:"content-desc,attr"`
	Class       string    `xml:"class,attr"`
	Package     string    `xml:"package,attr"`
	Bounds      string    `xml:"bounds,attr"`
	Clickable   string    `xml:"clickable,attr"`
	Scrollable  string    `xml:"scrollable,attr"`
	Checkable   string    `xml:"checkable,attr"`
	Checked     string    `xml:"checked,attr"`
	Enabled     string    `xml:"enabled,attr"`
	Focused     string    `xml:"focused,attr"`
	Selected    string    `xml:"selected,attr"`
	Children    []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	Nodes []xmlNode `xml:"node"`
}

const hierarchyClose = "</hierarchy>"

// parseHierarchy converts uiautomator dump output into UI nodes. Text the
// tool prints around the XML document is ignored.
func parseHierarchy(out []byte) ([]capability.UINode, error) {
	start := bytes.Index(out, []byte("<hierarchy"))
	end := bytes.LastIndex(out, []byte(hierarchyClose))
	if start < 0 || end < start {
		return nil, ErrInvalidHierarchy
	}

	var h xmlHierarchy
	if err := xml.Unmarshal(out[start:end+len(hierarchyClose)], &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHierarchy, err)
	}

	nodes := make([]capability.UINode, 0, len(h.Nodes))
	for _, n := range h.Nodes {
		nodes = append(nodes, convertNode(n))
	}
	return nodes, nil
}

func convertNode(n xmlNode) capability.UINode {
	children := make([]capability.UINode, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, convertNode(c))
	}

	return capability.UINode{
		ID:          optional(n.ResourceID),
		Text:        optional(n.Text),
		Description: optional(n.ContentDesc),
		ClassName:   optional(n.Class),
		PackageName: optional(n.Package),
		Bounds:      parseBounds(n.Bounds),
		Clickable:   n.Clickable == "true",
		Scrollable:  n.Scrollable == "true",
		Editable:    strings.HasSuffix(n.Class, "EditText"),
		Checkable:   n.Checkable == "true",
		Checked:     n.Checked == "true",
		Enabled:     n.Enabled != "false",
		Focused:     n.Focused == "true",
		Selected:    n.Selected == "true",
		Children:    children,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseBounds reads "[left,top][right,bottom]". Malformed input yields zero bounds.
func parseBounds(s string) capability.Bounds {
	s = strings.NewReplacer("][", ",", "[", "", "]", "").Replace(s)
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return capability.Bounds{}
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return capability.Bounds{}
		}
		v[i] = n
	}
	return capability.Bounds{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
}
