package vdf

import (
	"bytes"
	"strings"
)

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Format renders the children of root in Valve's tab-indented style.
func Format(root *Node) []byte {
	var buf bytes.Buffer
	if root == nil {
		return nil
	}
	if root.Key == "" {
		for _, child := range root.Children {
			writeNode(&buf, child, 0)
		}
		return buf.Bytes()
	}
	writeNode(&buf, root, 0)
	return buf.Bytes()
}

func writeNode(buf *bytes.Buffer, n *Node, depth int) {
	indent := strings.Repeat("\t", depth)
	buf.WriteString(indent)
	writeQuoted(buf, n.Key)
	if !n.IsSection() {
		buf.WriteString("\t\t")
		writeQuoted(buf, n.Value)
		buf.WriteByte('\n')
		return
	}
	buf.WriteByte('\n')
	buf.WriteString(indent)
	buf.WriteString("{\n")
	for _, child := range n.Children {
		writeNode(buf, child, depth+1)
	}
	buf.WriteString(indent)
	buf.WriteString("}\n")
}

func writeQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	buf.WriteString(escaper.Replace(s))
	buf.WriteByte('"')
}
