package vdf

import (
	"strings"
)

// Node is either a leaf (Value set, no Children) or a section.
type Node struct {
	Key      string
	Value    string
	Children []*Node
	section  bool
}

// NewSection creates an empty section node.
func NewSection(key string) *Node {
	return &Node{Key: key, section: true}
}

// IsSection reports whether the node holds children rather than a value.
func (n *Node) IsSection() bool {
	return n != nil && (n.section || len(n.Children) > 0)
}

// Child returns the first direct child named key.
func (n *Node) Child(key string) *Node {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if strings.EqualFold(child.Key, key) {
			return child
		}
	}
	return nil
}

// Lookup walks a key path from n.
func (n *Node) Lookup(path ...string) *Node {
	cur := n
	for _, key := range path {
		cur = cur.Child(key)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// String returns the leaf value at path, or "".
func (n *Node) String(path ...string) string {
	node := n.Lookup(path...)
	if node == nil || node.IsSection() {
		return ""
	}
	return node.Value
}

// Ensure returns the section at path, creating missing sections.
func (n *Node) Ensure(path ...string) *Node {
	cur := n
	for _, key := range path {
		next := cur.Child(key)
		if next == nil {
			next = NewSection(key)
			cur.Children = append(cur.Children, next)
		} else if !next.IsSection() {
			next.Value = ""
			next.section = true
		}
		cur = next
	}
	return cur
}

// Set writes a leaf value under n, replacing an existing child of the same key.
func (n *Node) Set(key, value string) *Node {
	if existing := n.Child(key); existing != nil {
		existing.Children = nil
		existing.section = false
		existing.Value = value
		return existing
	}
	leaf := &Node{Key: key, Value: value}
	n.Children = append(n.Children, leaf)
	return leaf
}

// Append adds child to n without checking for duplicates.
func (n *Node) Append(child *Node) {
	n.Children = append(n.Children, child)
}

// Remove deletes every direct child named key and reports whether any existed.
func (n *Node) Remove(key string) bool {
	if n == nil {
		return false
	}
	kept := n.Children[:0]
	removed := false
	for _, child := range n.Children {
		if strings.EqualFold(child.Key, key) {
			removed = true
			continue
		}
		kept = append(kept, child)
	}
	n.Children = kept
	return removed
}
