package thread

import (
	"sort"

	"github.com/plumefeed/plume/internal/timeline"
)

// Node is one item in a reply tree. Children are owned exclusively by
// their parent; ReplyToID edges point strictly toward older items, so a
// well-formed thread is acyclic by construction.
type Node struct {
	Item     timeline.Item
	Depth    int // distance from the thread root; root's direct replies are 1
	Children []*Node
}

// FlattenedEntry is one row of the display-flattened thread sequence
type FlattenedEntry struct {
	Item         timeline.Item
	DisplayDepth int  // actual depth clamped for indentation
	HasChildren  bool // informational; nothing is pruned from the sequence
}

// BuildTree assembles the reply tree under root from a flat set of
// items. Items replying to an id outside the set are adopted directly
// under the root so nothing in the thread goes missing. The builder
// refuses to revisit an id already placed, which keeps malformed input
// from producing a cycle.
func BuildTree(root timeline.Item, items []timeline.Item) *Node {
	byParent := make(map[string][]timeline.Item)
	known := map[string]bool{root.ID: true}
	for _, item := range items {
		if item.ID == root.ID {
			continue
		}
		known[item.ID] = true
	}

	for _, item := range items {
		if item.ID == root.ID {
			continue
		}
		parent := item.ReplyToID
		if parent == "" || !known[parent] {
			parent = root.ID
		}
		byParent[parent] = append(byParent[parent], item)
	}

	// Replies read top to bottom, oldest first
	for _, siblings := range byParent {
		sort.Slice(siblings, func(i, j int) bool {
			if siblings[i].CreatedAt != siblings[j].CreatedAt {
				return siblings[i].CreatedAt < siblings[j].CreatedAt
			}
			return siblings[i].ID < siblings[j].ID
		})
	}

	rootNode := &Node{Item: root, Depth: 0}
	placed := map[string]bool{root.ID: true}
	attach(rootNode, byParent, placed)

	// Members of a parent cycle are unreachable from the root; adopt
	// them so malformed input cannot drop replies.
	for _, item := range items {
		if placed[item.ID] {
			continue
		}
		placed[item.ID] = true
		child := &Node{Item: item, Depth: 1}
		rootNode.Children = append(rootNode.Children, child)
		attach(child, byParent, placed)
	}
	return rootNode
}

func attach(parent *Node, byParent map[string][]timeline.Item, placed map[string]bool) {
	for _, item := range byParent[parent.Item.ID] {
		if placed[item.ID] {
			continue
		}
		placed[item.ID] = true

		child := &Node{Item: item, Depth: parent.Depth + 1}
		parent.Children = append(parent.Children, child)
		attach(child, byParent, placed)
	}
}

// Flatten walks the tree pre-order into the display sequence. Every
// descendant appears; maxDisplayDepth caps only the indentation.
func Flatten(root *Node, maxDisplayDepth int) []FlattenedEntry {
	if maxDisplayDepth < 1 {
		maxDisplayDepth = 1
	}

	entries := make([]FlattenedEntry, 0)
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Children {
			depth := child.Depth
			if depth > maxDisplayDepth {
				depth = maxDisplayDepth
			}
			entries = append(entries, FlattenedEntry{
				Item:         child.Item,
				DisplayDepth: depth,
				HasChildren:  len(child.Children) > 0,
			})
			walk(child)
		}
	}
	walk(root)
	return entries
}

// Size returns the number of nodes in the tree including the root
func Size(root *Node) int {
	count := 1
	for _, child := range root.Children {
		count += Size(child)
	}
	return count
}
