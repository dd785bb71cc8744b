package retriever

import "cmpbridge/internal/consent/ports"

const (
	// DefaultMaxFrameDepth bounds how far LocateFrame walks up or down.
	DefaultMaxFrameDepth = 10
	maxVisitedWindows    = 256
)

// LocateFrame finds the window that hosts a child frame called name.
//
// It checks start and then its ancestors, at most maxDepth hops up. If the
// locator is not on that chain it searches breadth-first below the highest
// ancestor reached, at most maxDepth levels down and maxVisitedWindows windows
// in total. It returns nil when nothing is found.
func LocateFrame(start ports.Window, name string, maxDepth int) ports.Window {
	if start == nil || name == "" {
		return nil
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxFrameDepth
	}

	root := start
	for w, hops := start, 0; w != nil && hops <= maxDepth; w, hops = w.Parent(), hops+1 {
		if w.HasFrame(name) {
			return w
		}
		root = w
	}

	type level struct {
		w     ports.Window
		depth int
	}
	queue := []level{{w: root}}
	visited := 0
	for len(queue) > 0 && visited < maxVisitedWindows {
		cur := queue[0]
		queue = queue[1:]
		visited++
		if cur.depth > 0 && cur.w.HasFrame(name) {
			return cur.w
		}
		if cur.depth >= maxDepth {
			continue
		}
		for _, child := range cur.w.Frames() {
			if child != nil {
				queue = append(queue, level{w: child, depth: cur.depth + 1})
			}
		}
	}
	return nil
}
