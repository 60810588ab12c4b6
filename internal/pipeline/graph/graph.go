package graph

// Node is a named stage in the generation dependency chain.
type Node string

const (
	NodeIndustries          Node = "industries"
	NodeProblemSuggestions  Node = "problemSuggestions"
	NodePrimaryProblem      Node = "primaryProblem"
	NodeSelectedProblems    Node = "selectedProblems"
	NodeSolutionSuggestions Node = "solutionSuggestions"
	NodeSelectedSolutions   Node = "selectedSolutions"
	NodeOutline             Node = "outline"
	NodeContent             Node = "content"
	NodeDerivedAssets       Node = "derivedAssets"
)

// Chain is the fixed dependency order. A node's stored value is only valid
// while every node before it is unchanged.
var Chain = []Node{
	NodeIndustries,
	NodeProblemSuggestions,
	NodePrimaryProblem,
	NodeSelectedProblems,
	NodeSolutionSuggestions,
	NodeSelectedSolutions,
	NodeOutline,
	NodeContent,
	NodeDerivedAssets,
}

// selectionSlots caps committed selection sizes per node. Zero means the
// node's selection is unbounded (or not selection-bearing).
var selectionSlots = map[Node]int{
	NodePrimaryProblem:   1,
	NodeSelectedProblems: ProblemSlots,
}

// ProblemSlots is the maximum size of a committed problem selection.
const ProblemSlots = 5

func chainIndex(n Node) int {
	for i, c := range Chain {
		if c == n {
			return i
		}
	}
	return -1
}

// Downstream returns the nodes strictly after n in the chain.
func Downstream(n Node) []Node {
	idx := chainIndex(n)
	if idx < 0 || idx+1 >= len(Chain) {
		return nil
	}
	out := make([]Node, len(Chain)-idx-1)
	copy(out, Chain[idx+1:])
	return out
}

// Upstream returns the nodes strictly before n in the chain.
func Upstream(n Node) []Node {
	idx := chainIndex(n)
	if idx <= 0 {
		return nil
	}
	out := make([]Node, idx)
	copy(out, Chain[:idx])
	return out
}

// Valid reports whether n names a stage in the chain.
func Valid(n Node) bool { return chainIndex(n) >= 0 }

// sameSet compares two identifier lists order-independently.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
		if seen[v] < 0 {
			return false
		}
	}
	return true
}
