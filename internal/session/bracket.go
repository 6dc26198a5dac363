// internal/session/bracket.go
package session

import (
	"math/bits"

	"github.com/volleyhq/volley/internal/arena"
)

// BracketNode is one match of a single-elimination tournament. The tree is
// perfect: capacity 2^k yields k rounds, with round 1 at the leaves and the
// final at the root. Winners flow upward into the parent's player slot.
type BracketNode struct {
	Round int

	Players [2]*arena.Player
	Winner  *arena.Player

	Left  *BracketNode
	Right *BracketNode
	Next  *BracketNode

	Match *arena.Match
}

// NewBracket builds the tree for the given player capacity and returns the
// root plus the nodes grouped by round, left to right.
func NewBracket(capacity int) (*BracketNode, map[int][]*BracketNode, error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, nil, ErrBadCapacity
	}
	depth := bits.Len(uint(capacity)) - 1
	root := buildNode(depth, nil)
	rounds := make(map[int][]*BracketNode)
	collectByRound(root, rounds)
	return root, rounds, nil
}

func buildNode(round int, parent *BracketNode) *BracketNode {
	n := &BracketNode{Round: round, Next: parent}
	if round > 1 {
		n.Left = buildNode(round-1, n)
		n.Right = buildNode(round-1, n)
	}
	return n
}

func collectByRound(n *BracketNode, rounds map[int][]*BracketNode) {
	if n == nil {
		return
	}
	collectByRound(n.Left, rounds)
	collectByRound(n.Right, rounds)
	rounds[n.Round] = append(rounds[n.Round], n)
}

// SlotInNext is the player slot this node's winner occupies in its parent.
func (n *BracketNode) SlotInNext() int {
	if n.Next != nil && n.Next.Right == n {
		return 1
	}
	return 0
}

// Promote records the winner and feeds it into the next round. The final's
// winner stays on the node as the champion.
func (n *BracketNode) Promote(winner *arena.Player) {
	n.Winner = winner
	if n.Next != nil {
		n.Next.Players[n.SlotInNext()] = winner
	}
}

// SeedBracket distributes players into the round-1 leaves in join order:
// leaf i gets players 2i and 2i+1. len(players) must equal 2*len(leaves).
func SeedBracket(rounds map[int][]*BracketNode, players []*arena.Player) {
	leaves := rounds[1]
	for i, leaf := range leaves {
		leaf.Players[0] = players[2*i]
		leaf.Players[1] = players[2*i+1]
	}
}
