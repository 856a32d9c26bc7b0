// Package huffman builds optimal prefix codes from symbol counts.
//
// The tree lives in an arena: leaves occupy indices 0..n-1 in input order
// and internal nodes are appended as they are formed. The frontier is a
// min-heap over arena indices keyed by (count, index), so equal counts are
// taken oldest first.
package huffman

import (
	"container/heap"

	"github.com/dgryski/go-bitstream"
	"github.com/pkg/errors"

	"github.com/seiflotfy/huffscan/errs"
)

const noChild = -1

// node is either a leaf (left == noChild) carrying an input index, or an
// internal node with two children.
type node struct {
	count       uint64
	leaf        int
	left, right int
	code        Codeword
}

func (n *node) isLeaf() bool { return n.left == noChild }

// Entry is one leaf of a built tree.
type Entry struct {
	// Index is the position of the symbol in the counts passed to Build.
	Index int
	Count uint64
	Code  Codeword
}

// Tree is a built Huffman tree with codewords assigned.
type Tree struct {
	nodes  []node
	root   int
	leaves int
	// order lists leaf arena indices in breadth-first order.
	order  []int
	maxLen int
}

type frontier struct {
	nodes []node
	idx   []int
}

func (f *frontier) Len() int { return len(f.idx) }

func (f *frontier) Less(i, j int) bool {
	a, b := f.idx[i], f.idx[j]
	if ca, cb := f.nodes[a].count, f.nodes[b].count; ca != cb {
		return ca < cb
	}
	return a < b
}

func (f *frontier) Swap(i, j int) { f.idx[i], f.idx[j] = f.idx[j], f.idx[i] }

func (f *frontier) Push(x any) { f.idx = append(f.idx, x.(int)) }

func (f *frontier) Pop() any {
	old := f.idx
	n := len(old)
	x := old[n-1]
	f.idx = old[:n-1]
	return x
}

// Build pairs the two least frequent nodes until one remains, then assigns
// codewords breadth-first from the root: the first node taken becomes the
// left child (code bit 1), the second the right child (code bit 0).
//
// A single symbol gets the empty codeword. Every count must be positive.
func Build(counts []uint64) (*Tree, error) {
	if len(counts) == 0 {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "huffman: no symbols to code")
	}

	nodes := make([]node, len(counts), 2*len(counts)-1)
	var total uint64
	for i, c := range counts {
		if c == 0 {
			return nil, errors.Wrapf(errs.ErrInvalidArgument, "huffman: symbol %d has zero count", i)
		}
		nodes[i] = node{count: c, leaf: i, left: noChild, right: noChild}
		total += c
	}

	f := &frontier{nodes: nodes, idx: make([]int, len(counts))}
	for i := range f.idx {
		f.idx[i] = i
	}
	heap.Init(f)
	for f.Len() > 1 {
		a := heap.Pop(f).(int)
		b := heap.Pop(f).(int)
		f.nodes = append(f.nodes, node{
			count: f.nodes[a].count + f.nodes[b].count,
			leaf:  noChild,
			left:  a,
			right: b,
		})
		heap.Push(f, len(f.nodes)-1)
	}

	t := &Tree{
		nodes:  f.nodes,
		root:   heap.Pop(f).(int),
		leaves: len(counts),
	}
	if err := t.assign(); err != nil {
		return nil, err
	}

	var sum uint64
	for _, li := range t.order {
		sum += t.nodes[li].count
	}
	if sum != total || t.nodes[t.root].count != total || len(t.order) != len(counts) {
		return nil, errors.Errorf("huffman: tree covers %d symbols in %d leaves, input has %d in %d",
			sum, len(t.order), total, len(counts))
	}
	return t, nil
}

func (t *Tree) assign() error {
	t.nodes[t.root].code = RootCode
	t.order = make([]int, 0, t.leaves)
	queue := []int{t.root}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		n := &t.nodes[i]
		if n.isLeaf() {
			t.order = append(t.order, i)
			if l := n.code.Len(); l > t.maxLen {
				t.maxLen = l
			}
			continue
		}
		if n.code.Len() >= MaxCodeLen {
			return errors.Wrapf(errs.ErrUnsupportedConfiguration,
				"huffman: codewords longer than %d bits", MaxCodeLen)
		}
		t.nodes[n.left].code = n.code.Left()
		t.nodes[n.right].code = n.code.Right()
		queue = append(queue, n.left, n.right)
	}
	return nil
}

// Len returns the number of coded symbols.
func (t *Tree) Len() int { return t.leaves }

// MaxLen returns the longest codeword length.
func (t *Tree) MaxLen() int { return t.maxLen }

// Entries lists the leaves in breadth-first order.
func (t *Tree) Entries() []Entry {
	out := make([]Entry, len(t.order))
	for i, li := range t.order {
		n := t.nodes[li]
		out[i] = Entry{Index: n.leaf, Count: n.count, Code: n.code}
	}
	return out
}

// Codes returns the codeword of every symbol, indexed like the counts passed
// to Build.
func (t *Tree) Codes() []Codeword {
	out := make([]Codeword, t.leaves)
	for _, li := range t.order {
		out[t.nodes[li].leaf] = t.nodes[li].code
	}
	return out
}

// WeightedLength returns the sum of count times codeword length, the size
// of the coded data in bits.
func (t *Tree) WeightedLength() uint64 {
	var bits uint64
	for _, li := range t.order {
		n := t.nodes[li]
		bits += n.count * uint64(n.code.Len())
	}
	return bits
}

// BitReader is the source Decode pulls code bits from.
type BitReader interface {
	ReadBit() (bitstream.Bit, error)
}

// Decode walks the tree from the root, reading one bit per level, and
// returns the input index of the leaf reached. A single-symbol tree reads
// nothing.
func (t *Tree) Decode(r BitReader) (int, error) {
	i := t.root
	for depth := 0; !t.nodes[i].isLeaf(); depth++ {
		b, err := r.ReadBit()
		if err != nil {
			if errs.IsEOF(err) {
				return 0, errs.Truncated("huffman: bitstream ended %d bits into a codeword", depth)
			}
			return 0, errors.WithStack(err)
		}
		if b == bitstream.One {
			i = t.nodes[i].left
		} else {
			i = t.nodes[i].right
		}
	}
	return t.nodes[i].leaf, nil
}
