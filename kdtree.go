package bet

import (
	"container/heap"
	"math"
	"sort"
)

// KDTree is a KD-tree spatial index used to select gradient stencil
// neighborhoods: for each cluster center it answers k-nearest-neighbor
// queries over the (normalized) parameter samples. Points are stored in a
// flat row-major array and reordered internally via an index permutation.
//
// The tree is stored as a complete binary tree in array form: node i has
// children at 2*i+1 and 2*i+2, with min/max bounds per dimension per node.
type KDTree struct {
	data     []float64 // flat row-major point data (n * dims)
	n        int
	dims     int
	leafSize int
	metric   DistanceMetric
	idxArray []int    // permutation: tree-order position → original index
	nodes    []kdNode // one entry per tree node
	// boundsMin[node*dims + j] = min value of dimension j in node
	boundsMin []float64
	boundsMax []float64
}

type kdNode struct {
	idxStart, idxEnd int
	isLeaf           bool
}

// NewKDTree builds a KD-tree from flat row-major data with n points of
// dimensionality dims. leafSize controls the max points per leaf node.
func NewKDTree(data []float64, n, dims int, metric DistanceMetric, leafSize int) *KDTree {
	if leafSize < 1 {
		leafSize = 1
	}

	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	maxNodes := kdMaxNodes(n, leafSize)

	t := &KDTree{
		data:      dataCopy,
		n:         n,
		dims:      dims,
		leafSize:  leafSize,
		metric:    metric,
		idxArray:  idxArray,
		nodes:     make([]kdNode, maxNodes),
		boundsMin: make([]float64, maxNodes*dims),
		boundsMax: make([]float64, maxNodes*dims),
	}

	if n > 0 {
		t.buildNode(0, 0, n)
	}

	return t
}

// kdMaxNodes returns an upper bound on the number of nodes needed for a
// binary tree with n points and the given leaf size. The median split may
// not be perfectly balanced, so the bound is generous.
func kdMaxNodes(n, leafSize int) int {
	if n == 0 {
		return 1
	}
	leaves := (n + leafSize - 1) / leafSize
	depth := 0
	v := 1
	for v < leaves {
		v *= 2
		depth++
	}
	return (1 << (depth + 1)) - 1 + 2
}

// buildNode recursively builds the tree for points in idxArray[start:end].
func (t *KDTree) buildNode(nodeID, start, end int) {
	for nodeID >= len(t.nodes) {
		t.nodes = append(t.nodes, kdNode{})
		t.boundsMin = append(t.boundsMin, make([]float64, t.dims)...)
		t.boundsMax = append(t.boundsMax, make([]float64, t.dims)...)
	}

	t.computeNodeBounds(nodeID, start, end)

	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = kdNode{idxStart: start, idxEnd: end, isLeaf: true}
		return
	}

	// Split on the dimension with the greatest spread, at the median.
	splitDim := 0
	maxSpread := -1.0
	for d := 0; d < t.dims; d++ {
		spread := t.boundsMax[nodeID*t.dims+d] - t.boundsMin[nodeID*t.dims+d]
		if spread > maxSpread {
			maxSpread = spread
			splitDim = d
		}
	}

	t.sortByDimension(start, end, splitDim)
	mid := start + count/2

	t.nodes[nodeID] = kdNode{idxStart: start, idxEnd: end}

	t.buildNode(2*nodeID+1, start, mid)
	t.buildNode(2*nodeID+2, mid, end)
}

// computeNodeBounds computes min/max per dimension for idxArray[start:end].
func (t *KDTree) computeNodeBounds(nodeID, start, end int) {
	base := nodeID * t.dims
	for d := 0; d < t.dims; d++ {
		t.boundsMin[base+d] = math.Inf(1)
		t.boundsMax[base+d] = math.Inf(-1)
	}
	for i := start; i < end; i++ {
		ptIdx := t.idxArray[i]
		for d := 0; d < t.dims; d++ {
			v := t.data[ptIdx*t.dims+d]
			if v < t.boundsMin[base+d] {
				t.boundsMin[base+d] = v
			}
			if v > t.boundsMax[base+d] {
				t.boundsMax[base+d] = v
			}
		}
	}
}

// sortByDimension sorts idxArray[start:end] by the given dimension.
func (t *KDTree) sortByDimension(start, end, dim int) {
	sub := t.idxArray[start:end]
	dims := t.dims
	data := t.data
	sort.Slice(sub, func(i, j int) bool {
		return data[sub[i]*dims+dim] < data[sub[j]*dims+dim]
	})
}

// NumPoints returns the number of points in the tree.
func (t *KDTree) NumPoints() int { return t.n }

// Data returns the flat row-major point data owned by the tree.
func (t *KDTree) Data() []float64 { return t.data }

// QueryKNN finds the k nearest neighbors for each row in queryData.
// queryData is flat row-major with queryRows rows of the tree's
// dimensionality. Returns per-query neighbor indices and distances, both
// sorted by distance ascending; k is capped at the number of points.
func (t *KDTree) QueryKNN(queryData []float64, queryRows, k int) ([][]int, [][]float64) {
	if k > t.n {
		k = t.n
	}
	indices := make([][]int, queryRows)
	distances := make([][]float64, queryRows)

	for q := 0; q < queryRows; q++ {
		query := queryData[q*t.dims : (q+1)*t.dims]
		h := &knnHeap{}
		heap.Init(h)
		t.knnSearch(0, query, k, h)

		nResults := h.Len()
		idx := make([]int, nResults)
		dist := make([]float64, nResults)
		for i := nResults - 1; i >= 0; i-- {
			item := heap.Pop(h).(knnItem)
			idx[i] = item.index
			dist[i] = item.dist
		}
		indices[q] = idx
		distances[q] = dist
	}

	return indices, distances
}

// knnSearch performs a single-tree KNN traversal using a max-heap of size k.
func (t *KDTree) knnSearch(nodeID int, query []float64, k int, h *knnHeap) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.idxStart == node.idxEnd && nodeID != 0 {
		return // uninitialized node
	}

	if node.isLeaf {
		for i := node.idxStart; i < node.idxEnd; i++ {
			ptIdx := t.idxArray[i]
			pt := t.data[ptIdx*t.dims : (ptIdx+1)*t.dims]
			d := t.metric.Distance(query, pt)
			if h.Len() < k {
				heap.Push(h, knnItem{index: ptIdx, dist: d})
			} else if d < (*h)[0].dist {
				(*h)[0] = knnItem{index: ptIdx, dist: d}
				heap.Fix(h, 0)
			}
		}
		return
	}

	// Visit the nearer child first; prune the far child if its lower bound
	// exceeds the current k-th distance.
	left := 2*nodeID + 1
	right := 2*nodeID + 2

	leftRdist := t.minRdistPoint(left, query)
	rightRdist := t.minRdistPoint(right, query)

	nearChild, farChild := left, right
	farRdist := rightRdist
	if rightRdist < leftRdist {
		nearChild, farChild = right, left
		farRdist = leftRdist
	}

	t.knnSearch(nearChild, query, k, h)

	if h.Len() < k || t.metric.DistToRdist((*h)[0].dist) > farRdist {
		t.knnSearch(farChild, query, k, h)
	}
}

// minRdistPoint returns a lower bound in reduced-distance space on the
// distance between a point and any point in the given node's bounding box.
func (t *KDTree) minRdistPoint(node int, point []float64) float64 {
	if node >= len(t.nodes) {
		return math.Inf(1)
	}
	dims := t.dims
	base := node * dims

	var rdist float64
	for j := 0; j < dims; j++ {
		lo := t.boundsMin[base+j]
		hi := t.boundsMax[base+j]
		var d float64
		if point[j] < lo {
			d = lo - point[j]
		} else if point[j] > hi {
			d = point[j] - hi
		}
		switch t.metric.(type) {
		case ChebyshevMetric:
			if d > rdist {
				rdist = d
			}
		case EuclideanMetric:
			rdist += d * d
		default:
			// Manhattan and identity-reduced metrics: per-dim gaps add.
			rdist += d
		}
	}
	return rdist
}

// knnItem is a (point index, distance) pair in the KNN max-heap.
type knnItem struct {
	index int
	dist  float64
}

// knnHeap is a max-heap of knnItems ordered by distance, so the root is
// the current k-th nearest candidate and can be evicted in O(log k).
type knnHeap []knnItem

func (h knnHeap) Len() int            { return len(h) }
func (h knnHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h knnHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *knnHeap) Push(x interface{}) { *h = append(*h, x.(knnItem)) }
func (h *knnHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
