package legend

import (
	"log/slog"
	"slices"
)

// PlacementKind says where a block's rows go in the merged stream.
type PlacementKind string

const (
	// PlaceRoot is the main block. There is exactly one.
	PlaceRoot PlacementKind = "root"

	// PlaceAfter puts the block after its parent, or after the first parent
	// row matching DimensionValues.
	PlaceAfter PlacementKind = "after"

	// PlaceDispersedAfter puts each group of child rows after the last parent
	// row of the matching parent group.
	PlaceDispersedAfter PlacementKind = "dispersed_after"
)

// Placement positions a block relative to its parent.
type Placement struct {
	Kind PlacementKind

	// DimensionValues is used by PlaceAfter.
	DimensionValues []DimensionValue

	// ParentDimensions and ChildDimensions are used by PlaceDispersedAfter:
	// the legend item ids that identify a group in the parent and in the
	// child stream, pairwise.
	ParentDimensions []int
	ChildDimensions  []int
}

// QueryType is the kind of data request a block serves.
type QueryType string

const (
	QueryResult QueryType = "result"
	QueryPivot  QueryType = "pivot"
	QueryTotals QueryType = "totals"
)

// BlockSpec is a block described explicitly by a request.
type BlockSpec struct {
	ID       int
	ParentID *int

	// Placement is derived from the block's legend when nil.
	Placement *Placement

	Limit  *int
	Offset *int
}

// Block is one independently executed query of a request.
type Block struct {
	ID int

	// ParentID is the block this one is placed relative to. Nil for the
	// root block.
	ParentID *int

	Placement     Placement
	Legend        *Legend
	LegendItemIDs []int
	QueryType     QueryType

	Limit  *int
	Offset *int

	// EmptyRow is set for template-only blocks, which always produce one
	// row.
	EmptyRow bool
}

// BlockLegend is the set of blocks of a request, root first.
type BlockLegend struct {
	Blocks []Block
	Limit  *int
	Offset *int
}

// Root returns the root block.
func (b *BlockLegend) Root() Block {
	return b.Blocks[0]
}

// Block returns the block with the given id.
func (b *BlockLegend) Block(id int) (Block, bool) {
	for _, blk := range b.Blocks {
		if blk.ID == id {
			return blk, true
		}
	}
	return Block{}, false
}

// BlockOptions are request-wide block settings.
type BlockOptions struct {
	QueryType QueryType
	Limit     *int
	Offset    *int
}

// BuildBlocks splits l into blocks.
//
// Explicit specs come first in their order; block ids that only appear on
// legend items follow in id order. The first block is always the root.
// Blocks without an explicit placement get one derived from their legend:
// totals of a result request are dispersed after the root block, other
// totals and template-only blocks go after it, tree blocks go after the
// branch they expand. A parentless non-root block is placed relative to the
// root.
func BuildBlocks(l *Legend, specs []BlockSpec, opts BlockOptions) (*BlockLegend, error) {
	if opts.QueryType == "" {
		opts.QueryType = QueryResult
	}

	used := l.BlockIDs()
	for _, s := range specs {
		used = append(used, s.ID)
	}
	slices.Sort(used)
	used = slices.Compact(used)
	if len(used) == 0 {
		used = []int{0}
	}

	var blocks []Block
	explicit := make(map[int]bool, len(specs))
	for _, s := range specs {
		if explicit[s.ID] {
			return nil, newBlockError(ErrCodeDuplicateBlock, s.ID, "block specified twice")
		}
		explicit[s.ID] = true
		blk, err := buildBlock(l, s, opts, blocks)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	for _, id := range used {
		if explicit[id] {
			continue
		}
		blk, err := buildBlock(l, BlockSpec{ID: id}, opts, blocks)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}

	blocks[0].Placement = Placement{Kind: PlaceRoot}
	blocks[0].ParentID = nil
	rootID := blocks[0].ID
	for i := range blocks[1:] {
		if blocks[i+1].ParentID == nil {
			blocks[i+1].ParentID = &rootID
		}
	}

	out := finalizeBlocks(&BlockLegend{Blocks: blocks, Limit: opts.Limit, Offset: opts.Offset})
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildBlock(l *Legend, s BlockSpec, opts BlockOptions, previous []Block) (Block, error) {
	blockLegend := l.LimitToBlock(s.ID)
	streamable := blockLegend.Streamable()

	blk := Block{
		ID:            s.ID,
		ParentID:      s.ParentID,
		Legend:        blockLegend,
		LegendItemIDs: blockLegend.StreamableIDs(),
		QueryType:     opts.QueryType,
		Limit:         s.Limit,
		Offset:        s.Offset,
		EmptyRow:      len(streamable) > 0 && allRole(streamable, RoleTemplate),
	}
	if slices.ContainsFunc(streamable, func(it Item) bool { return it.Role == RoleTotal || it.Role == RoleTemplate }) {
		blk.QueryType = QueryTotals
	}

	if s.Placement != nil {
		blk.Placement = *s.Placement
		return blk, nil
	}
	var main *Block
	if len(previous) > 0 {
		main = &previous[0]
	}
	placement, err := derivePlacement(s.ID, blockLegend, main, opts.QueryType)
	if err != nil {
		return Block{}, err
	}
	blk.Placement = placement
	return blk, nil
}

func derivePlacement(blockID int, l *Legend, main *Block, queryType QueryType) (Placement, error) {
	streamable := l.Streamable()
	if len(streamable) > 0 && allRole(streamable, RoleTemplate) {
		return Placement{Kind: PlaceAfter}, nil
	}

	totals := l.ForRole(RoleTotal)
	trees := l.ForRole(RoleTree)
	if len(totals) > 0 && len(trees) > 0 {
		return Placement{}, newBlockError(ErrCodeTreeAndTotals, blockID, "tree and totals in one block")
	}

	switch {
	case len(totals) > 0 && queryType == QueryResult && main != nil:
		if len(streamable) != len(main.LegendItemIDs) {
			return Placement{}, newBlockError(ErrCodeUnevenColumns, blockID,
				"totals block and main block have different column counts")
		}
		p := Placement{Kind: PlaceDispersedAfter}
		for idx, it := range streamable {
			if it.FieldType == Dimension && it.Role != RoleTemplate {
				p.ParentDimensions = append(p.ParentDimensions, main.LegendItemIDs[idx])
				p.ChildDimensions = append(p.ChildDimensions, it.ID)
			}
		}
		return p, nil
	case len(totals) > 0:
		return Placement{Kind: PlaceAfter}, nil
	case len(trees) > 1:
		return Placement{}, newBlockError(ErrCodeMultipleTrees, blockID, "several trees in one block")
	case len(trees) == 1:
		return Placement{Kind: PlaceAfter, DimensionValues: trees[0].DimensionValues}, nil
	default:
		return Placement{Kind: PlaceRoot}, nil
	}
}

// finalizeBlocks drops totals blocks when the main block filters by a
// measure, because totals cannot honor such filters.
func finalizeBlocks(b *BlockLegend) *BlockLegend {
	if len(b.Blocks) < 2 {
		return b
	}
	first, others := b.Blocks[0], b.Blocks[1:]
	if first.QueryType == QueryTotals {
		return b
	}
	for _, blk := range others {
		if blk.QueryType != QueryTotals {
			return b
		}
	}
	measureFilter := slices.ContainsFunc(first.Legend.ForRole(RoleFilter), func(it Item) bool {
		return it.FieldType == Measure
	})
	if !measureFilter {
		return b
	}

	slog.Info("totals removed due to measure filter", "blocks", len(others))
	return &BlockLegend{Blocks: []Block{first}, Limit: b.Limit, Offset: b.Offset}
}

func (b *BlockLegend) validate() error {
	roots := 0
	ids := make(map[int]bool, len(b.Blocks))
	for _, blk := range b.Blocks {
		ids[blk.ID] = true
		if blk.Placement.Kind == PlaceRoot {
			roots++
		}
	}
	if roots == 0 {
		return newBlockError(ErrCodeNoRootBlock, -1, "no root block")
	}
	if roots > 1 {
		return newBlockError(ErrCodeMultipleRoots, -1, "several root blocks")
	}
	for _, blk := range b.Blocks {
		if blk.ParentID != nil && !ids[*blk.ParentID] {
			return newBlockError(ErrCodeUnknownParent, blk.ID, "parent block does not exist")
		}
	}
	return nil
}

func allRole(items []Item, role Role) bool {
	for _, it := range items {
		if it.Role != role {
			return false
		}
	}
	return true
}
