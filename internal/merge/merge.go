package merge

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
)

// Option configures a merge.
type Option func(*options)

type options struct {
	onUnmatched func(*MergeAmbiguityError)
}

// WithOnUnmatched sets a hook called for every child group of a dispersed
// merge that matched no parent group. The group is dropped either way.
func WithOnUnmatched(fn func(*MergeAmbiguityError)) Option {
	return func(o *options) { o.onUnmatched = fn }
}

// MergeTwo splices child into parent according to p. The result is lazy
// over parent; child is read as needed and fully buffered only by dispersed
// placements.
func MergeTwo(parent, child Stream, p legend.Placement, opts ...Option) Stream {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	switch p.Kind {
	case legend.PlaceAfter:
		if len(p.DimensionValues) == 0 {
			return &concatStream{streams: []Stream{parent, child}}
		}
		return &afterStream{parent: parent, child: child, values: p.DimensionValues}
	case legend.PlaceDispersedAfter:
		if len(p.ParentDimensions) != len(p.ChildDimensions) {
			return ErrorStream(fmt.Errorf("dispersed placement pairs %d parent dimensions with %d child dimensions",
				len(p.ParentDimensions), len(p.ChildDimensions)))
		}
		return &dispersedStream{parent: parent, child: child, placement: p, opts: o}
	default:
		return ErrorStream(fmt.Errorf("cannot merge a block with placement %q", p.Kind))
	}
}

// BlockStream is the result stream of one block.
type BlockStream struct {
	Block  legend.Block
	Stream Stream
}

// Blocks merges block streams into one. The first block must be the root;
// every other block is merged into the stream built so far, in order, so a
// block's parent has to come before it.
func Blocks(blocks []BlockStream, opts ...Option) (Stream, error) {
	if len(blocks) == 0 {
		return SliceStream(), nil
	}
	if blocks[0].Block.Placement.Kind != legend.PlaceRoot {
		return nil, fmt.Errorf("first block %d is not the root block", blocks[0].Block.ID)
	}

	seen := map[int]bool{blocks[0].Block.ID: true}
	out := blocks[0].Stream
	for _, b := range blocks[1:] {
		if b.Block.ParentID != nil && !seen[*b.Block.ParentID] {
			return nil, fmt.Errorf("block %d is merged before its parent block %d", b.Block.ID, *b.Block.ParentID)
		}
		seen[b.Block.ID] = true
		out = MergeTwo(out, b.Stream, b.Block.Placement, opts...)
	}
	return out, nil
}

// concatStream yields its streams one after another.
type concatStream struct {
	streams []Stream
	err     error
}

func (s *concatStream) Next() bool {
	for len(s.streams) > 0 {
		if s.streams[0].Next() {
			return true
		}
		if err := s.streams[0].Err(); err != nil {
			s.err = err
			s.streams = nil
			return false
		}
		s.streams = s.streams[1:]
	}
	return false
}

func (s *concatStream) Row() Row   { return s.streams[0].Row() }
func (s *concatStream) Err() error { return s.err }

// afterStream yields parent rows and splices all child rows after the
// first parent row matching values. Without a match the child rows go last.
type afterStream struct {
	parent, child Stream
	values        []legend.DimensionValue

	spliced bool
	inChild bool
	row     Row
	err     error
}

func (s *afterStream) Next() bool {
	if s.err != nil {
		return false
	}
	if s.inChild {
		if s.child.Next() {
			s.row = s.child.Row()
			return true
		}
		if s.err = s.child.Err(); s.err != nil {
			return false
		}
		s.inChild = false
	}
	if s.parent.Next() {
		s.row = s.parent.Row()
		if !s.spliced && matchesValues(s.row, s.values) {
			s.spliced = true
			s.inChild = true
		}
		return true
	}
	if s.err = s.parent.Err(); s.err != nil {
		return false
	}
	if !s.spliced {
		s.spliced = true
		s.inChild = true
		return s.Next()
	}
	return false
}

func (s *afterStream) Row() Row   { return s.row }
func (s *afterStream) Err() error { return s.err }

func matchesValues(row Row, values []legend.DimensionValue) bool {
	for _, dv := range values {
		v, ok := row.Value(dv.LegendItemID)
		if !ok || valueKey(v) != valueKey(dv.Value) {
			return false
		}
	}
	return true
}

// dispersedStream emits every child group right after the last parent row
// of the matching parent group.
//
// Parent rows without the parent dimensions (rows spliced in by earlier
// merges) continue the current group, which is what makes chained
// dispersed merges place coarser groups after finer ones.
type dispersedStream struct {
	parent, child Stream
	placement     legend.Placement
	opts          options

	loaded  bool
	groups  map[string][]Row
	order   []string
	keyVals map[string][]formula.Value

	current    string
	hasCurrent bool
	pending    []Row
	row        Row
	done       bool
	err        error
}

func (s *dispersedStream) load() error {
	s.loaded = true
	s.groups = make(map[string][]Row)
	s.keyVals = make(map[string][]formula.Value)
	for s.child.Next() {
		row := s.child.Row()
		key, vals, ok := groupKey(row, s.placement.ChildDimensions)
		if !ok {
			return fmt.Errorf("child row is missing dispersed dimensions %v", s.placement.ChildDimensions)
		}
		if _, seen := s.groups[key]; !seen {
			s.order = append(s.order, key)
			s.keyVals[key] = vals
		}
		s.groups[key] = append(s.groups[key], row)
	}
	return s.child.Err()
}

func (s *dispersedStream) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.loaded {
		if s.err = s.load(); s.err != nil {
			return false
		}
	}

	for {
		if len(s.pending) > 0 {
			s.row, s.pending = s.pending[0], s.pending[1:]
			return true
		}
		if s.done {
			return false
		}

		if !s.parent.Next() {
			if s.err = s.parent.Err(); s.err != nil {
				return false
			}
			s.done = true
			s.flush()
			s.reportUnmatched()
			continue
		}

		row := s.parent.Row()
		key, _, ok := groupKey(row, s.placement.ParentDimensions)
		if ok && (!s.hasCurrent || key != s.current) {
			s.flush()
			s.current, s.hasCurrent = key, true
		}
		s.pending = append(s.pending, row)
	}
}

// flush queues the child group of the current parent group.
func (s *dispersedStream) flush() {
	if !s.hasCurrent {
		return
	}
	if rows, ok := s.groups[s.current]; ok {
		s.pending = append(s.pending, rows...)
		delete(s.groups, s.current)
	}
	s.hasCurrent = false
}

func (s *dispersedStream) reportUnmatched() {
	for _, key := range s.order {
		rows, ok := s.groups[key]
		if !ok {
			continue
		}
		err := &MergeAmbiguityError{Values: s.keyVals[key], Rows: len(rows)}
		slog.Debug("dropping unmatched child group", "values", formatValues(err.Values), "rows", len(rows))
		if s.opts.onUnmatched != nil {
			s.opts.onUnmatched(err)
		}
	}
}

func (s *dispersedStream) Row() Row   { return s.row }
func (s *dispersedStream) Err() error { return s.err }

// groupKey returns the key of the values at ids, or false when the row
// lacks one of them.
func groupKey(row Row, ids []int) (string, []formula.Value, bool) {
	var b strings.Builder
	vals := make([]formula.Value, len(ids))
	for i, id := range ids {
		v, ok := row.Value(id)
		if !ok {
			return "", nil, false
		}
		vals[i] = v
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(valueKey(v))
	}
	return b.String(), vals, true
}

// valueKey identifies a value for matching. Integers match exactly; a float
// matches an integer only when it is integral and within int64 range.
func valueKey(v formula.Value) string {
	switch val := v.(type) {
	case nil, formula.Null:
		return "null"
	case formula.String:
		return "s:" + string(val)
	case formula.Integer:
		return "i:" + strconv.FormatInt(int64(val), 10)
	case formula.Float:
		f := float64(val)
		if f == math.Trunc(f) && f >= -(1<<63) && f < 1<<63 {
			return "i:" + strconv.FormatInt(int64(f), 10)
		}
		return "f:" + strconv.FormatFloat(f, 'g', -1, 64)
	case formula.Boolean:
		return "b:" + strconv.FormatBool(bool(val))
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

func formatValues(vals []formula.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			v = formula.Null{}
		}
		parts[i] = formula.FormatValue(v)
	}
	return strings.Join(parts, ", ")
}
