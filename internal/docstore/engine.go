package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keeperdata/keeperdata/internal/kderrors"
	"github.com/keeperdata/keeperdata/internal/types"
)

// QueryParameters mirrors spec.md §4.6's shape exactly: collection,
// filter, sort, selectFields, skip, top, includeCount.
type QueryParameters struct {
	Collection   string
	Filter       FilterExpression
	SortField    string
	SortDesc     bool
	SelectFields []string
	Skip         int
	Top          int
	IncludeCount bool
}

// QueryResult mirrors spec.md §4.6: collection, data, count,
// totalCount, skip, top, executedAt.
type QueryResult struct {
	Collection string
	Data       []types.Record
	Count      int
	TotalCount *int
	Skip       int
	Top        int
	ExecutedAt time.Time
}

// QueryService is the read-only query contract over a collection
// (spec.md §4.6). Writes go through DocumentStore.
type QueryService interface {
	Query(ctx context.Context, params QueryParameters) (QueryResult, error)
}

// Combine concatenates data across results in order, sums TotalCount
// when every result has one set, preserves the first result's
// Collection, and stamps ExecutedAt with now (spec.md §4.6, §8's
// "query combine law": Combine(r1, r2).data == r1.data ++ r2.data,
// Combine(r) ≡ r except for ExecutedAt).
func Combine(now time.Time, results ...QueryResult) QueryResult {
	if len(results) == 0 {
		return QueryResult{ExecutedAt: now}
	}

	var data []types.Record
	totalCount := 0
	haveTotalCount := true
	count := 0
	for _, r := range results {
		data = append(data, r.Data...)
		count += r.Count
		if r.TotalCount == nil {
			haveTotalCount = false
		} else {
			totalCount += *r.TotalCount
		}
	}

	combined := QueryResult{
		Collection: results[0].Collection,
		Data:       data,
		Count:      count,
		Skip:       results[0].Skip,
		Top:        results[0].Top,
		ExecutedAt: now,
	}
	if haveTotalCount {
		combined.TotalCount = &totalCount
	}
	return combined
}

// DocumentStore adds write access on top of QueryService: upserts keyed
// by ID, used by the ingestion pipeline's RecordUpserter.
type DocumentStore interface {
	QueryService
	Upsert(ctx context.Context, collection string, id string, record types.Record) (changed bool, err error)
	Get(ctx context.Context, collection string, id string) (types.Record, bool, error)
}

// Engine is an in-memory reference implementation of DocumentStore,
// grounded on the teacher's policy package's "pluggable strategy over
// a shared contract" shape: one engine, swappable by construction, no
// vendor SDK wired (spec.md §1 excludes vendor-SDK construction).
type Engine struct {
	mu          sync.RWMutex
	collections map[string]map[string]types.Record
}

// NewEngine creates an empty Engine.
func NewEngine() *Engine {
	return &Engine{collections: make(map[string]map[string]types.Record)}
}

func (e *Engine) collection(name string) map[string]types.Record {
	c, ok := e.collections[name]
	if !ok {
		c = make(map[string]types.Record)
		e.collections[name] = c
	}
	return c
}

// Upsert inserts or replaces the record with the given id, returning
// whether the stored value actually changed (used by the ingestion
// pipeline's change-detection, spec.md §4.4).
func (e *Engine) Upsert(_ context.Context, collection string, id string, record types.Record) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.collection(collection)
	existing, ok := c[id]
	changed := !ok || !recordsEqual(existing, record)
	c[id] = cloneRecord(record)
	return changed, nil
}

// Get returns the record with the given id, if present.
func (e *Engine) Get(_ context.Context, collection string, id string) (types.Record, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[collection]
	if !ok {
		return nil, false, nil
	}
	rec, ok := c[id]
	if !ok {
		return nil, false, nil
	}
	return cloneRecord(rec), true, nil
}

// Query evaluates params.Filter over the collection and returns one
// page of results, sorted deterministically by id when SortField is
// empty (spec.md §4.6's "stable pagination" requirement). top <= 0 is
// rejected with ErrBadRange, except the top=0+includeCount "count-only
// probe" the spec calls out explicitly.
func (e *Engine) Query(_ context.Context, params QueryParameters) (QueryResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	countOnly := params.Top == 0 && params.IncludeCount
	if params.Top < 0 || (params.Top == 0 && !params.IncludeCount) {
		return QueryResult{}, kderrors.New(kderrors.ErrBadRange, "query", params.Collection, fmt.Errorf("top must be > 0 (or 0 with includeCount)"))
	}
	if params.Skip < 0 {
		return QueryResult{}, kderrors.New(kderrors.ErrBadRange, "query", params.Collection, fmt.Errorf("skip must be >= 0"))
	}

	c := e.collections[params.Collection]
	ids := make([]string, 0, len(c))
	for id, rec := range c {
		ok, err := Evaluate(params.Filter, rec)
		if err != nil {
			return QueryResult{}, kderrors.New(kderrors.ErrBadExpression, "query", params.Collection, err)
		}
		if ok {
			ids = append(ids, id)
		}
	}

	sortKey := params.SortField
	sort.Slice(ids, func(i, j int) bool {
		vi, vj := ids[i], ids[j]
		if sortKey != "" {
			vi = sortString(c[ids[i]][sortKey])
			vj = sortString(c[ids[j]][sortKey])
		}
		if vi == vj {
			return ids[i] < ids[j]
		}
		if params.SortDesc {
			return vi > vj
		}
		return vi < vj
	})

	result := QueryResult{Collection: params.Collection, Skip: params.Skip, Top: params.Top, ExecutedAt: time.Now().UTC()}
	if params.IncludeCount {
		total := len(ids)
		result.TotalCount = &total
	}

	if countOnly {
		return result, nil
	}

	start := params.Skip
	if start > len(ids) {
		start = len(ids)
	}
	end := start + params.Top
	if end > len(ids) {
		end = len(ids)
	}

	records := make([]types.Record, 0, end-start)
	for _, id := range ids[start:end] {
		rec := cloneRecord(c[id])
		records = append(records, projectFields(rec, params.SelectFields))
	}
	result.Data = records
	result.Count = len(records)
	return result, nil
}

func projectFields(rec types.Record, fields []string) types.Record {
	if len(fields) == 0 {
		return rec
	}
	out := make(types.Record, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

func sortString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func cloneRecord(r types.Record) types.Record {
	out := make(types.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func recordsEqual(a, b types.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", v) != fmt.Sprintf("%v", bv) {
			return false
		}
	}
	return true
}

var _ DocumentStore = (*Engine)(nil)

// collectionKey is a small helper future collection-scoped components
// (lineage, cleanse) can use to namespace dataset collections by name
// without string-concatenation duplicated across packages.
func collectionKey(datasetName string) string {
	return strings.ToLower(strings.TrimSpace(datasetName))
}
