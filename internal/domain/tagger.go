package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/couchcryptid/storm-track-tagger/internal/geodesy"
	"golang.org/x/sync/errgroup"
)

// DefaultDistanceThreshold is the tagging radius in meters, roughly the
// spatial envelope of an extratropical cyclone.
const DefaultDistanceThreshold = 1010000.0

// Tagger stamps flagged grid cells with the ID of the storm whose center lies
// within Threshold of the cell at the same time step. Threshold is used as
// given: zero tags only cells at a storm center. Config.Tagger and
// NewTagger start from DefaultDistanceThreshold.
//
// When the radii of two storms overlap a flagged cell in one step, the storm
// that comes later in the track table wins. This is inherited behaviour rather
// than a nearest-storm rule and is kept so outputs stay comparable across runs.
type Tagger struct {
	Threshold   float64 // meters
	Radius      float64 // sphere radius in meters; <= 0 selects geodesy.EarthRadius
	Unit        geodesy.Unit
	Workers     int // concurrent time steps; <= 1 runs sequentially
	Coordinates []CoordinateNames
	Logger      *slog.Logger
}

// NewTagger returns a Tagger with the default threshold, Earth radius and
// degree coordinates.
func NewTagger() *Tagger {
	return &Tagger{Threshold: DefaultDistanceThreshold, Unit: geodesy.Degrees, Workers: 1}
}

// TagStats summarizes one AssignIDs run.
type TagStats struct {
	Observations  int
	Groups        int
	MatchedGroups int
	SkippedGroups int
	TaggedCells   int
	Overwrites    int
}

// stepGroup is every observation sharing one timestamp key, in table order.
type stepGroup struct {
	key  TimeKey
	obs  []StormObservation
	step int // index into the grid time axis, -1 when unmatched
}

// AssignIDs builds a fresh tag field for grid from the observations in tracks.
// Observation groups whose timestamp is not on the grid's time axis are
// skipped silently. An empty table yields an all-zero field.
func (t *Tagger) AssignIDs(ctx context.Context, tracks TrackTable, grid GridField) (TagField, TagStats, error) {
	if err := grid.Validate(); err != nil {
		return TagField{}, TagStats{}, err
	}
	lons, lats, names, err := ResolveCoordinates(grid.Coords, t.coordinates())
	if err != nil {
		return TagField{}, TagStats{}, err
	}
	field, err := geodesy.NewField(lons, lats, t.Unit)
	if err != nil {
		return TagField{}, TagStats{}, fmt.Errorf("build cell field: %w", err)
	}

	out := NewTagField(grid.Shape())
	groups := groupByTime(tracks.Observations, grid.TimeIndex())

	stats := TagStats{Observations: len(tracks.Observations), Groups: len(groups)}
	var tagged, overwrites atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(t.Workers, 1))
	for _, grp := range groups {
		if grp.step < 0 {
			stats.SkippedGroups++
			t.logger().Debug("no grid time for track timestamp, skipping", "time", grp.key, "storms", len(grp.obs))
			continue
		}
		stats.MatchedGroups++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, ow := t.tagStep(field, grid.Step(grp.step), out.Step(grp.step), grp.obs)
			tagged.Add(int64(n))
			overwrites.Add(int64(ow))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TagField{}, TagStats{}, err
	}

	stats.TaggedCells = int(tagged.Load())
	stats.Overwrites = int(overwrites.Load())
	t.logger().Debug("storm ids assigned",
		"coordinates", names.Lon+"/"+names.Lat,
		"groups", stats.Groups,
		"matched_groups", stats.MatchedGroups,
		"skipped_groups", stats.SkippedGroups,
		"tagged_cells", stats.TaggedCells,
		"overwrites", stats.Overwrites,
	)
	return out, stats, nil
}

// tagStep fills one time step of the output. binary is read-only; dst belongs
// to this step alone so steps can run concurrently. Storms are applied in
// order and later storms overwrite earlier ones. Returns the number of tagged
// cells and the number of cells reassigned to a different storm.
func (t *Tagger) tagStep(field *geodesy.Field, binary []float64, dst []int32, obs []StormObservation) (tagged, overwrites int) {
	threshold := t.Threshold
	dist := make([]float64, field.Len())
	for _, o := range obs {
		dist = field.DistancesFrom(dist, o.Lon, o.Lat, t.Radius)
		id := int32(o.StormID)
		for i, flag := range binary {
			if flag != 1 || dist[i] > threshold {
				continue
			}
			if prev := dst[i]; prev != 0 && prev != id {
				overwrites++
			}
			dst[i] = id
		}
	}
	for _, v := range dst {
		if v != 0 {
			tagged++
		}
	}
	return tagged, overwrites
}

// groupByTime groups observations by timestamp key, preserving table order
// inside each group, and resolves each key against the grid time axis.
func groupByTime(obs []StormObservation, timeIndex map[int64]int) []stepGroup {
	byKey := make(map[TimeKey]*stepGroup)
	for _, o := range obs {
		k := o.Key()
		grp, ok := byKey[k]
		if !ok {
			grp = &stepGroup{key: k, step: -1}
			// Keys built from out-of-range calendar fields never parse and
			// so never match.
			if ts, err := k.Time(); err == nil {
				if i, found := timeIndex[ts.Unix()]; found {
					grp.step = i
				}
			}
			byKey[k] = grp
		}
		grp.obs = append(grp.obs, o)
	}

	groups := make([]stepGroup, 0, len(byKey))
	for _, grp := range byKey {
		groups = append(groups, *grp)
	}
	// Deterministic processing order for logs; results do not depend on it.
	sort.Slice(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups
}

func (t *Tagger) coordinates() []CoordinateNames {
	if len(t.Coordinates) == 0 {
		return DefaultCoordinateNames
	}
	return t.Coordinates
}

func (t *Tagger) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}
