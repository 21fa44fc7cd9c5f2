package feature

import (
	"context"
	"sort"
	"sync"

	"github.com/biogo/cluster/kmeans"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// rows adapts the feature columns of raw stats rows to the kmeans input.
type rows struct {
	data    []Vector
	featNum int
}

func (r rows) Len() int { return len(r.data) }

func (r rows) Values(i int) []float64 { return r.data[i][:r.featNum] }

// Cluster reduces the raw rows of every class to at most k feature vectors
// using k-means on the first featNum columns. Classes with k rows or fewer
// keep their rows as clusters; empty classes are left out. Classes are
// clustered concurrently, at most workers at a time (unlimited if workers
// is not positive).
func Cluster(ctx context.Context, stats Stats, k, featNum, workers int) (Dictionary, error) {
	if k <= 0 {
		return nil, errors.Errorf("feature: cluster count must be positive, got %d", k)
	}

	for class, data := range stats {
		for _, row := range data {
			if len(row) < featNum {
				return nil, errors.Errorf("feature: class %d row has %d values, need %d", class, len(row), featNum)
			}
		}
	}

	var (
		mu   sync.Mutex
		dict = make(Dictionary, len(stats))
	)
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for class, data := range stats {
		if len(data) == 0 {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			centers, err := clusterClass(rows{data: data, featNum: featNum}, k)
			if err != nil {
				return errors.Wrapf(err, "feature: cluster class %d", class)
			}
			mu.Lock()
			dict[class] = centers
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dict, nil
}

func clusterClass(data rows, k int) (*mat.Dense, error) {
	if data.Len() <= k {
		m := mat.NewDense(data.Len(), data.featNum, nil)
		for i := 0; i < data.Len(); i++ {
			m.SetRow(i, data.Values(i))
		}
		return m, nil
	}

	km, err := kmeans.New(data)
	if err != nil {
		return nil, err
	}
	km.Seed(k)
	if err := km.Cluster(); err != nil {
		return nil, err
	}

	var centers [][]float64
	for _, c := range km.Centers() {
		if len(c.Members()) == 0 {
			continue
		}
		centers = append(centers, c.V())
	}
	// kmeans center order depends on seeding.
	sort.Slice(centers, func(i, j int) bool {
		a, b := centers[i], centers[j]
		for d := range a {
			if a[d] != b[d] {
				return a[d] < b[d]
			}
		}
		return false
	})
	m := mat.NewDense(len(centers), data.featNum, nil)
	for i, c := range centers {
		m.SetRow(i, c)
	}
	return m, nil
}

// Averages returns the mean feature vector of every non-empty class.
func Averages(stats Stats, featNum int) Vectors {
	out := make(Vectors, len(stats))
	col := make([]float64, 0)
	for class, data := range stats {
		if len(data) == 0 {
			continue
		}
		avg := make(Vector, featNum)
		for k := range avg {
			col = col[:0]
			for _, row := range data {
				col = append(col, row[k])
			}
			avg[k] = stat.Mean(col, nil)
		}
		out[class] = avg
	}
	return out
}

// Classes returns the classes of stats in ascending order.
func (s Stats) Classes() []spatial.ClassID {
	classes := make([]spatial.ClassID, 0, len(s))
	for c := range s {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}
