package feature

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// record is the persisted form of one dictionary class.
type record struct {
	Class int
	Rows  int
	Cols  int
	Data  []float64
}

// Write encodes d to w as a zstd-compressed gob stream, classes ascending.
func Write(w io.Writer, d Dictionary) error {
	classes := make([]spatial.ClassID, 0, len(d))
	for c, m := range d {
		if m != nil {
			classes = append(classes, c)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	records := make([]record, 0, len(classes))
	for _, c := range classes {
		m := d[c]
		r, cols := m.Dims()
		data := make([]float64, 0, r*cols)
		for i := 0; i < r; i++ {
			data = append(data, m.RawRowView(i)...)
		}
		records = append(records, record{Class: int(c), Rows: r, Cols: cols, Data: data})
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "feature: create zstd writer")
	}
	if err := gob.NewEncoder(zw).Encode(records); err != nil {
		zw.Close()
		return errors.Wrap(err, "feature: encode dictionary")
	}
	return errors.Wrap(zw.Close(), "feature: flush dictionary")
}

// Read decodes a dictionary written by Write.
func Read(r io.Reader) (Dictionary, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "feature: create zstd reader")
	}
	defer zr.Close()

	var records []record
	if err := gob.NewDecoder(zr).Decode(&records); err != nil {
		return nil, errors.Wrap(err, "feature: decode dictionary")
	}
	d := make(Dictionary, len(records))
	for _, rec := range records {
		if rec.Rows <= 0 || rec.Cols <= 0 || len(rec.Data) != rec.Rows*rec.Cols {
			return nil, errors.Errorf("feature: class %d has %d values for %dx%d clusters", rec.Class, len(rec.Data), rec.Rows, rec.Cols)
		}
		d[spatial.ClassID(rec.Class)] = mat.NewDense(rec.Rows, rec.Cols, rec.Data)
	}
	return d, nil
}

// SaveFile writes d to path, creating parent directories.
func SaveFile(path string, d Dictionary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "feature: create dictionary directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "feature: create dictionary file")
	}
	if err := Write(f, d); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "feature: close dictionary file")
}

// LoadFile reads a dictionary from path.
func LoadFile(path string) (Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "feature: open dictionary file")
	}
	defer f.Close()
	d, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "feature: read %s", path)
	}
	return d, nil
}

// Cache keeps recently loaded dictionaries by path. Cached dictionaries are
// shared and must not be modified. A Cache is safe for concurrent use.
type Cache struct {
	entries *lru.Cache
}

// NewCache creates a cache holding up to size dictionaries.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "feature: create dictionary cache")
	}
	return &Cache{entries: c}, nil
}

// Load returns the dictionary at path, reading it on a miss.
func (c *Cache) Load(path string) (Dictionary, error) {
	if v, ok := c.entries.Get(path); ok {
		return v.(Dictionary), nil
	}
	d, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	c.entries.Add(path, d)
	return d, nil
}

// Forget drops path from the cache, as after rewriting the file.
func (c *Cache) Forget(path string) {
	c.entries.Remove(path)
}
