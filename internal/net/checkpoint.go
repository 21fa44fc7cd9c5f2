package net

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// checkpoint is the gob payload of one saved network.
type checkpoint struct {
	Role   string
	Epoch  string
	Params []float64
}

// Checkpoints stores network parameters under Dir, one file per role and
// epoch label.
type Checkpoints struct {
	Dir string
}

// Path returns the file holding role at epoch.
func (c Checkpoints) Path(role Role, epoch string) string {
	return filepath.Join(c.Dir, fmt.Sprintf("%s_net_%s.gob", epoch, role))
}

// Save writes the parameters of m.
func (c Checkpoints) Save(m Module, role Role, epoch string) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return errors.Wrap(err, "net: create checkpoint directory")
	}
	path := c.Path(role, epoch)
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "net: create %s", path)
	}
	if err := gob.NewEncoder(file).Encode(checkpoint{Role: string(role), Epoch: epoch, Params: m.Params()}); err != nil {
		file.Close()
		return errors.Wrapf(err, "net: encode %s", path)
	}
	return errors.Wrapf(file.Close(), "net: close %s", path)
}

// Load reads the parameters of role at epoch into m. A missing file yields
// an error satisfying errors.Is(err, fs.ErrNotExist).
func (c Checkpoints) Load(m Module, role Role, epoch string) error {
	path := c.Path(role, epoch)
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "net: open %s checkpoint", role)
	}
	defer file.Close()

	var cp checkpoint
	if err := gob.NewDecoder(file).Decode(&cp); err != nil {
		return errors.Wrapf(err, "net: decode %s", path)
	}
	if cp.Role != string(role) {
		return errors.Errorf("net: %s holds role %s, want %s", path, cp.Role, role)
	}
	if want := len(m.Params()); len(cp.Params) != want {
		return errors.Errorf("net: %s holds %d parameters, network has %d", path, len(cp.Params), want)
	}
	m.SetParams(cp.Params)
	return nil
}
