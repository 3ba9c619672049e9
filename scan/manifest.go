package scan

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/snksoft/crc"
	yaml "gopkg.in/yaml.v2"
)

// ManifestFile is the name of the run record in a scan directory
const ManifestFile = "scan.yaml"

var crcTable = crc.NewTable(crc.CRC32)

// FrameRecord describes one captured frame
type FrameRecord struct {
	Index  int       `yaml:"index"`
	File   string    `yaml:"file"`
	Offset []float64 `yaml:"offset,flow"`
	Target []float64 `yaml:"target,flow"`
	CRC32  string    `yaml:"crc32"`
}

// Manifest is the record of a scan run
type Manifest struct {
	RunID    string        `yaml:"run_id"`
	Model    string        `yaml:"model"`
	Axes     []string      `yaml:"axes,flow"`
	Origin   []float64     `yaml:"origin,flow"`
	Started  time.Time     `yaml:"started"`
	Elapsed  time.Duration `yaml:"elapsed"`
	Points   int           `yaml:"points"`
	Complete bool          `yaml:"complete"`
	Error    string        `yaml:"error,omitempty"`
	Frames   []FrameRecord `yaml:"frames"`
}

// Write saves the manifest in dir
func (m *Manifest) Write(dir string) (string, error) {
	b, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ManifestFile)
	return path, ioutil.WriteFile(path, b, 0644)
}

// ReadManifest loads the manifest of a scan directory
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	b, err := ioutil.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, err
	}
	err = yaml.Unmarshal(b, &m)
	return m, err
}

// Checksum returns the CRC-32 of a file as 8 hex digits
func Checksum(path string) (string, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08x", crcTable.CalculateCRC(b)), nil
}
