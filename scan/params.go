package scan

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// ConfigFile is the name of the system parameter file in a scan directory
const ConfigFile = "config.yaml"

// Params are the optical parameters of the rig that reconstruction needs
type Params struct {
	// Wavelength of the illumination, meters
	Wavelength float64 `yaml:"wavelen" koanf:"Wavelength"`

	// PixelPitch of the sensor, meters
	PixelPitch float64 `yaml:"pp_sensor" koanf:"PixelPitch"`

	// ZMaskSensor is the mask to sensor distance, meters
	ZMaskSensor float64 `yaml:"z_ms" koanf:"ZMaskSensor"`

	// ZObjectMask is the object to mask distance, meters
	ZObjectMask float64 `yaml:"z_om" koanf:"ZObjectMask"`

	// FileType is the image extension of the frames
	FileType string `yaml:"file_type" koanf:"FileType"`

	// Shifts is the pixel shift of the crop used in reconstruction
	Shifts []int `yaml:"shifts,flow" koanf:"Shifts"`
}

// DefaultParams are the parameters of the 405 nm setup
func DefaultParams() Params {
	return Params{
		Wavelength: 405e-9,
		PixelPitch: 2e-6,
		FileType:   "tiff",
		Shifts:     []int{0, 0}}
}

// Prepare creates dir if it does not exist and writes p to its config file.
// An existing directory is left untouched and created is false.
func Prepare(dir string, p Params) (created bool, err error) {
	if _, err = os.Stat(dir); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err = os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}
	b, err := yaml.Marshal(p)
	if err != nil {
		return true, err
	}
	err = ioutil.WriteFile(filepath.Join(dir, ConfigFile), b, 0644)
	return true, errors.Wrap(err, "writing scan config")
}

// ReadParams reads the config file of a scan directory
func ReadParams(dir string) (Params, error) {
	var p Params
	b, err := ioutil.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return p, err
	}
	err = yaml.Unmarshal(b, &p)
	return p, err
}
