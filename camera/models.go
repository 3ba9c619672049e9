package camera

import "strings"

// Kind is a camera backend
type Kind string

const (
	// OpenCV is a UVC camera read through OpenCV's VideoCapture
	OpenCV Kind = "opencv"

	// Pylon is a Basler camera read through the pylon C API
	Pylon Kind = "pylon"

	// TIS is an Imaging Source camera read through tisgrabber
	TIS Kind = "tis"
)

// Model is a supported camera and how to read it
type Model struct {
	Name string
	Kind Kind

	// Width and Height are requested at open, zero keeps the camera default
	Width  int
	Height int

	// Layout is the native pixel layout for backends that cannot report one
	Layout Layout

	// Mono8Scale multiplies 8-bit samples up to 16 bits
	Mono8Scale uint16

	// VideoFormat is the backend video format string, if it needs one
	VideoFormat string

	// FlipV flips frames top to bottom
	FlipV bool
}

// Models is the table of supported cameras
var Models = map[string]Model{
	"Sony imx179 8MP": {
		Name: "Sony imx179 8MP", Kind: OpenCV,
		Width: 4000, Height: 3000, Layout: Mono16BE},
	"See3CAM_CU135M_H03R1": {
		Name: "See3CAM_CU135M_H03R1", Kind: OpenCV,
		Width: 4200, Height: 3120, Layout: Mono8, Mono8Scale: 255},
	"HD USB Camera": {
		Name: "HD USB Camera", Kind: OpenCV,
		Layout: BGR8, Mono8Scale: 256},
	"DFM 37UX226-ML": {
		Name: "DFM 37UX226-ML", Kind: TIS,
		Width: 4000, Height: 3000, Layout: RGB64, VideoFormat: "RGB64 (4000x3000)", FlipV: true},
	"Basler daA3840-45uc": {Name: "Basler daA3840-45uc", Kind: Pylon, Layout: Mono16LE},
	"Basler daA3840-45um": {Name: "Basler daA3840-45um", Kind: Pylon, Layout: Mono16LE},
	"Basler daA1920-160um": {Name: "Basler daA1920-160um", Kind: Pylon, Layout: Mono16LE},
	"Basler acA3088-57um": {Name: "Basler acA3088-57um", Kind: Pylon, Layout: Mono16LE},
}

// LookupModel finds a model by exact name, then ignoring case
func LookupModel(name string) (Model, error) {
	if m, ok := Models[name]; ok {
		return m, nil
	}
	for k, m := range Models {
		if strings.EqualFold(k, name) {
			return m, nil
		}
	}
	return Model{}, UnsupportedModel{Model: name}
}
