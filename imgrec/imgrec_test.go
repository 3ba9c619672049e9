package imgrec

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sbinet/npyio"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

func ramp(w, h int) Frame {
	f := NewFrame(w, h)
	for i := range f.Pix {
		f.Pix[i] = uint16(i * 1000)
	}
	return f
}

func TestFileName(t *testing.T) {
	out := FileName("Basler daA1920-160um", 7, ".tiff")
	expected := "Basler_daA1920-160um_0007.tiff"
	if out != expected {
		t.Errorf("expected %s got %s", expected, out)
	}
	out = FileName("DFM 37UX226-ML", 121, "png")
	expected = "DFM_37UX226-ML_0121.png"
	if out != expected {
		t.Errorf("expected %s got %s", expected, out)
	}
}

func TestSaveTIFFRoundTrip(t *testing.T) {
	f := ramp(4, 3)
	fn := filepath.Join(t.TempDir(), "a.tiff")
	if err := Save(fn, f); err != nil {
		t.Fatal(err)
	}
	fid, err := os.Open(fn)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	im, err := tiff.Decode(fid)
	if err != nil {
		t.Fatal(err)
	}
	r, _, _, _ := im.At(3, 2).RGBA()
	if uint16(r) != f.Pix[11] {
		t.Errorf("expected pixel (3,2) = %d got %d", f.Pix[11], r)
	}
}

func TestEncodePNG(t *testing.T) {
	f := ramp(2, 2)
	var buf bytes.Buffer
	if err := Encode(&buf, f, "png"); err != nil {
		t.Fatal(err)
	}
	im, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	r, _, _, _ := im.At(1, 1).RGBA()
	if uint16(r) != 3000 {
		t.Errorf("expected 3000 got %d", r)
	}
}

func TestEncodeFITSHeader(t *testing.T) {
	f := ramp(8, 8)
	f.Meta = Meta{Index: 3, Model: "Basler daA1920-160um", Exposure: 4 * time.Millisecond, Axes: []string{"x", "y"}, Position: []float64{10, 20}}
	var buf bytes.Buffer
	if err := Encode(&buf, f, "fits"); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	if !bytes.HasPrefix(b, []byte("SIMPLE  =")) {
		t.Errorf("expected a FITS primary header, got %q", b[:16])
	}
	for _, key := range []string{"BZERO", "FRAMENUM", "STGPOS2", "INSTRUME"} {
		if !bytes.Contains(b, []byte(key)) {
			t.Errorf("expected card %s in the header", key)
		}
	}
	if len(b)%2880 != 0 {
		t.Errorf("FITS files are made of 2880 byte blocks, got %d bytes", len(b))
	}
}

func TestSaveAveragedNPY(t *testing.T) {
	a := &Averaged{Width: 3, Height: 2, Pix: []float64{0.5, 1, 1.5, 2, 2.5, 3}, Count: 4}
	fn := filepath.Join(t.TempDir(), "mean.npy")
	if err := SaveAveraged(fn, a); err != nil {
		t.Fatal(err)
	}
	fid, err := os.Open(fn)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	var m mat.Dense
	if err := npyio.Read(fid, &m); err != nil {
		t.Fatal(err)
	}
	r, c := m.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("expected a 2x3 array got %dx%d", r, c)
	}
	if m.At(1, 0) != 2 {
		t.Errorf("expected 2 at (1,0) got %f", m.At(1, 0))
	}
}

func TestAveragedFrameRounds(t *testing.T) {
	a := &Averaged{Width: 3, Height: 1, Pix: []float64{-2, 1.5, 70000}}
	f := a.Frame()
	expected := []uint16{0, 2, 65535}
	for i := range expected {
		if f.Pix[i] != expected[i] {
			t.Errorf("expected %d got %d at %d", expected[i], f.Pix[i], i)
		}
	}
}

func TestSaveUnknownExtension(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "a.bmp"), ramp(1, 1))
	if err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

func TestRecorderIncrements(t *testing.T) {
	r := &Recorder{Root: t.TempDir(), Prefix: "snap", Ext: "png"}
	first, err := r.Save(ramp(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Save(ramp(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(first) != "snap000001.png" || filepath.Base(second) != "snap000002.png" {
		t.Errorf("expected snap000001.png then snap000002.png, got %s then %s", first, second)
	}
	if filepath.Base(filepath.Dir(first)) != time.Now().Format("2006-01-02") {
		t.Errorf("expected a dated subfolder, got %s", filepath.Dir(first))
	}
}

func TestPlotHistogram(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "hist.png")
	if err := PlotHistogram(fn, ramp(16, 16), 32); err != nil {
		t.Fatal(err)
	}
	if st, err := os.Stat(fn); err != nil || st.Size() == 0 {
		t.Errorf("expected a histogram image at %s", fn)
	}
}
