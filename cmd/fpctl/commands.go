package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fpscan/fpscan/camera"
	"github.com/fpscan/fpscan/imgrec"
	"github.com/fpscan/fpscan/mathx"
	"github.com/fpscan/fpscan/pattern"
	"github.com/fpscan/fpscan/scan"
	"github.com/fpscan/fpscan/util"
	"github.com/fpscan/fpscan/uvc"
	"github.com/pkg/errors"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"
)

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func modelList() string {
	names := make([]string, 0, len(camera.Models))
	for k := range camera.Models {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "\t%-24s %s\n", n, camera.Models[n].Kind)
	}
	return b.String()
}

// parseTargets splits axis=position arguments
func parseTargets(args []string) ([]string, []float64, error) {
	if len(args) == 0 {
		return nil, nil, errors.New("no axis=position given")
	}
	names := make([]string, len(args))
	pos := make([]float64, len(args))
	for i, a := range args {
		kv := strings.SplitN(a, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, nil, fmt.Errorf("%q is not axis=position", a)
		}
		f, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "position of %s", kv[0])
		}
		names[i], pos[i] = kv[0], f
	}
	return names, pos, nil
}

// parseExposure reads a duration, or a bare number of seconds
func parseExposure(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("exposure %q is neither a duration nor seconds", s)
	}
	return util.SecsToDuration(f), nil
}

func run(c Config) error {
	p, err := buildPattern(c.Scan)
	if err != nil {
		return err
	}
	created, err := scan.Prepare(c.Scan.OutDir, c.Scan.Params)
	if err != nil {
		return err
	}
	if !created {
		log.Printf("%s exists, its %s was left as is", c.Scan.OutDir, scan.ConfigFile)
	}
	ctx, stop := interruptible()
	defer stop()
	s, err := openStage(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())
	cam, err := openCamera(c)
	if err != nil {
		return err
	}
	defer cam.Close()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " scanning",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"}})
	if err != nil {
		return err
	}
	d := scan.Driver{
		Stage:         s,
		Camera:        cam,
		Axes:          c.Scan.Axes,
		Origin:        c.Scan.Origin,
		OutDir:        c.Scan.OutDir,
		Ext:           c.Scan.Ext,
		SettleMove:    c.Scan.SettleMove,
		SettleCapture: c.Scan.SettleCapture,
		Logger:        log.Default(),
		Progress: func(done, total int) {
			spinner.Message(fmt.Sprintf("%d/%d", done, total))
		}}
	spinner.Start()
	res, err := d.Run(ctx, p)
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		return err
	}
	spinner.StopMessage(fmt.Sprintf("%d frames in %v", len(res.Frames), res.Elapsed.Round(time.Millisecond)))
	spinner.Stop()
	log.Printf("run %s, manifest %s", res.RunID, res.Manifest)
	return nil
}

func preview(c Config, args []string) error {
	out := "pattern.png"
	if len(args) > 0 {
		out = args[0]
	}
	p, err := buildPattern(c.Scan)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s %dx%d, %d points", c.Scan.Pattern, c.Scan.NX, c.Scan.NY, len(p))
	if c.Scan.PatternFile != "" {
		title = fmt.Sprintf("%s, %d points", c.Scan.PatternFile, len(p))
	}
	if err = pattern.Plot(out, p, title); err != nil {
		return err
	}
	log.Printf("wrote %s", out)
	return nil
}

func list(c Config) error {
	devs, err := bus(c).List()
	if err != nil {
		return errors.Wrap(err, "listing Kinesis controllers")
	}
	fmt.Printf("Kinesis controllers (%d):\n", len(devs))
	for _, d := range devs {
		fmt.Printf("\t%s %s on %s\n", d.Model, d.Serial, d.Port)
	}
	cams, err := uvc.ListCameras()
	if err != nil {
		log.Printf("listing USB cameras: %v", err)
	} else {
		fmt.Printf("USB video cameras (%d):\n", len(cams))
		for _, u := range cams {
			fmt.Printf("\t%v\n", u)
		}
	}
	fmt.Println("Supported camera models:")
	fmt.Print(modelList())
	return nil
}

func home(c Config, args []string) error {
	ctx, stop := interruptible()
	defer stop()
	s, err := openStage(ctx, c)
	if err != nil {
		return err
	}
	defer release(s)
	return s.Home(ctx, args...)
}

func move(c Config, args []string) error {
	names, pos, err := parseTargets(args)
	if err != nil {
		return err
	}
	ctx, stop := interruptible()
	defer stop()
	s, err := openStage(ctx, c)
	if err != nil {
		return err
	}
	defer release(s)
	if err = s.MoveTo(ctx, names, pos); err != nil {
		return err
	}
	now, err := s.Positions()
	if err != nil {
		return err
	}
	bus := kinesisBus{cfg: c.Stage}
	for _, n := range s.Names() {
		ax, _ := s.Axis(n)
		sc, err := bus.scale(ax.Serial)
		if err != nil {
			fmt.Printf("%s\t%.0f\n", n, now[n])
			continue
		}
		fmt.Printf("%s\t%.0f\t%.4f mm\n", n, now[n], mathx.FromCounts(int32(now[n]), sc.Position))
	}
	return nil
}

func writeConfig(c Config) error {
	f, err := os.Create(ConfigFileName)
	if err != nil {
		return err
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(c)
}

func rename(c Config, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: fpctl rename <old> <new>")
	}
	old, new := args[0], args[1]
	s, err := openStage(context.Background(), c)
	if err != nil {
		return err
	}
	defer release(s)
	if _, err = s.Axis(old); err != nil {
		return err
	}
	s.Rename(old, new)
	if _, err = s.Axis(new); err != nil {
		return errors.Errorf("%s was not renamed to %s", old, new)
	}
	c.Stage.Motion.Names = s.Names()
	c.Stage.Motion.Limits = s.Config.Limits
	return errors.Wrap(writeConfig(c), "saving axis names")
}

func average(c Config, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: fpctl average <n> <out> [exposure]")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.Wrap(err, "frame count")
	}
	out := args[1]
	if !imgrec.Supported(out) {
		return fmt.Errorf("%s has no supported image extension", out)
	}
	var exp time.Duration
	if len(args) > 2 {
		if exp, err = parseExposure(args[2]); err != nil {
			return err
		}
	}
	cam, err := openCamera(c)
	if err != nil {
		return err
	}
	defer cam.Close()
	a, err := cam.CaptureAveraged(n, exp)
	if err != nil {
		return err
	}
	if err = imgrec.SaveAveraged(out, a); err != nil {
		return err
	}
	log.Printf("wrote the mean of %d frames to %s", n, out)
	return nil
}

func hist(c Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: fpctl hist <out.png> [bins]")
	}
	bins := 256
	if len(args) > 1 {
		var err error
		if bins, err = strconv.Atoi(args[1]); err != nil || bins < 1 {
			return fmt.Errorf("bad bin count %q", args[1])
		}
	}
	cam, err := openCamera(c)
	if err != nil {
		return err
	}
	defer cam.Close()
	f, err := cam.Grab()
	if err != nil {
		return err
	}
	if err = imgrec.PlotHistogram(args[0], f, bins); err != nil {
		return err
	}
	lo, hi := f.Pix[0], f.Pix[0]
	for _, v := range f.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	log.Printf("%dx%d frame at %v spans %d to %d, histogram in %s", f.Width, f.Height, cam.Exposure(), lo, hi, args[0])
	return nil
}

func info(c Config) error {
	s, err := openStage(context.Background(), c)
	if err != nil {
		return err
	}
	defer release(s)
	lines, err := stageInfo(s)
	for _, l := range lines {
		fmt.Println(l)
	}
	return err
}
