package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "fpctl.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "yaml"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func loadConfig() Config {
	c := Config{}
	if err := k.UnmarshalWithConf("", &c, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		log.Fatal(err)
	}
	return c
}

// rootUsage is printed when fpctl is run without a command
const rootUsage = `fpctl drives a Fourier ptychography rig: Thorlabs Kinesis stages and a
Basler, Imaging Source or UVC camera.

Usage:
	fpctl <command> [args]

Commands:
	run
	preview
	list
	info
	home
	move
	jog
	rename
	average
	hist
	serve
	help
	mkconf
	conf
	version`

func root() {
	fmt.Println(rootUsage)
}

func help() {
	str := `fpctl is configured by fpctl.yml in the working directory.  For a primer on YAML, see
https://yaml.org/start.html

mkconf writes the default configuration, which is a good place to start.
Setting Mock: true replaces the stages and camera with simulations.

Positions and steps are in stage counts.  Velocities, accelerations and the
jog step in Stage.Motion are in mm, mm/s and mm/s^2.

Commands:
	run                     scan Scan.Pattern and write frames to Scan.OutDir
	preview <out.png>       plot the scan path without touching hardware
	list                    list Kinesis controllers, USB cameras and supported models
	info                    open the stages and print each controller's hardware information
	home [axis...]          home axes, all of them if none are named
	move <axis=pos>...      move axes to absolute positions and leave them there
	jog                     interactive jog console
	rename <old> <new>      rename an axis and save the names to fpctl.yml
	average <n> <out> [exposure]
	                        average n frames to out (.fits, .npy, .tif, .png)
	hist <out.png> [bins]   grab one frame and plot its pixel histogram
	serve                   serve the stages, camera and scans over HTTP at Addr

Camera models:
` + modelList()
	fmt.Println(str)
}

func mkconf() {
	c := loadConfig()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadConfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("fpctl version %v\n", Version)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	rest := args[2:]
	var err error
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "version":
		pversion()
	case "run":
		err = run(loadConfig())
	case "preview":
		err = preview(loadConfig(), rest)
	case "list":
		err = list(loadConfig())
	case "info":
		err = info(loadConfig())
	case "home":
		err = home(loadConfig(), rest)
	case "move":
		err = move(loadConfig(), rest)
	case "jog":
		err = jog(loadConfig())
	case "rename":
		err = rename(loadConfig(), rest)
	case "average":
		err = average(loadConfig(), rest)
	case "hist":
		err = hist(loadConfig(), rest)
	case "serve":
		err = serve(loadConfig())
	default:
		log.Fatal("unknown command")
	}
	if err != nil {
		log.Fatal(err)
	}
}
