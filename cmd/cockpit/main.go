// Command-line interface to the cockpit server: serve, check, about.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/server"
	"github.com/brain-cockpit/cockpit/storage"

	_ "github.com/brain-cockpit/cockpit/storage/badger"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Address for http communication, overriding the configuration.
	httpAddress = flag.String("http", "", "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")

	// Profile memory usage using standard gotest system.
	memprofile = flag.String("memprofile", "", "")

	// Number of logical CPUs to use.
	useCPU = flag.Int("numcpu", 0, "")
)

const helpMessage = `
cockpit serves surface maps of brain imaging datasets over HTTP

Usage: cockpit [options] <command>

      -http       =string   Address for HTTP communication (default from config).
      -cpuprofile =string   Write CPU profile to this file.
      -memprofile =string   Write memory profile to this file on ctrl-C.
      -numcpu     =number   Number of logical CPUs to use.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	check  <config path>   Load every dataset, report and exit.
	serve  <config path>   Load every dataset and serve them.

A running server reloads its datasets on SIGHUP.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	if *useCPU != 0 {
		runtime.GOMAXPROCS(*useCPU)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if err := DoCommand(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(args []string) error {
	switch args[0] {
	case "about":
		fmt.Printf("cockpit %s\nStorage engines: %s\n", server.Version,
			strings.Join(storage.EnginesAvailable(), ", "))
		return nil
	case "check":
		return DoCheck(argument(args, 1))
	case "serve":
		return DoServe(argument(args, 1))
	default:
		return fmt.Errorf("unknown command %q, try 'cockpit help'", args[0])
	}
}

func argument(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func open(configPath string) (*server.Server, error) {
	if configPath == "" {
		return nil, fmt.Errorf("command must be followed by the path to the TOML configuration")
	}
	s, err := server.New(configPath, *httpAddress)
	if err != nil {
		return nil, err
	}
	if err := s.LogConfig().SetLogger(); err != nil {
		return nil, err
	}
	if *runVerbose {
		cockpit.SetLogMode(cockpit.DebugMode)
	}
	if err := s.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// DoCheck loads every configured dataset and prints what was loaded.
func DoCheck(configPath string) error {
	s, err := open(configPath)
	if err != nil {
		return err
	}
	defer s.Shutdown(context.Background())

	reg := s.Registry()
	for id, d := range reg.Features {
		md := d.Metadata()
		fmt.Printf("dataset %q: %d subjects, %d contrasts, %d meshes, %s\n", id,
			len(md.Subjects), len(md.TasksContrasts), len(md.Meshes), d.Store())
	}
	for id, d := range reg.Alignments {
		fmt.Printf("alignment %q: %d of %d models loaded\n", id, d.NumLoaded(), len(d.Models()))
	}
	return nil
}

// DoServe loads every dataset then serves them until interrupted.
func DoServe(configPath string) error {
	s, err := open(configPath)
	if err != nil {
		return err
	}

	// Capture ctrl+c and other interrupts.  Then handle graceful shutdown.
	stopSig := make(chan os.Signal, 1)
	signal.Notify(stopSig, os.Interrupt, syscall.SIGTERM)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sig := <-stopSig
		cockpit.Infof("Stop signal captured: %q.  Shutting down...\n", sig)
		if *memprofile != "" {
			cockpit.Infof("Storing memory profiling to %s...\n", *memprofile)
			f, err := os.Create(*memprofile)
			if err != nil {
				cockpit.Errorf("Can't create memory profile: %v\n", err)
			} else {
				pprof.WriteHeapProfile(f)
				f.Close()
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	}()

	reloadSig := make(chan os.Signal, 1)
	signal.Notify(reloadSig, syscall.SIGHUP)
	go func() {
		for range reloadSig {
			cockpit.Infof("Reloading datasets of %s...\n", s.ConfigLocation())
			err := s.Reload(context.Background())
			if err == server.ErrServerClosed {
				signal.Stop(reloadSig)
				return
			}
			if err != nil {
				cockpit.Errorf("Reload failed, keeping datasets in service: %v\n", err)
			}
		}
	}()

	if err := s.Serve(); err != nil {
		s.Shutdown(context.Background())
		return err
	}
	<-stopped
	cockpit.Shutdown()
	return nil
}
