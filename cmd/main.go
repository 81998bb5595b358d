package main

import (
	"context"
	"embed"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/erikgeiser/promptkit/confirmation"
	"github.com/erikgeiser/promptkit/selection"
	"github.com/erikgeiser/promptkit/textinput"
	"github.com/gookit/color"
	"github.com/radovskyb/watcher"
	"golang.org/x/mod/semver"

	lootmod "github.com/boardzilla/lootmod/internal"
	"github.com/boardzilla/lootmod/internal/treasure"
)

//go:embed version.json
var versionFS embed.FS

const debounceDurationMS = 500

func printHelp() {
	fmt.Println("usage: lootmod [command]")
	fmt.Println("")
	fmt.Println("init -root <mod root>                  Create a mod.json for a new mod")
	fmt.Println("patch -root <mod root>                 Write the patched game files to the output directory")
	fmt.Println("clean -root <mod root>                 Empty the output directory")
	fmt.Println("info -root <mod root>                  Show the mod manifest and available rules")
	fmt.Println("run -root <mod root> -port <port>      Patch, then re-patch on change and serve a preview")
	fmt.Println("version                                Shows version installed")
	fmt.Println("")
	fmt.Printf("Set %s to read game files from somewhere other than the manifest's dataRoot.\n", lootmod.DataRootEnv)
}

func main() {
	cli := &lootmodCLI{}
	if err := cli.exec(); err != nil {
		color.Printf("<red>error:</> %s\n", err)
		os.Exit(1)
	}
}

type notifier struct {
	out      func()
	notified bool
	lock     sync.Mutex
}

func (n *notifier) notify() {
	n.lock.Lock()
	defer n.lock.Unlock()
	if !n.notified {
		n.notified = true
		go func() {
			time.Sleep(debounceDurationMS * time.Millisecond)
			n.lock.Lock()
			n.notified = false
			n.lock.Unlock()
			n.out()
		}()
	}
}

type lootmodCLI struct{}

func (c *lootmodCLI) exec() error {
	if len(os.Args) == 1 {
		printHelp()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		return c.version()
	case "init":
		return c.initMod()
	case "patch":
		return c.patch()
	case "clean":
		return c.clean()
	case "info":
		return c.info()
	case "run":
		return c.run()
	default:
		fmt.Printf("Unrecognized command: %s\n\n", command)
		printHelp()
		os.Exit(1)
	}

	return nil
}

func (c *lootmodCLI) version() error {
	f, err := versionFS.ReadFile("version.json")
	if err != nil {
		return err
	}
	var data struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(f, &data); err != nil {
		return err
	}
	fmt.Printf("Version is %s\n", data.Version)
	return nil
}

// patcherFor parses the -root flag shared by most commands.
func patcherFor(name string, extra func(*flag.FlagSet)) (*lootmod.Patcher, error) {
	cmd := flag.NewFlagSet(name, flag.ExitOnError)
	root := cmd.String("root", "", "mod root")
	if extra != nil {
		extra(cmd)
	}
	if err := cmd.Parse(os.Args[2:]); err != nil {
		return nil, err
	}
	if *root == "" {
		fmt.Println("Requires -root <mod root>")
		os.Exit(1)
	}
	modRoot, err := filepath.Abs(*root)
	if err != nil {
		return nil, err
	}
	return lootmod.NewPatcher(modRoot)
}

func (c *lootmodCLI) patch() error {
	patcher, err := patcherFor("patch", nil)
	if err != nil {
		return err
	}
	fmt.Printf("Cleaning\n")
	if err := patcher.Clean(); err != nil {
		return err
	}
	report, err := patcher.Patch(context.Background())
	if err != nil {
		return err
	}
	for _, s := range report.Strings {
		if len(s.Missing) > 0 {
			color.Printf("<yellow>%s has no entries for %s</>\n", s.Path, strings.Join(s.Missing, ", "))
		}
	}
	return nil
}

func (c *lootmodCLI) clean() error {
	patcher, err := patcherFor("clean", nil)
	if err != nil {
		return err
	}
	return patcher.Clean()
}

func (c *lootmodCLI) info() error {
	patcher, err := patcherFor("info", nil)
	if err != nil {
		return err
	}
	manifest, err := patcher.Manifest()
	if err != nil {
		return err
	}

	color.Printf("<cyan>%s</> %s\n\n", manifest.Name, semver.Canonical(lootmod.CanonicalVersion(manifest.Version)))
	fmt.Printf("Game data:  %s\n", patcher.DataRoot(manifest))
	fmt.Printf("Output:     %s\n\n", patcher.OutDir(manifest))
	fmt.Printf("Treasure class files: %s\n", strings.Join(manifest.TreasureClasses.Files, ", "))
	fmt.Printf("String files:         %s\n\n", strings.Join(manifest.Strings.Files, ", "))

	enabled := map[string]bool{}
	for _, name := range manifest.TreasureClasses.Rules {
		if rule, ok := treasure.Lookup(name, treasure.Options{}); ok {
			enabled[rule.Name] = true
		}
	}
	fmt.Println("Rules:")
	for _, name := range treasure.Names() {
		if enabled[name] {
			color.Printf("  <green>✓</> %s\n", name)
		} else {
			color.Printf("  <grey>- %s</>\n", name)
		}
	}
	for _, s := range manifest.TreasureClasses.Scripts {
		color.Printf("  <green>✓</> script %s\n", s)
	}

	if err := patcher.Validate(manifest); err != nil {
		color.Printf("\n<red>Manifest has problems:</>\n%s\n", err)
	}
	return nil
}

type preset struct {
	name  string
	rules []string
}

func (p preset) String() string {
	return p.name
}

var presets = []preset{
	{"Remove clutter only", []string{"clutter-removal"}},
	{"Remove clutter and thin out potion drops", []string{"clutter-removal", "potion-bundle-clamp"}},
	{"Full rejuvenations instead of potions", []string{"clutter-removal", "potion-to-rejuvenation", "potion-bundle-clamp"}},
	{"Nothing yet, I'll edit mod.json", []string{}},
}

func (c *lootmodCLI) initMod() error {
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	root := initCmd.String("root", ".", "mod root")
	if err := initCmd.Parse(os.Args[2:]); err != nil {
		return err
	}
	modRoot, err := filepath.Abs(*root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(modRoot, 0750); err != nil {
		return err
	}

	if _, err := os.Stat(path.Join(modRoot, lootmod.ManifestFile)); err == nil {
		ok, err := confirmation.New(fmt.Sprintf("%s already exists in %s. Overwrite it?", lootmod.ManifestFile, modRoot), confirmation.No).RunPrompt()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	nameInput := textinput.New("Mod name:")
	nameInput.InitialValue = filepath.Base(modRoot)
	name, err := nameInput.RunPrompt()
	if err != nil {
		return err
	}

	dataInput := textinput.New("Extracted game data directory:")
	dataInput.InitialValue = "data"
	if env := os.Getenv(lootmod.DataRootEnv); env != "" {
		dataInput.InitialValue = env
	}
	dataRoot, err := dataInput.RunPrompt()
	if err != nil {
		return err
	}

	choice, err := selection.New("What should the mod do?", presets).RunPrompt()
	if err != nil {
		return err
	}

	manifest := lootmod.NewManifest(strings.TrimSpace(name), strings.TrimSpace(dataRoot), choice.rules)
	if err := lootmod.WriteManifest(modRoot, manifest); err != nil {
		return err
	}
	color.Printf("Wrote <green>%s</>\n", path.Join(modRoot, lootmod.ManifestFile))
	return nil
}

func (c *lootmodCLI) run() error {
	var port *int
	patcher, err := patcherFor("run", func(fs *flag.FlagSet) {
		port = fs.Int("port", 8080, "port for preview server")
	})
	if err != nil {
		return err
	}
	manifest, err := patcher.Manifest()
	if err != nil {
		log.Fatal(err)
	}

	server, err := lootmod.NewServer(patcher, *port)
	if err != nil {
		log.Fatal(err)
	}

	patchNotifier := &notifier{out: func() {
		if _, err := server.Patch(context.Background()); err != nil {
			log.Println("error during patch:", err)
			return
		}
		log.Printf("Patched due to change\n")
	}}

	go func() {
		if _, err := server.Patch(context.Background()); err != nil {
			log.Println("error during patch:", err)
		}

		w := watcher.New()
		w.SetMaxEvents(1)
		w.FilterOps(watcher.Write, watcher.Create, watcher.Remove, watcher.Rename, watcher.Move)
		if err := w.Ignore(patcher.OutDir(manifest)); err != nil {
			log.Fatal(err)
		}
		roots, err := patcher.WatchedFiles()
		if err != nil {
			log.Fatal(err)
		}
		for _, root := range roots {
			info, err := os.Stat(root)
			if err != nil {
				log.Fatal(err)
			}
			if info.IsDir() {
				if err := w.AddRecursive(root); err != nil {
					log.Fatal(err)
				}
			} else {
				if err := w.Add(root); err != nil {
					log.Fatal(err)
				}
			}
		}

		go func() {
			for {
				select {
				case e := <-w.Event:
					// outDir may have moved since start-up
					if patcher.IsOutput(e.Path) {
						if manifest, err := patcher.Manifest(); err == nil {
							if err := w.Ignore(patcher.OutDir(manifest)); err != nil {
								log.Println("watch error:", err)
							}
						}
						continue
					}
					patchNotifier.notify()
				case err := <-w.Error:
					log.Println("watch error:", err)
				case <-w.Closed:
					return
				}
			}
		}()

		if err := w.Start(100 * time.Millisecond); err != nil {
			log.Fatal(err)
		}
	}()

	fmt.Printf("Running lootmod on port %d at mod root %s\n", *port, patcher.Root())
	color.Printf("Ready on <green>:%d</>\n", *port)
	if err := server.Serve(); err != nil {
		log.Fatal(err)
	}
	return nil
}
