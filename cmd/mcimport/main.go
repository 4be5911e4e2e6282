// Command mcimport converts a Minecraft world archive into a Blockforge
// project without opening a window.
//
//	mcimport [-name NAME] [-rules rules.json] [-region x,y,z:x,y,z] [-fallback ID] [-dry-run] world.zip
//
// Store flags (-backend, -config) are shared with the editor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/config"
	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/importer"
	"github.com/Faultbox/blockforge/internal/logger"
	"github.com/Faultbox/blockforge/internal/persistence"
)

var (
	flagName     = flag.String("name", "", "Project name (default: archive name)")
	flagRules    = flag.String("rules", "", "JSON rules file (default: import.rules_file or built-in rules)")
	flagRegion   = flag.String("region", "", "Block region to import, x,y,z:x,y,z")
	flagFallback = flag.Int("fallback", -1, "Block id for names no rule matches")
	flagDryRun   = flag.Bool("dry-run", false, "Convert and report without writing a project")
)

// options is one import invocation.
type options struct {
	Archive  string
	Name     string
	Rules    importer.RulesFile
	Region   *voxel.Region
	Fallback *voxel.BlockID
	DryRun   bool
}

// summary describes a finished import.
type summary struct {
	Project persistence.Project
	Blocks  int
	Chunks  int
	Columns int
	Digest  uint64
	Bytes   int
}

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	opts, err := parseOptions(cfg, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcimport: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := blocks.NewDefaultRegistry()
	if cfg.Blocks.CatalogFile != "" {
		if err := blocks.LoadCatalog(reg, cfg.Blocks.CatalogFile); err != nil {
			logger.Error("block catalog", zap.Error(err))
			os.Exit(1)
		}
	}

	sum, err := importArchive(ctx, cfg, reg, opts)
	if err != nil {
		var ve *importer.ValidationError
		if errors.As(err, &ve) {
			logger.Error("import rejected", zap.String("field", ve.Field), zap.String("value", ve.Value), zap.String("reason", ve.Reason))
		} else {
			logger.Error("import failed", zap.Error(err))
		}
		os.Exit(1)
	}

	fmt.Printf("%s blocks in %d chunks from %d columns (digest %016x)\n",
		humanize.Comma(int64(sum.Blocks)), sum.Chunks, sum.Columns, sum.Digest)
	if !opts.DryRun {
		fmt.Printf("project %s %q written (%s)\n", sum.Project.ID, sum.Project.Name, humanize.Bytes(uint64(sum.Bytes)))
	}
}

func parseOptions(cfg *config.Config, args []string) (options, error) {
	if len(args) != 1 {
		return options{}, errors.New("expected exactly one archive path")
	}
	opts := options{
		Archive: args[0],
		Name:    *flagName,
		DryRun:  *flagDryRun,
	}
	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(opts.Archive), filepath.Ext(opts.Archive))
	}

	rulesPath := *flagRules
	if rulesPath == "" {
		rulesPath = cfg.Import.RulesFile
	}
	opts.Rules = importer.DefaultRules()
	if rulesPath != "" {
		f, err := os.Open(rulesPath)
		if err != nil {
			return options{}, err
		}
		defer f.Close()
		if opts.Rules, err = importer.LoadRules(f); err != nil {
			return options{}, fmt.Errorf("%s: %w", rulesPath, err)
		}
	}

	if *flagRegion != "" {
		r, err := parseRegion(*flagRegion)
		if err != nil {
			return options{}, err
		}
		opts.Region = &r
	}
	if *flagFallback >= 0 {
		id := voxel.BlockID(*flagFallback)
		opts.Fallback = &id
	} else {
		opts.Fallback = opts.Rules.Fallback
	}
	return opts, nil
}

// parseRegion reads "x,y,z:x,y,z".
func parseRegion(s string) (voxel.Region, error) {
	corners := strings.Split(s, ":")
	if len(corners) != 2 {
		return voxel.Region{}, fmt.Errorf("region %q: want x,y,z:x,y,z", s)
	}
	var ps [2]voxel.Pos
	for i, c := range corners {
		parts := strings.Split(c, ",")
		if len(parts) != 3 {
			return voxel.Region{}, fmt.Errorf("region %q: corner %q needs three coordinates", s, c)
		}
		var v [3]int
		for j, part := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return voxel.Region{}, fmt.Errorf("region %q: %w", s, err)
			}
			v[j] = n
		}
		ps[i] = voxel.Pos{X: v[0], Y: v[1], Z: v[2]}
	}
	return voxel.Region{Min: ps[0], Max: ps[1]}.Normalize(), nil
}

// importArchive converts the archive and, unless DryRun, writes it as a new
// project in the configured store.
func importArchive(ctx context.Context, cfg *config.Config, reg *blocks.Registry, opts options) (summary, error) {
	log := logger.Named("mcimport")

	data, err := os.ReadFile(opts.Archive)
	if err != nil {
		return summary{}, err
	}
	log.Info("importing",
		zap.String("archive", opts.Archive),
		zap.String("size", humanize.Bytes(uint64(len(data)))),
		zap.Int("rules", len(opts.Rules.Rules)))

	t, err := importer.Run(ctx, importer.Request{
		File:     filepath.Base(opts.Archive),
		Archive:  data,
		Region:   opts.Region,
		Rules:    opts.Rules.Rules,
		Fallback: opts.Fallback,
	}, reg, func(msg string) { log.Info(msg) })
	if err != nil {
		return summary{}, err
	}

	lim := cfg.Engine.WorldLimit
	store := chunk.NewStore(chunk.Limits{
		Min: voxel.Pos{X: lim.Min[0], Y: lim.Min[1], Z: lim.Min[2]},
		Max: voxel.Pos{X: lim.Max[0], Y: lim.Max[1], Z: lim.Max[2]},
	})
	if err := store.BulkLoad(t.Placements); err != nil {
		return summary{}, fmt.Errorf("integrate terrain: %w", err)
	}
	sum := summary{
		Blocks:  store.TotalBlocks(),
		Chunks:  store.Len(),
		Columns: t.Columns,
		Digest:  t.Digest(),
	}
	if opts.DryRun {
		return sum, nil
	}

	backend, err := persistence.Open(cfg.Persistence.Backend, cfg.Persistence.StorePath())
	if err != nil {
		return summary{}, err
	}
	bridge := persistence.NewBridge(backend)
	defer bridge.Close()

	sum.Project, err = bridge.CreateProject(ctx, opts.Name)
	if err != nil {
		return summary{}, err
	}
	logger.SetProject(sum.Project.ID, sum.Project.Name)
	done, err := bridge.Flush(ctx, sum.Project.ID, store.DirtyChunks())
	if err != nil {
		return summary{}, err
	}
	res := <-done
	if res.Err != nil {
		return summary{}, fmt.Errorf("write project: %w", res.Err)
	}
	sum.Bytes = res.Bytes
	return sum, nil
}
