// Command segmentctl runs the voter segmentation engine from the command
// line. The seed subcommand imports voters from CSV; the run subcommand
// executes one segmentation generation for an election/node scope.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"canvasscore/internal/blob"
	"canvasscore/internal/config"
	"canvasscore/internal/engine"
	"canvasscore/internal/observability"
	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

var exitFunc = os.Exit

func main() {
	_ = godotenv.Load()
	log := observability.NewLogger("segmentctl")

	if len(os.Args) < 2 {
		usage()
		exitFunc(2)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, os.Args[2:])
	case "seed":
		err = seedCmd(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "segmentctl: unknown command %q\n", os.Args[1])
		usage()
		exitFunc(2)
		return
	}
	if err != nil {
		var busy domain.ScopeBusyError
		if errors.As(err, &busy) {
			log.Warn().Err(err).Msg("scope already claimed by another run")
			exitFunc(3)
			return
		}
		log.Error().Err(err).Msg("command failed")
		exitFunc(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: segmentctl <command> [flags]

Commands:
  run    execute one segmentation generation for a scope
  seed   import voters from a CSV file

Run "segmentctl <command> -h" for command flags.
`)
}

func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		election   = fs.String("election", "", "election identifier (required)")
		node       = fs.String("node", "", "optional node within the election")
		jobID      = fs.String("job", "", "job identifier; generated when omitted")
		generation = fs.Int("generation", 1, "generation number recorded on segments")
		configPath = fs.String("config", "", "path to a TOML configuration file")
		exportRuns = fs.Bool("export", true, "export the segment boundaries as a GeoJSON artifact")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *election == "" {
		return errors.New("run: -election is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *jobID == "" {
		*jobID = uuid.NewString()
	}

	log := observability.NewLogger("segmentctl")
	metrics := observability.NewRunMetrics(prometheus.NewRegistry())

	store, err := engine.OpenPersistentStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMetrics(metrics),
		engine.WithConcavity(cfg.Segmentation.Concavity),
	}
	switch cfg.Segmentation.Strategy {
	case config.StrategyGeohash:
		opts = append(opts, engine.WithCellGenerator(engine.GeohashCellGenerator{Precision: cfg.Segmentation.GeohashPrecision}))
	default:
		opts = append(opts, engine.WithCellGenerator(engine.GridCellGenerator{FillFactor: cfg.Segmentation.GridFillFactor}))
	}
	if *exportRuns {
		artifacts, err := blob.Open(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithArtifactStore(artifacts))
	}

	orch := engine.NewOrchestrator(store, engine.Bounds{
		MinVoters: cfg.Segmentation.MinSegmentVoters,
		MaxVoters: cfg.Segmentation.MaxSegmentVoters,
	}, opts...)

	job := domain.Job{
		Base:       domain.Base{ID: *jobID},
		Election:   *election,
		Node:       *node,
		Generation: *generation,
		Status:     domain.JobStatusPending,
	}
	summary, err := orch.Run(ctx, job)
	if err != nil {
		return err
	}
	fmt.Println(summary)
	return nil
}

// seedCmd imports voters from CSV with the header
// id,election,node,family_id,address,floor,lat,lon. Empty family_id,
// floor, lat, and lon fields are stored as absent.
func seedCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	path := fs.String("file", "", "CSV file to import (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("seed: -file is required")
	}
	f, err := os.Open(*path)
	if err != nil {
		return fmt.Errorf("seed: open %s: %w", *path, err)
	}
	defer f.Close()

	voters, err := parseVoterCSV(f)
	if err != nil {
		return err
	}

	store, err := engine.OpenPersistentStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, v := range voters {
			if _, err := tx.CreateVoter(v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed: import: %w", err)
	}
	fmt.Printf("imported %d voters\n", len(voters))
	return nil
}

func parseVoterCSV(r io.Reader) ([]domain.Voter, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 8
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("seed: read header: %w", err)
	}
	if len(header) != 8 || header[0] != "id" {
		return nil, fmt.Errorf("seed: expected header id,election,node,family_id,address,floor,lat,lon")
	}
	var voters []domain.Voter
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("seed: line %d: %w", line, err)
		}
		v := domain.Voter{
			Base:     domain.Base{ID: record[0]},
			Election: record[1],
			Node:     record[2],
			Address:  record[4],
		}
		if v.ID == "" || v.Election == "" {
			return nil, fmt.Errorf("seed: line %d: id and election are required", line)
		}
		if record[3] != "" {
			fid := record[3]
			v.FamilyID = &fid
		}
		if record[5] != "" {
			floor, err := strconv.Atoi(record[5])
			if err != nil {
				return nil, fmt.Errorf("seed: line %d: invalid floor %q", line, record[5])
			}
			v.Floor = &floor
		}
		if record[6] != "" || record[7] != "" {
			lat, latErr := strconv.ParseFloat(record[6], 64)
			lon, lonErr := strconv.ParseFloat(record[7], 64)
			if latErr != nil || lonErr != nil {
				return nil, fmt.Errorf("seed: line %d: invalid coordinates %q,%q", line, record[6], record[7])
			}
			v.Location = &geo.Point{Lat: lat, Lon: lon}
		}
		voters = append(voters, v)
	}
	return voters, nil
}
