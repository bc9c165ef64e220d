package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jqwang/partri/internal/master"
	"github.com/jqwang/partri/internal/point"
	"github.com/jqwang/partri/internal/storage"
	"github.com/jqwang/partri/pkg/config"
	"github.com/jqwang/partri/pkg/model"
	"github.com/jqwang/partri/pkg/writer"
)

var (
	runConfigFile  string
	runInputPath   string
	runOutputPath  string
	runDimension   int
	runProcesses   int
	runLeaves      int
	runMode        string
	runPeriodic    []bool
	runDomainWidth []float64
)

// runCmd triangulates the point set named by --input, writing the
// consolidated result (or, in volumes mode, the global Voronoi-volume
// table) to --output.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a triangulation",
	Long: `run partitions the input point set across leaves and processes,
drives the distributed exchange protocol to convergence, and writes the
consolidated triangulation (or Voronoi-volume table in volumes mode) to
the output path.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigFile, "config", "c", "", "Path to a YAML config file")
	runCmd.Flags().StringVarP(&runInputPath, "input", "i", "", "Input point file (JSON, overrides config)")
	runCmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "Output file (overrides config)")
	runCmd.Flags().IntVarP(&runDimension, "dimension", "d", 0, "Spatial dimension, 2 or 3 (overrides config)")
	runCmd.Flags().IntVarP(&runProcesses, "processes", "p", 0, "Number of exchange coordinators (overrides config)")
	runCmd.Flags().IntVarP(&runLeaves, "leaves", "l", 0, "Number of decomposition leaves (overrides config)")
	runCmd.Flags().StringVar(&runMode, "mode", "", `Run mode: "triangulation" or "volumes" (overrides config)`)
}

// pointFile is the JSON on-disk shape of a point set: dim-length rows,
// dim must agree with the run's configured dimension.
type pointFile struct {
	Points [][]float64 `json:"points"`
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	log := GetLogger()

	pts, err := readPoints(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("run: reading input: %w", err)
	}
	log.Info("loaded %d points (dim=%d) from %s", pts.Len(), cfg.Run.Dimension, cfg.Run.InputPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	periodic := cfg.Run.Periodic
	if len(periodic) == 0 {
		periodic = make([]bool, cfg.Run.Dimension)
	}
	domainWidth := make([]float64, cfg.Run.Dimension)
	if cfg.Run.MaxPointsPerLeaf > 0 {
		log.Info("max_points_per_leaf=%d is advisory; decomposition still targets leaf_count=%d", cfg.Run.MaxPointsPerLeaf, cfg.Run.LeafCount)
	}

	m := master.New(master.Config{
		Dim:          model.Dimension(cfg.Run.Dimension),
		LeafCount:    cfg.Run.LeafCount,
		ProcessCount: cfg.Run.ProcessCount,
		Periodic:     periodic,
		DomainWidth:  domainWidth,
		Mode:         cfg.Run.Mode,
	}, master.WithLogger(log))

	log.Info("starting run: leaves=%d processes=%d mode=%s", cfg.Run.LeafCount, cfg.Run.ProcessCount, cfg.Run.Mode)
	result, err := m.Run(ctx, pts)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if err := writeResult(cfg.Run.OutputPath, result); err != nil {
		return fmt.Errorf("run: writing output: %w", err)
	}

	if result.Summary != nil {
		log.Info("done: %d leaves, %d cells kept, %d cells dropped", result.LeafCount, result.Summary.CellsKept, result.Summary.CellsDropped)
	} else {
		log.Info("done: %d leaves, %d volumes written", result.LeafCount, len(result.Volumes))
	}
	return nil
}

// loadRunConfig loads the base config (from --config, or defaults if
// unset) and applies any explicit flag overrides on top.
func loadRunConfig() (*config.Config, error) {
	cfg, err := config.Load(runConfigFile)
	if err != nil {
		return nil, err
	}

	if runInputPath != "" {
		cfg.Run.InputPath = runInputPath
	}
	if runOutputPath != "" {
		cfg.Run.OutputPath = runOutputPath
	}
	if runDimension != 0 {
		cfg.Run.Dimension = runDimension
	}
	if runProcesses != 0 {
		cfg.Run.ProcessCount = runProcesses
	}
	if runLeaves != 0 {
		cfg.Run.LeafCount = runLeaves
	}
	if runMode != "" {
		cfg.Run.Mode = runMode
	}

	if cfg.Run.InputPath == "" {
		return nil, fmt.Errorf("run: input path is required (set run.input_path or pass --input)")
	}
	if cfg.Run.OutputPath == "" {
		return nil, fmt.Errorf("run: output path is required (set run.output_path or pass --output)")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readPoints downloads cfg.Run.InputPath via the configured storage
// backend and decodes it as a pointFile.
func readPoints(ctx context.Context, cfg *config.Config) (*point.Set, error) {
	store, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	rc, err := store.Download(ctx, cfg.Run.InputPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var pf pointFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("decoding point file: %w", err)
	}

	dim := model.Dimension(cfg.Run.Dimension)
	coords := make([]float64, 0, len(pf.Points)*int(dim))
	for i, row := range pf.Points {
		if len(row) != int(dim) {
			return nil, fmt.Errorf("point %d has %d coordinates, want %d", i, len(row), int(dim))
		}
		coords = append(coords, row...)
	}
	return point.NewSet(dim, coords)
}

// runOutput is the on-disk JSON shape of a completed run, covering both
// modes so a caller never needs to branch on which fields are populated.
type runOutput struct {
	LeafCount    int        `json:"leaf_count"`
	CellsKept    int        `json:"cells_kept,omitempty"`
	CellsDropped int        `json:"cells_dropped,omitempty"`
	Cells        [][]uint64 `json:"cells,omitempty"`
	Neighbors    [][]uint64 `json:"neighbors,omitempty"`
	InfIdx       *uint64    `json:"infinite_vertex_index,omitempty"`
	Volumes      []float64  `json:"volumes,omitempty"`
}

func writeResult(path string, result *master.Result) error {
	out := runOutput{LeafCount: result.LeafCount}
	if result.Summary != nil {
		out.CellsKept = result.Summary.CellsKept
		out.CellsDropped = result.Summary.CellsDropped
		out.Cells = result.Summary.Final.Cells
		out.Neighbors = result.Summary.Final.Neighbors
		infIdx := result.Summary.Final.InfIdx
		out.InfIdx = &infIdx
	} else {
		out.Volumes = result.Volumes
	}

	w := writer.NewPrettyJSONWriter[runOutput]()
	return w.WriteToFile(out, path)
}
