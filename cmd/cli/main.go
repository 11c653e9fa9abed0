package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/finance-sankey/internal/config"
	"github.com/dvloznov/finance-sankey/internal/logger"
	"github.com/dvloznov/finance-sankey/internal/pipeline"
	"github.com/dvloznov/finance-sankey/internal/records"
	"github.com/dvloznov/finance-sankey/internal/sankey"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		runBuild(cfg, log)
	case "inspect":
		runInspect(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Sankey CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  build     Build the Sankey graph of a record source and write it as JSON")
	fmt.Println("  inspect   Print the columns and hub totals of a record source")
	fmt.Println("  upload    Validate a local records file and upload it to GCS")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nSources: path/to/records.json, file://, gs://bucket/object, bq://project/dataset, postgres://")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func resolver(cfg *config.Config) *records.URIResolver {
	return &records.URIResolver{BQProject: cfg.BQProject, BQDataset: cfg.BQDataset}
}

func buildGraph(ctx context.Context, cfg *config.Config, log zerolog.Logger, source, hub string) *sankey.Graph {
	if source == "" {
		log.Fatal().Msg("Error: -source is required (or set SANKEY_SOURCE)")
	}

	g, err := pipeline.BuildGraph(ctx, resolver(cfg), source, hub)
	if err != nil {
		log.Fatal().Err(err).Msg("Build failed")
	}
	return g
}

func runBuild(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	source := fs.String("source", cfg.Source, "Record source URI")
	hub := fs.String("hub", cfg.Hub, "Hub node label")
	out := fs.String("out", "", "Output path or gs:// URI (default stdout)")
	withOptions := fs.Bool("diagram", false, "Wrap the graph with the diagram options")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	g := buildGraph(ctx, cfg, log, *source, *hub)

	var payload interface{} = g
	if *withOptions {
		payload = sankey.Diagram{Options: cfg.Diagram, Graph: g}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode graph")
	}
	data = append(data, '\n')

	switch {
	case *out == "" || *out == "-":
		os.Stdout.Write(data)
	case strings.HasPrefix(*out, "gs://"):
		if err := records.UploadToGCS(ctx, *out, data, "application/json"); err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
		log.Info().Str("gcs_uri", *out).Int("bytes", len(data)).Msg("Graph uploaded")
	default:
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write graph")
		}
		log.Info().Str("path", *out).Int("bytes", len(data)).Msg("Graph written")
	}
}

func runInspect(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	source := fs.String("source", cfg.Source, "Record source URI")
	hub := fs.String("hub", cfg.Hub, "Hub node label")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	g := buildGraph(ctx, cfg, log, *source, *hub)

	fmt.Printf("\n=== Graph (%d nodes, %d links) ===\n", len(g.Nodes), len(g.Links))
	for _, col := range sankey.Columns() {
		nodes := g.Column(col)
		fmt.Printf("\n%s (%d)\n", col, len(nodes))
		for _, n := range nodes {
			label := n.Name
			if n.Title != n.Name {
				label = fmt.Sprintf("%s [%s]", n.Name, n.Title)
			}
			fmt.Printf("  %-40s in %12s  out %12s\n", label, g.Inflow(n.Name).StringFixed(2), g.Outflow(n.Name).StringFixed(2))
		}
	}

	hubNode := g.Column(sankey.ColumnHub)[0].Name
	fmt.Printf("\nHub %q: in %s, out %s\n\n", hubNode, g.Inflow(hubNode).StringFixed(2), g.Outflow(hubNode).StringFixed(2))
}

func runUpload(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name (or set GCS_BUCKET env)")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local records JSON file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	// Reject files the builder could not use before they reach the bucket.
	recs, err := records.Decode(data)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid records file")
	}
	if _, err := sankey.Build(recs); err != nil {
		log.Fatal().Err(err).Msg("Invalid records file")
	}

	gcsURI := fmt.Sprintf("gs://%s/%s", *bucketName, *objectName)
	log.Info().
		Str("gcs_uri", gcsURI).
		Str("file", *filePath).
		Int("records", len(recs)).
		Msg("Uploading records to GCS")

	if err := records.UploadToGCS(ctx, gcsURI, data, "application/json"); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, gcsURI)
}
