// causalrag 命令行入口。
//
// 使用方法:
//
//	causalrag index --config causalrag.yaml --docs corpus.txt --out ./index
//	causalrag query --index ./index "What causes coastal flooding?"
//	causalrag stats --index ./index
//	causalrag version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/causalrag"
	"github.com/BaSui01/causalrag/config"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "index":
		err = runIndex(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "version":
		fmt.Printf("causalrag %s\n", version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "causalrag: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  causalrag index --config <file> --docs <file> --out <dir>
  causalrag query --index <dir> [--top-k N] <question>
  causalrag stats --index <dir>
  causalrag version

index builds the causal graph and retrieval indexes from a document file,
one document per line.`)
}

func newPipeline(configPath string) (*causalrag.Pipeline, *zap.Logger, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithRequiredConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		return nil, nil, err
	}
	p, err := causalrag.New(causalrag.WithConfig(cfg), causalrag.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return p, logger, nil
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	docsPath := fs.String("docs", "", "document file, one document per line")
	out := fs.String("out", "./causalrag-index", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *docsPath == "" {
		return fmt.Errorf("--docs is required")
	}

	data, err := os.ReadFile(*docsPath)
	if err != nil {
		return fmt.Errorf("read documents: %w", err)
	}
	var docs []string
	for _, line := range strings.Split(string(data), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			docs = append(docs, s)
		}
	}

	p, logger, err := newPipeline(*configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	added, err := p.IndexDocuments(context.Background(), docs)
	if err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	if err := p.Save(*out); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	fmt.Printf("indexed %d documents, %d causal edges, saved to %s\n", len(docs), added, *out)
	return nil
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	indexDir := fs.String("index", "./causalrag-index", "index directory")
	topK := fs.Int("top-k", 5, "number of passages to return")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}

	p, logger, err := newPipeline(*configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	if !p.Load(ctx, *indexDir) {
		return fmt.Errorf("no usable index at %s, run `causalrag index` first", *indexDir)
	}

	results := p.Query(ctx, question, *topK)
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for _, res := range results {
		fmt.Printf("%2d. [%.4f] %s\n", res.Rank, res.Score, res.Passage)
	}
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	indexDir := fs.String("index", "./causalrag-index", "index directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, logger, err := newPipeline(*configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !p.Load(context.Background(), *indexDir) {
		return fmt.Errorf("no usable index at %s", *indexDir)
	}

	stats := p.Statistics()
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
