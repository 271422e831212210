// jetdb-demo-data writes a deterministic sample sales dataset as CSV and
// Parquet files, ready to upload through the datasets endpoint.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/benturneroffice365-web/jetdb/internal/demo"
)

func main() {
	rows := flag.Int("rows", 1000, "number of sales rows to generate")
	seed := flag.Int64("seed", 42, "random seed")
	outDir := flag.String("out", ".", "output directory")
	flag.Parse()

	if *rows <= 0 {
		fmt.Fprintln(os.Stderr, "rows must be positive")
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output directory: %v\n", err)
		os.Exit(1)
	}

	sales := demo.NewGenerator(*seed).Sales(*rows)

	csvPath := filepath.Join(*outDir, "sales.csv")
	csvFile, err := os.Create(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", csvPath, err)
		os.Exit(1)
	}
	if err := demo.WriteCSV(csvFile, sales); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", csvPath, err)
		os.Exit(1)
	}
	if err := csvFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close %s: %v\n", csvPath, err)
		os.Exit(1)
	}

	parquetPath := filepath.Join(*outDir, "sales.parquet")
	parquetFile, err := os.Create(parquetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", parquetPath, err)
		os.Exit(1)
	}
	if err := demo.WriteParquet(parquetFile, sales); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", parquetPath, err)
		os.Exit(1)
	}
	if err := parquetFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close %s: %v\n", parquetPath, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d rows to %s and %s\n", len(sales), csvPath, parquetPath)
}
