// Package demo generates deterministic sample sales data for trying out the
// service without real uploads.
package demo

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
)

type Sale struct {
	OrderID   int64   `parquet:"order_id"`
	OrderDate string  `parquet:"order_date"`
	Region    string  `parquet:"region"`
	Product   string  `parquet:"product"`
	Quantity  int32   `parquet:"quantity"`
	UnitPrice float64 `parquet:"unit_price"`
	Revenue   float64 `parquet:"revenue"`
}

var (
	regions  = []string{"north", "south", "east", "west"}
	products = []string{"widget", "gadget", "doohickey", "gizmo", "sprocket"}
)

// Generator produces the same rows for the same seed.
type Generator struct {
	rnd   *rand.Rand
	start time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:   rand.New(rand.NewSource(seed)),
		start: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *Generator) Sales(count int) []Sale {
	sales := make([]Sale, count)
	for i := range sales {
		quantity := int32(g.rnd.Intn(20) + 1)
		unitPrice := float64(g.rnd.Intn(9950)+50) / 100
		sales[i] = Sale{
			OrderID:   int64(i + 1),
			OrderDate: g.start.AddDate(0, 0, g.rnd.Intn(365)).Format("2006-01-02"),
			Region:    regions[g.rnd.Intn(len(regions))],
			Product:   products[g.rnd.Intn(len(products))],
			Quantity:  quantity,
			UnitPrice: unitPrice,
			Revenue:   float64(quantity) * unitPrice,
		}
	}
	return sales
}

func WriteCSV(w io.Writer, sales []Sale) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"order_id", "order_date", "region", "product", "quantity", "unit_price", "revenue"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, sale := range sales {
		record := []string{
			strconv.FormatInt(sale.OrderID, 10),
			sale.OrderDate,
			sale.Region,
			sale.Product,
			strconv.FormatInt(int64(sale.Quantity), 10),
			strconv.FormatFloat(sale.UnitPrice, 'f', 2, 64),
			strconv.FormatFloat(sale.Revenue, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteParquet(w io.Writer, sales []Sale) error {
	writer := parquet.NewGenericWriter[Sale](w)
	if _, err := writer.Write(sales); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
