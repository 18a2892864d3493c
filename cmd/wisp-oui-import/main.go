// Command wisp-oui-import loads an IEEE OUI CSV export into the sqlite
// database the sensor's Vendor Resolver reads at runtime. Adapted from the
// teacher's tools/oui/import_oui_csv, using internal/vendor's writer-capable
// Importer in place of the retired fingerprint.OUIDatabase.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/wisp-sensor/wisp/internal/vendor"
)

func main() {
	csvPath := flag.String("csv", "data/oui/maclookup.csv", "Path to CSV file")
	dbPath := flag.String("db", "data/oui/ieee_oui.db", "Path to OUI database")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	log.Printf("Importing OUI data from CSV to database...")
	log.Printf("CSV: %s", *csvPath)
	log.Printf("DB: %s", *dbPath)

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("Failed to open CSV: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header: %v", err)
	}

	importer, err := vendor.OpenImporter(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer importer.Close()

	ctx := context.Background()

	var entries []vendor.Entry
	lineNum := 0
	now := time.Now()

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: Failed to parse line %d: %v", lineNum, err)
			continue
		}
		lineNum++

		// CSV format: Mac Prefix,Vendor Name,Private,Block Type,Last Update
		if len(record) < 2 {
			continue
		}

		macPrefix := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(record[0]), "-", ":"))
		vendorName := strings.TrimSpace(record[1])
		if macPrefix == "" || vendorName == "" {
			continue
		}

		entries = append(entries, vendor.Entry{
			Prefix:      macPrefix,
			Vendor:      vendorName,
			VendorShort: extractShortVendor(vendorName),
			LastUpdated: now,
		})

		if len(entries) >= 1000 {
			if err := importer.BulkInsert(ctx, entries); err != nil {
				log.Fatalf("Bulk insert failed: %v", err)
			}
			if *verbose {
				log.Printf("  Inserted %d entries...", lineNum)
			}
			entries = entries[:0]
		}
	}

	if len(entries) > 0 {
		if err := importer.BulkInsert(ctx, entries); err != nil {
			log.Fatalf("Bulk insert failed: %v", err)
		}
	}

	count, err := importer.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to get stats: %v", err)
	}
	log.Printf("Import complete. Total entries: %d", count)
}

func extractShortVendor(vendorName string) string {
	vendorName = strings.TrimSpace(vendorName)
	for _, suffix := range []string{
		" Inc.", " Inc", " Corporation", " Corp.", " Corp",
		" Ltd.", " Ltd", " Limited", " Co., Ltd.", " Co.",
		" LLC", " GmbH", " S.A.", " AG",
	} {
		vendorName = strings.TrimSuffix(vendorName, suffix)
	}
	if idx := strings.Index(vendorName, ","); idx > 0 {
		vendorName = vendorName[:idx]
	}
	return strings.TrimSpace(vendorName)
}
