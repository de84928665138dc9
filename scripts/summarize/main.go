package main

import (
	"log"
	"os"
	"path/filepath"

	"consensussim/experiment"
	"consensussim/util/file"
)

// summarize condenses the repetitions of a finished sweep into summary.csv.
func main() {
	dirName := "../../out"
	if len(os.Args) < 2 {
		log.Printf("Using standard input dir '%v'. To specify a different input dir please use format './summarize[.exe] EXPERIMENT_DIR [OUT_DIR]' on command line.", dirName)
	} else {
		dirName = os.Args[1]
		log.Printf("Using dir '%v'.", dirName)
	}
	outDir := dirName
	if len(os.Args) >= 3 {
		outDir = os.Args[2]
		log.Printf("Using outDir '%v'.", outDir)
	}

	resultFileName := filepath.Join(dirName, "results.json")
	if !file.FileExists(resultFileName) {
		log.Fatalf("%v is not a file", resultFileName)
	}
	f, err := os.Open(resultFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	results, err := experiment.ReadResults(f)
	if err != nil {
		log.Fatal(err)
	}

	summaryFile, err := file.CreateOutFile(outDir, "summary.csv")
	if err != nil {
		log.Fatal(err)
	}
	defer summaryFile.Close()
	summaries := experiment.Summarize(results)
	if err := experiment.WriteSummaryCSV(summaryFile, results.Metrics, summaries); err != nil {
		log.Fatal(err)
	}
	log.Printf("summarized %v runs into %v points", results.Len(), len(summaries))
}
