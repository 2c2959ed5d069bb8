package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/unbreakk1/Questify/test"
)

func main() {
	serverURL := flag.String("url", "http://localhost:8080", "Questify server base URL")
	filter := flag.String("run", "", "Only run scenarios whose name contains this text")
	list := flag.Bool("list", false, "List scenario names and exit")
	verbose := flag.Bool("v", false, "Verbose output - show detailed actions for each test")
	flag.Parse()

	if *list {
		for _, name := range test.GetTestNames() {
			fmt.Println(name)
		}
		return
	}

	// Set verbose mode
	test.Verbose = *verbose

	fmt.Printf("Running integration tests against %s\n", *serverURL)
	fmt.Println("Make sure the Questify server is running!")
	if *verbose {
		fmt.Println("Verbose mode enabled - showing detailed test actions")
	}
	fmt.Println()

	var results []test.TestResult
	if *filter != "" {
		results = test.RunFilteredTests(*serverURL, *filter)
	} else {
		results = test.RunAllTests(*serverURL)
	}
	test.PrintResults(results)

	// Exit with error code if any tests failed
	for _, result := range results {
		if !result.Passed {
			os.Exit(1)
		}
	}
}
