// tickmon watches a lab board over serial: menu text passes through, the
// firmware's checksummed scheduler status frames are decoded into per-task
// firing rates, and stdin is forwarded to the board so the lab menus stay
// interactive.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"tickmux/host/monitor"
	"tickmux/host/serial"
	"tickmux/protocol"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "Serial device path")
	baud    = flag.Int("baud", 115200, "Baud rate")
	verbose = flag.Bool("verbose", false, "Show raw frames alongside decoded reports")
)

func main() {
	flag.Parse()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	fmt.Printf("Connecting to board on %s at %d baud...\n", *device, *baud)
	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open port: %v\n", err)
		os.Exit(1)
	}
	defer port.Close()

	m := monitor.New(port)
	m.OnText = func(line string) {
		fmt.Println(line)
	}
	m.OnReport = func(r *protocol.Report) {
		printReport(m, r)
	}

	// Forward stdin to the board so menu selections still work.
	go forwardStdin(port)

	if err := m.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: serial read failed: %v\n", err)
		os.Exit(1)
	}

	printSummary(m.Stats())
}

func printReport(m *monitor.Monitor, r *protocol.Report) {
	if *verbose {
		fmt.Printf("%s", protocol.EncodeFrame(r))
	}

	stats := m.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "[%8.3fs] ticks=%d", float64(r.UptimeMS)/1000.0, r.Ticks)
	for i, ts := range stats.Tasks {
		fmt.Fprintf(&b, "  task%d=%d (%.1f/s)", i, ts.Total, ts.PerSec)
	}
	fmt.Println(b.String())
}

func printSummary(stats monitor.Stats) {
	fmt.Println("\n--- session summary ---")
	fmt.Printf("reports: %d   bad frames: %d   board resets: %d\n",
		stats.Reports, stats.BadFrames, stats.Resets)
	for i, ts := range stats.Tasks {
		if !ts.Touched {
			continue
		}
		fmt.Printf("task%d: %d firings, last rate %.1f/s\n", i, ts.Total, ts.PerSec)
	}
}

func forwardStdin(port serial.Port) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := port.Write([]byte(line + "\r\n")); err != nil {
			fmt.Fprintf(os.Stderr, "Error: write failed: %v\n", err)
			return
		}
	}
}
