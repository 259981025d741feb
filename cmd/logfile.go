package cmd

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SoboLAN/queue-manager/sim"
)

// LogWriter persists the run to disk: a parameter header, one timestamped
// line per notification, and a final statistics block. It is safe for use
// from the notification callback goroutines.
type LogWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

// NewLogWriter opens (truncating) the run log at path and writes the
// parameter header. An empty path selects a dated default name in the
// working directory, simulator.<date>.log.
func NewLogWriter(path string, cfg sim.Config) (*LogWriter, error) {
	if path == "" {
		path = fmt.Sprintf("simulator.%s.log", time.Now().Format("02.Jan.2006"))
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &LogWriter{file: file, buf: bufio.NewWriter(file)}
	w.writeHeader(cfg)
	return w, nil
}

func (w *LogWriter) writeHeader(cfg sim.Config) {
	reorg := "disabled"
	if cfg.Reorganization > 0 {
		reorg = fmt.Sprint(cfg.Reorganization)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintln(w.buf, "Simulation of Queues Log")
	fmt.Fprintln(w.buf)
	fmt.Fprintln(w.buf, "PARAMETERS")
	fmt.Fprintln(w.buf, "--------------")
	fmt.Fprintf(w.buf, "Number of Queues = %d\n", cfg.Queues)
	fmt.Fprintf(w.buf, "Number of Customers = %d\n", cfg.Customers)
	fmt.Fprintf(w.buf, "Maximum Queue Size = %d\n", cfg.Capacity)
	fmt.Fprintf(w.buf, "Customers Arrival Interval = [%d,%d]\n", cfg.MinArrival, cfg.MaxArrival)
	fmt.Fprintf(w.buf, "Customers Service Need Interval = [%d,%d]\n", cfg.MinService, cfg.MaxService)
	fmt.Fprintf(w.buf, "Customers Reorganization Period = %s\n", reorg)
	fmt.Fprintln(w.buf, "--------------")
}

// Record appends one timestamped, rendered notification line.
func (w *LogWriter) Record(m sim.Message) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), Render(m))

	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.buf, line)
}

// WriteStatistics appends the final statistics block: elapsed time, average
// service and waiting times, and per-queue idle totals. Call it after the
// simulator reached a terminal state, when idle accounting is committed.
func (w *LogWriter) WriteStatistics(s *sim.Simulator) {
	stats := s.Stats()

	avgService, err := stats.AverageServiceTime(2)
	if err != nil {
		logrus.Errorf("reading average service time: %v", err)
		return
	}
	avgWaiting, _ := stats.AverageWaitingTime(2)

	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintln(w.buf)
	fmt.Fprintln(w.buf, "-------------")
	fmt.Fprintln(w.buf, "STATISTICS")
	fmt.Fprintln(w.buf, "-------------")
	fmt.Fprintf(w.buf, "Simulation Running Time = %d seconds\n", s.ElapsedSeconds())
	fmt.Fprintf(w.buf, "Average Service Need of Customers = %v\n", avgService)
	fmt.Fprintf(w.buf, "Average Waiting Time of Customers = %v\n", avgWaiting)

	for i := 0; i < s.QueueCount(); i++ {
		idle, err := stats.QueueIdleTotal(i, 2)
		if err != nil {
			logrus.Errorf("reading idle time of queue %d: %v", i, err)
			continue
		}
		fmt.Fprintf(w.buf, "Total Empty Time of Queue %d = %v\n", i, idle)
	}
}

// Close flushes and closes the underlying file.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
