// Package recorder owns the active telemetry log: a CSV file fed by a fixed
// set of vessel data paths sampled on a timer. Stopping finalizes the file,
// seals it under a fresh one-time token and registers it in the ledger.
package recorder

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"meb-console/internal/ledger"
	"meb-console/internal/model"
	"meb-console/internal/secure"
)

// Values is the host live-data accessor. Get never blocks and reports absent
// paths with ok=false.
type Values interface {
	Get(path string) (interface{}, bool)
}

// Columns after the timestamp, in file order, with the vessel data path each
// one samples.
var columns = []struct {
	Header string
	Path   string
}{
	{"wavesHeight", "meb.waves.height"},
	{"wavesPeriod", "meb.waves.period"},
	{"wavesDirection", "meb.waves.direction"},
	{"windSpeed", "meb.appleWindSpeed"},
	{"windDirection", "meb.appleWindDirection"},
	{"temperature", "meb.temperature"},
	{"currentSpeed", "meb.currents.speed"},
	{"currentDirection", "meb.currents.direction"},
	{"speedOverGround", "navigation.speedOverGround"},
	{"courseOverGround", "navigation.courseOverGroundTrue"},
	{"headingTrue", "navigation.headingTrue"},
	{"battery1Voltage", "electrical.batteries.1.voltage"},
	{"battery1Current", "electrical.batteries.1.current"},
	{"battery1StateOfCharge", "electrical.batteries.1.capacity.stateOfCharge"},
	{"battery1Temperature", "electrical.batteries.1.temperature"},
	{"battery0Voltage", "electrical.batteries.0.voltage"},
	{"battery0Current", "electrical.batteries.0.current"},
	{"battery0StateOfCharge", "electrical.batteries.0.capacity.stateOfCharge"},
	{"battery0Temperature", "electrical.batteries.0.temperature"},
	{"propulsionShaftSpeed", "propulsion.0.revolutions"},
}

type Recorder struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	values   Values
	ledger   *ledger.Ledger

	recording bool
	file      *os.File
	fileName  string
	rows      int
	startedAt time.Time
	stop      chan struct{}

	now func() time.Time
}

func New(dir string, interval time.Duration, values Values, l *ledger.Ledger) *Recorder {
	return &Recorder{dir: dir, interval: interval, values: values, ledger: l, now: time.Now}
}

func header() string {
	parts := make([]string, 0, len(columns)+3)
	parts = append(parts, "timestamp")
	for _, c := range columns {
		parts = append(parts, c.Header)
	}
	parts = append(parts, "latitude", "longitude")
	return strings.Join(parts, ",")
}

// Start opens a new log session. Returns false if one is already running or
// the file cannot be created; a failed start leaves the recorder idle.
func (r *Recorder) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return false
	}

	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		log.Printf("recorder: mkdir %s: %v", r.dir, err)
		return false
	}

	stamp := r.now().UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	name := fmt.Sprintf("log_%s.csv", stamp)

	// O_EXCL: the name has millisecond precision, and appending a header into
	// an already-sealed file would corrupt its envelope. A collision aborts
	// the start and leaves the recorder idle.
	file, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		log.Printf("recorder: create %s: %v", name, err)
		return false
	}
	if _, err := file.WriteString(header() + "\n"); err != nil {
		log.Printf("recorder: write header: %v", err)
		_ = file.Close()
		return false
	}

	r.recording = true
	r.file = file
	r.fileName = name
	r.rows = 0
	r.startedAt = time.Now()
	r.stop = make(chan struct{})

	go r.sample(r.stop)
	log.Printf("recorder: session %s started, interval %v", name, r.interval)
	return true
}

func (r *Recorder) sample(stop chan struct{}) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.appendRow()
		}
	}
}

// appendRow writes one sample. Failures are logged and the row skipped;
// a missed sample is never retried.
func (r *Recorder) appendRow() {
	row := r.buildRow()

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording || r.file == nil {
		return
	}
	if _, err := r.file.WriteString(row + "\n"); err != nil {
		log.Printf("recorder: append: %v", err)
		return
	}
	r.rows++
}

func (r *Recorder) buildRow() string {
	parts := make([]string, 0, len(columns)+3)
	parts = append(parts, time.Now().UTC().Format(time.RFC3339))
	for _, c := range columns {
		parts = append(parts, renderField(r.values, c.Path))
	}

	lat, lon := "", ""
	if v, ok := r.values.Get("navigation.position"); ok {
		if pos, ok := v.(map[string]interface{}); ok {
			lat = renderValue(pos["latitude"])
			lon = renderValue(pos["longitude"])
		}
	}
	parts = append(parts, lat, lon)
	return strings.Join(parts, ",")
}

// Missing or invalid values render as empty fields.
func renderField(values Values, path string) string {
	v, ok := values.Get(path)
	if !ok {
		return ""
	}
	return renderValue(v)
}

func renderValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	case string:
		// Keep rows parseable: a value with a comma or newline is invalid input.
		if strings.ContainsAny(t, ",\n") {
			return ""
		}
		return t
	default:
		return ""
	}
}

// Stop disarms the sampler, closes and seals the file with a fresh one-time
// token, and registers it in the ledger. Returns false if nothing was
// recording. Synchronous: after Stop returns, no further rows are appended.
func (r *Recorder) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return false
	}

	close(r.stop)
	r.recording = false

	if err := r.file.Close(); err != nil {
		log.Printf("recorder: close %s: %v", r.fileName, err)
	}

	name := r.fileName
	token := secure.GenerateToken(16)
	path := filepath.Join(r.dir, name)

	if err := secure.EncryptFile(path, token); err != nil {
		log.Printf("recorder: seal %s: %v", name, err)
	} else if err := r.ledger.Append(model.Reference{Name: name, Token: token}); err != nil {
		log.Printf("recorder: register %s: %v", name, err)
	} else {
		log.Printf("recorder: session %s finalized, %d rows", name, r.rows)
	}

	r.file = nil
	r.fileName = ""
	r.rows = 0
	r.stop = nil
	return true
}

// Restart finalizes any running session and opens a new one.
func (r *Recorder) Restart() bool {
	r.Stop()
	return r.Start()
}

// Status is a pure read.
func (r *Recorder) Status() model.RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var uptime int64
	if r.recording {
		uptime = time.Since(r.startedAt).Milliseconds()
	}
	return model.RecorderStatus{
		Recording:  r.recording,
		RowCount:   r.rows,
		IntervalMs: r.interval.Milliseconds(),
		UptimeMs:   uptime,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}
