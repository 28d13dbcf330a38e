package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"grimm.is/halyard/internal/logging"
)

// InvalidRSSI is reported when the signal of the active access point is unknown.
const InvalidRSSI = -9999.9999

// DefaultRegDomain is reported when the regulatory domain cannot be read.
const DefaultRegDomain = "WW"

// ErrIWMissing is returned when the iw binary is not installed.
var ErrIWMissing = errors.New("iw is not installed")

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner. The error of a failed command carries its stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// IW wraps the iw wireless tool. Every call is bounded by Timeout.
type IW struct {
	Path    string
	Timeout time.Duration
	runner  Runner
	log     *logging.Logger
	// stat is replaced in tests.
	stat func(string) error
}

// NewIW creates an IW. A nil runner uses ExecRunner.
func NewIW(path string, timeout time.Duration, runner Runner, log *logging.Logger) *IW {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logging.WithComponent("iw")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IW{
		Path:    path,
		Timeout: timeout,
		runner:  runner,
		log:     log,
		stat: func(p string) error {
			_, err := os.Stat(p)
			return err
		},
	}
}

func (iw *IW) run(ctx context.Context, args ...string) ([]byte, error) {
	if err := iw.stat(iw.Path); err != nil {
		return nil, ErrIWMissing
	}
	ctx, cancel := context.WithTimeout(ctx, iw.Timeout)
	defer cancel()

	out, err := iw.runner.Run(ctx, iw.Path, args...)
	if err != nil {
		iw.log.Error("iw call failed", "args", strings.Join(args, " "), "error", err)
		return nil, err
	}
	return out, nil
}

var countryRe = regexp.MustCompile(`country ([A-Z]{2})`)

// RegDomain returns the regulatory domain of phy#0, or DefaultRegDomain.
func (iw *IW) RegDomain(ctx context.Context) string {
	out, err := iw.run(ctx, "reg", "get")
	if err != nil {
		return DefaultRegDomain
	}
	sections := strings.Split(string(out), "phy#")
	target := sections[0]
	if len(sections) > 1 {
		target = sections[1]
	}
	if m := countryRe.FindStringSubmatch(target); m != nil {
		return m[1]
	}
	return DefaultRegDomain
}

var signalRe = regexp.MustCompile(`^signal: (.*) dBm`)

// LinkSignal returns the signal in dBm of the access point ifname is
// associated with.
func (iw *IW) LinkSignal(ctx context.Context, ifname string) (float64, bool) {
	out, err := iw.run(ctx, "dev", ifname, "link")
	if err != nil {
		return InvalidRSSI, false
	}
	for _, line := range strings.Split(string(out), "\n") {
		m := signalRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64); err == nil {
			return v, true
		}
	}
	return InvalidRSSI, false
}

var channelFreqRe = regexp.MustCompile(`\((\d{4}) MHz`)

// Frequency returns the operating frequency of ifname as reported by
// "iw dev", or fallback.
func (iw *IW) Frequency(ctx context.Context, ifname string, fallback uint32) uint32 {
	out, err := iw.run(ctx, "dev")
	if err != nil {
		return fallback
	}
	for _, block := range strings.Split(string(out), "Interface ")[1:] {
		lines := strings.Split(block, "\n")
		if strings.TrimSpace(lines[0]) != ifname {
			continue
		}
		for _, line := range lines[1:] {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "channel ") {
				continue
			}
			if m := channelFreqRe.FindStringSubmatch(line); m != nil {
				if f, err := strconv.ParseUint(m[1], 10, 32); err == nil {
					return uint32(f)
				}
			}
		}
	}
	return fallback
}

// AddInterface creates a managed virtual interface on top of parent.
func (iw *IW) AddInterface(ctx context.Context, parent, name string) error {
	_, err := iw.run(ctx, "dev", parent, "interface", "add", name, "type", "managed")
	return err
}

// DeleteInterface removes a virtual interface.
func (iw *IW) DeleteInterface(ctx context.Context, name string) error {
	_, err := iw.run(ctx, "dev", name, "del")
	return err
}
