// Copyright 2025 seclens <opensource@seclens.io>. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dissect drives the external protocol dissector and turns its
// field output into frame records for rule synthesis. Everything
// subprocess-shaped lives here, behind data types the scan logic can be
// fed without a dissector.
package dissect

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/logger"
)

// MinTsharkVersion is the oldest dissector the field set works with. The
// tls.* field namespace and raw sequence numbers both appeared in 3.0.
const MinTsharkVersion = "3.0.0"

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// Runner invokes the dissector binary. Every invocation is bounded by the
// configured timeout and synchronous; cancellation kills the subprocess.
type Runner struct {
	tsharkPath  string
	timeout     time.Duration
	decodePorts []uint16
	log         *logger.Logger

	version string
}

// NewRunner creates a Runner. decodePorts lists extra TCP ports the
// dissector should treat as TLS on top of its defaults.
func NewRunner(tsharkPath string, timeout time.Duration, decodePorts []uint16, log *logger.Logger) *Runner {
	return &Runner{
		tsharkPath:  tsharkPath,
		timeout:     timeout,
		decodePorts: decodePorts,
		log:         log.WithComponent("dissect"),
	}
}

// CheckTool verifies the dissector exists and meets MinTsharkVersion.
// The check runs once per Runner; later calls are free.
func (r *Runner) CheckTool(ctx context.Context) error {
	if r.version != "" {
		return nil
	}
	out, err := r.run(ctx, "version probe", []string{"--version"})
	if err != nil {
		return err
	}

	m := versionPattern.FindStringSubmatch(string(out))
	if m == nil {
		return errors.NewDissectorOutputError("no version number in version probe")
	}
	found := m[0]
	if !versionAtLeast(m, MinTsharkVersion) {
		return errors.NewDissectorVersionError(r.tsharkPath, found, MinTsharkVersion)
	}
	r.version = found
	r.log.Debug().Str("tshark", r.tsharkPath).Str("version", found).Msg("dissector accepted")
	return nil
}

// Version returns the dissector version found by CheckTool.
func (r *Runner) Version() string {
	return r.version
}

func versionAtLeast(match []string, minimum string) bool {
	var min [3]int
	fmt.Sscanf(minimum, "%d.%d.%d", &min[0], &min[1], &min[2])
	for i := 0; i < 3; i++ {
		v, _ := strconv.Atoi(match[i+1])
		if v != min[i] {
			return v > min[i]
		}
	}
	return true
}

// run executes one dissector invocation and returns its stdout.
func (r *Runner) run(ctx context.Context, op string, args []string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, r.tsharkPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.log.Debug().Str("op", op).Dur("took", time.Since(start)).Msg("dissector invocation finished")

	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewDissectorTimeoutError(op, cctx.Err())
		}
		if stderrors.Is(err, exec.ErrNotFound) {
			return nil, errors.NewDissectorMissingError(r.tsharkPath, err)
		}
		return nil, errors.NewDissectorExecError(op, err).
			WithContext("stderr", lastLine(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// decodeAsArgs renders the extra TLS port bindings.
func (r *Runner) decodeAsArgs() []string {
	var args []string
	for _, p := range r.decodePorts {
		args = append(args, "-d", fmt.Sprintf("tcp.port==%d,tls", p))
	}
	return args
}
