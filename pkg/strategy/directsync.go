package strategy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"s3transfer/pkg/models"
	"s3transfer/pkg/transfererror"
)

// DirectSync drives the external copy tool. The tool consumes a command
// batch file, one line per file pair, and emits one line-oriented result per
// input line; that line-for-line mapping is the parsing contract.
//
// Success lines echo the command:
//
//	cp s3://src-bucket/key s3://dst-bucket/key
//
// Failure lines carry an ERROR marker with the command in quotes:
//
//	ERROR "cp s3://src-bucket/key s3://dst-bucket/key": access denied
type DirectSync struct {
	cfg    models.Config
	runner CommandRunner
	log    *logrus.Entry
}

// NewDirectSync builds the strategy. A nil runner defaults to os/exec.
func NewDirectSync(cfg models.Config, runner CommandRunner) *DirectSync {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &DirectSync{
		cfg:    cfg,
		runner: runner,
		log:    logrus.WithField("strategy", "direct_sync"),
	}
}

func (d *DirectSync) Name() models.TransferMode { return models.ModeDirectSync }

// Execute runs one tool invocation for the whole batch under the configured
// subprocess timeout. One network operation per file is the efficiency
// property of this path, so OperationCount equals the file count.
func (d *DirectSync) Execute(ctx context.Context, batch *models.TransferBatch) (*models.BatchResult, error) {
	start := time.Now()

	cmdFile, err := d.writeCommandFile(batch)
	if err != nil {
		return nil, transfererror.Wrap(transfererror.KindToolUnavailable, err, "write command batch file")
	}
	defer os.Remove(cmdFile)

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.SubprocessTimeout)
	defer cancel()

	var out lockedBuffer
	args := []string{"--retry-count", fmt.Sprintf("%d", d.cfg.ToolRetryCount)}
	if batch.Source.Endpoint != "" {
		args = append(args, "--endpoint-url", batch.Source.Endpoint)
	}
	args = append(args, "run", cmdFile)

	d.log.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"files":    len(batch.Files),
		"tool":     d.cfg.ToolPath,
	}).Debug("spawning copy tool")

	runErr := d.runner.Run(runCtx, d.cfg.ToolPath, args, &out)

	result := d.parseOutput(batch, out.Bytes())
	result.Duration = time.Since(start)

	switch {
	case runErr != nil && spawnFailure(runErr):
		// Tool missing entirely. The orchestrator retries via fallback;
		// nothing ran, so no per-file results to honor.
		return nil, transfererror.Wrap(transfererror.KindToolUnavailable, runErr, "copy tool %q could not be started", d.cfg.ToolPath)

	case runCtx.Err() == context.DeadlineExceeded:
		// The subprocess was killed. Honor what it resolved and mark the
		// rest failed so a forced-direct caller still sees every file.
		d.markUnresolved(batch, result, "TIMEOUT", fmt.Sprintf("subprocess exceeded %s", d.cfg.SubprocessTimeout))
		return result, transfererror.New(transfererror.KindTimeout, "copy tool timed out after %s on batch %s", d.cfg.SubprocessTimeout, batch.ID)

	case ctx.Err() != nil:
		d.markUnresolved(batch, result, "CANCELLED", "operation cancelled")
		return result, transfererror.Wrap(transfererror.KindCancelled, ctx.Err(), "batch %s cancelled", batch.ID)

	case runErr != nil:
		// Non-zero exit with per-line results is a partial failure: the
		// per-file classification stands. Lines the tool never reported
		// are counted failed.
		d.markUnresolved(batch, result, "PARTIAL_BATCH_FAILURE", fmt.Sprintf("tool exited with code %d", exitCode(runErr)))
		return result, nil

	default:
		d.markUnresolved(batch, result, "PARTIAL_BATCH_FAILURE", "tool reported no result for file")
		return result, nil
	}
}

// writeCommandFile renders one cp command per file pair with the connection
// tuning flags taken verbatim from configuration.
func (d *DirectSync) writeCommandFile(batch *models.TransferBatch) (string, error) {
	f, err := os.CreateTemp(d.cfg.TempDir, "transfer-batch-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, file := range batch.Files {
		line := fmt.Sprintf("cp --if-size-differ --concurrency %d --part-size %d",
			d.cfg.ToolConcurrency, d.cfg.ToolPartSizeMB)
		if batch.Source.Region != "" {
			line += " --source-region " + batch.Source.Region
		}
		if batch.Destination.Region != "" {
			line += " --destination-region " + batch.Destination.Region
		}
		line += fmt.Sprintf(" %q %q\n",
			batch.Source.ObjectURL(file.SourceKey),
			batch.Destination.ObjectURL(file.DestinationKey))
		if _, err := w.WriteString(line); err != nil {
			os.Remove(f.Name())
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// parseOutput classifies each output line against the batch's files by the
// full source→destination URL pair. A source key may legally appear more than
// once in a batch (one object copied to two destinations), so the source URL
// alone is not a key. Files with no matching line stay unresolved.
func (d *DirectSync) parseOutput(batch *models.TransferBatch, output []byte) *models.BatchResult {
	byPair := make(map[string]models.FileTransferSpec, len(batch.Files))
	for _, f := range batch.Files {
		byPair[urlPairKey(batch, f)] = f
	}

	result := &models.BatchResult{
		BatchID:        batch.ID,
		OperationCount: int64(len(batch.Files)),
	}
	resolved := make(map[string]bool, len(batch.Files))

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		src, dst := s3URLPair(line)
		if src == "" || dst == "" {
			continue
		}
		key := src + " " + dst
		file, known := byPair[key]
		if !known || resolved[key] {
			continue
		}
		resolved[key] = true

		if strings.HasPrefix(line, "ERROR") {
			result.Failed = append(result.Failed, models.FileError{
				File:   file,
				Reason: "PARTIAL_BATCH_FAILURE",
				Cause:  errorCause(line),
			})
		} else {
			result.Succeeded = append(result.Succeeded, file)
			result.BytesMoved += file.SizeBytes
		}
	}
	return result
}

// markUnresolved fails every file the tool produced no line for.
func (d *DirectSync) markUnresolved(batch *models.TransferBatch, result *models.BatchResult, reason, cause string) {
	seen := make(map[string]bool, len(result.Succeeded)+len(result.Failed))
	for _, f := range result.Succeeded {
		seen[f.SourceKey+"\x00"+f.DestinationKey] = true
	}
	for _, fe := range result.Failed {
		seen[fe.File.SourceKey+"\x00"+fe.File.DestinationKey] = true
	}
	for _, f := range batch.Files {
		if !seen[f.SourceKey+"\x00"+f.DestinationKey] {
			result.Failed = append(result.Failed, models.FileError{
				File:   f,
				Reason: reason,
				Cause:  cause,
			})
		}
	}
}

func urlPairKey(batch *models.TransferBatch, f models.FileTransferSpec) string {
	return batch.Source.ObjectURL(f.SourceKey) + " " + batch.Destination.ObjectURL(f.DestinationKey)
}

// s3URLPair extracts the first two s3:// URLs on a line, unquoting if needed.
// Both success and ERROR lines echo the command, which carries both URLs.
func s3URLPair(line string) (string, string) {
	src, rest := nextS3URL(line)
	if src == "" {
		return "", ""
	}
	dst, _ := nextS3URL(rest)
	return src, dst
}

func nextS3URL(s string) (url, rest string) {
	idx := strings.Index(s, "s3://")
	if idx < 0 {
		return "", ""
	}
	r := s[idx:]
	end := strings.IndexAny(r, "\" \t")
	if end < 0 {
		return r, ""
	}
	return r[:end], r[end:]
}

// errorCause strips the command echo from an ERROR line, keeping the
// tool's message.
func errorCause(line string) string {
	if i := strings.LastIndex(line, "\":"); i >= 0 && i+2 < len(line) {
		return strings.TrimSpace(line[i+2:])
	}
	return line
}

// lockedBuffer lets the runner write output from its own goroutine while the
// strategy reads after the process exits.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

var _ io.Writer = (*lockedBuffer)(nil)
