package result

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const createAttempts = 10

// Artifact file names inside a run directory.
const (
	BuildLogFile       = "build.log"
	TestLogFile        = "test.log"
	ConfigSnapshotFile = "config_snapshot.yaml"
	EnvFile            = "env.json"
	SummaryFile        = "summary.json"
	ReportFile         = "report.md"
	BenchDir           = "bench"
)

// RunDir is an exclusively owned run directory <root>/<run_id>.
type RunDir struct {
	ID   string
	Path string
}

// CreateRunDir allocates a fresh run directory under root with a random
// UUID. The directory is created exclusively; a collision retries with a
// new id, up to ten attempts.
func CreateRunDir(root string) (*RunDir, error) {
	return createRunDir(root, uuid.NewString)
}

func createRunDir(root string, newID func() string) (*RunDir, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	for range createAttempts {
		id := newID()
		dir := filepath.Join(root, id)
		if err := os.Mkdir(dir, 0o755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return nil, fmt.Errorf("creating run dir: %w", err)
		}
		if err := os.Mkdir(filepath.Join(dir, BenchDir), 0o755); err != nil {
			return nil, fmt.Errorf("creating bench dir: %w", err)
		}
		rd := &RunDir{ID: id, Path: dir}
		rd.linkLatest(root)
		return rd, nil
	}
	return nil, fmt.Errorf("could not create a unique run directory after %d attempts", createAttempts)
}

// linkLatest points <root>/latest at the newest run. Failure is not fatal.
func (r *RunDir) linkLatest(root string) {
	latest := filepath.Join(root, "latest")
	os.Remove(latest)
	if err := os.Symlink(r.Path, latest); err != nil {
		slog.Warn("creating latest symlink", "path", latest, "err", err)
	}
}

func (r *RunDir) File(name string) string { return filepath.Join(r.Path, name) }

func (r *RunDir) BuildLog() string       { return r.File(BuildLogFile) }
func (r *RunDir) TestLog() string        { return r.File(TestLogFile) }
func (r *RunDir) ConfigSnapshot() string { return r.File(ConfigSnapshotFile) }
func (r *RunDir) Env() string            { return r.File(EnvFile) }
func (r *RunDir) Summary() string        { return r.File(SummaryFile) }
func (r *RunDir) Report() string         { return r.File(ReportFile) }
func (r *RunDir) Bench() string          { return r.File(BenchDir) }

// BenchFile names a per-invocation artifact, e.g. BenchFile("run", 1, "stdout.txt")
// is bench/run_001.stdout.txt.
func (r *RunDir) BenchFile(kind string, index int, suffix string) string {
	return filepath.Join(r.Bench(), fmt.Sprintf("%s_%03d.%s", kind, index, suffix))
}
