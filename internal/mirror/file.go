package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fightcard-backend/internal/engine"
	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

// FileMirror writes each card as <dir>/<slug>.json and, when Git is set,
// commits the file to the repository that contains dir.
type FileMirror struct {
	dir string
	git bool
	log *zap.Logger
	mu  sync.Mutex
}

func NewFileMirror(dir string, git bool, log *zap.Logger) (*FileMirror, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating mirror dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileMirror{dir: dir, git: git, log: log}, nil
}

func (m *FileMirror) path(slug string) string {
	return filepath.Join(m.dir, slug+".json")
}

func (m *FileMirror) Save(ctx context.Context, slug string, snap types.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.path(slug)
	tmp, err := os.CreateTemp(m.dir, slug+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", target, err)
	}

	if m.git {
		return m.commit(ctx, slug)
	}
	return nil
}

func (m *FileMirror) commit(ctx context.Context, slug string) error {
	name := filepath.Base(m.path(slug))
	if out, err := m.runGit(ctx, "add", "--", name); err != nil {
		return fmt.Errorf("git add: %w: %s", err, out)
	}
	out, err := m.runGit(ctx, "commit", "-m", "fightcard: update "+slug, "--", name)
	if err != nil {
		if strings.Contains(out, "nothing to commit") || strings.Contains(out, "no changes added") {
			return nil
		}
		return fmt.Errorf("git commit: %w: %s", err, out)
	}
	m.log.Debug("committed card snapshot", zap.String("slug", slug))
	return nil
}

func (m *FileMirror) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", m.dir}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

// Load also accepts the older {fights, current} file layout; absent fields
// take their defaults.
func (m *FileMirror) Load(_ context.Context, slug string) (types.Snapshot, bool, error) {
	data, err := os.ReadFile(m.path(slug))
	if errors.Is(err, os.ErrNotExist) {
		return types.Snapshot{}, false, nil
	}
	if err != nil {
		return types.Snapshot{}, false, fmt.Errorf("reading %s: %w", m.path(slug), err)
	}
	snap := engine.NewEmptyState()
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.Snapshot{}, false, fmt.Errorf("decoding %s: %w", m.path(slug), err)
	}
	return snap, true, nil
}
