package main

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hivedhq/hived/internal/config"
	"github.com/hivedhq/hived/internal/memory"
	"github.com/hivedhq/hived/internal/vault"
	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the frame header every zstd stream starts with. An
// archive without it is assumed to be sealed with a passphrase.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

const passphraseEnv = "HIVED_VAULT_PASSPHRASE"

func runBackup(args []string) error {
	outputPath := ""
	for i := 0; i < len(args); i++ {
		if args[i] == "-f" {
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		}
	}
	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: hived backup -f <output.tar.zst>\n\nSet %s to encrypt the archive.\n", passphraseEnv)
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	bank, err := memory.New(cfg.Memory)
	if err != nil {
		return fmt.Errorf("open memory bank: %w", err)
	}
	defer bank.Close()

	snap, err := bank.ExportSnapshot()
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}

	out, err := writeSnapshotArchive(snap)
	if err != nil {
		return err
	}

	encrypted := false
	if passphrase := os.Getenv(passphraseEnv); passphrase != "" {
		out, err = vault.New(passphrase).Seal(out)
		if err != nil {
			return fmt.Errorf("seal archive: %w", err)
		}
		encrypted = true
	}

	if err := os.WriteFile(outputPath, out, 0o600); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	fmt.Printf("Backup complete: %d specifications, %d agents, %s", len(snap.Specifications), len(snap.Agents), formatSize(int64(len(out))))
	if encrypted {
		fmt.Print(" (encrypted)")
	}
	fmt.Println()
	return nil
}

func runRestore(args []string) error {
	inputPath := ""
	for i := 0; i < len(args); i++ {
		if args[i] == "-f" {
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			inputPath = args[i]
		}
	}
	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: hived restore -f <backup.tar.zst>\n")
		return fmt.Errorf("missing -f flag")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	if !bytes.HasPrefix(data, zstdMagic) {
		passphrase := os.Getenv(passphraseEnv)
		if passphrase == "" {
			return fmt.Errorf("archive is encrypted, set %s", passphraseEnv)
		}
		data, err = vault.New(passphrase).Open(data)
		if err != nil {
			return fmt.Errorf("open sealed archive: %w", err)
		}
	}

	snap, err := readSnapshotArchive(data)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	bank, err := memory.New(cfg.Memory)
	if err != nil {
		return fmt.Errorf("open memory bank: %w", err)
	}
	defer bank.Close()

	if err := bank.ImportSnapshot(snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	fmt.Printf("Restore complete: %d specifications, %d agents, %d results\n",
		len(snap.Specifications), len(snap.Agents), len(snap.Results))
	return nil
}

type snapshotEntry struct {
	name string
	v    any
}

type manifest struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

func snapshotEntries(snap *memory.Snapshot) []snapshotEntry {
	return []snapshotEntry{
		{"manifest.json", manifest{Version: snap.Version, CreatedAt: snap.CreatedAt}},
		{"specifications.json", snap.Specifications},
		{"execution_results.json", snap.Results},
		{"agents.json", snap.Agents},
		{"agent_interactions.json", snap.Interactions},
		{"task_executions.json", snap.TaskExecutions},
		{"decisions.json", snap.Decisions},
		{"patterns.json", snap.Patterns},
	}
}

func writeSnapshotArchive(snap *memory.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	for _, entry := range snapshotEntries(snap) {
		data, err := json.MarshalIndent(entry.v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", entry.name, err)
		}
		hdr := &tar.Header{
			Name:    entry.name,
			Mode:    0o600,
			Size:    int64(len(data)),
			ModTime: snap.CreatedAt,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, fmt.Errorf("write tar data: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zstd: %w", err)
	}
	return buf.Bytes(), nil
}

func readSnapshotArchive(data []byte) (*memory.Snapshot, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	files := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar entry: %w", err)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		files[hdr.Name] = content
	}

	var m manifest
	if raw, ok := files["manifest.json"]; ok {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	} else {
		return nil, fmt.Errorf("archive has no manifest")
	}

	snap := &memory.Snapshot{Version: m.Version, CreatedAt: m.CreatedAt}
	for name, dst := range map[string]any{
		"specifications.json":     &snap.Specifications,
		"execution_results.json":  &snap.Results,
		"agents.json":             &snap.Agents,
		"agent_interactions.json": &snap.Interactions,
		"task_executions.json":    &snap.TaskExecutions,
		"decisions.json":          &snap.Decisions,
		"patterns.json":           &snap.Patterns,
	} {
		raw, ok := files[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return snap, nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
