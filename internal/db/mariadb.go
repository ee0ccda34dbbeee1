package db

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tailfold/snapsync/internal/config"
	"github.com/tailfold/snapsync/internal/util"
)

const (
	binClient = "mariadb"
	binDump   = "mariadb-dump"
	binAdmin  = "mariadb-admin"
)

// MariaDB drives the mariadb client binaries. Arguments are structured
// lists and the password travels via MYSQL_PWD, never through a shell.
type MariaDB struct {
	cfg config.DatabaseConfig
}

func NewMariaDB(cfg config.DatabaseConfig) (*MariaDB, error) {
	for _, bin := range []string{binClient, binDump, binAdmin} {
		if err := util.RequireBinary(bin); err != nil {
			return nil, err
		}
	}
	return &MariaDB{cfg: cfg}, nil
}

func (m *MariaDB) connArgs() []string {
	args := []string{"-h", m.cfg.Host, "-u", m.cfg.Username}
	if m.cfg.ConnectionTimeout > 0 {
		args = append(args, fmt.Sprintf("--connect-timeout=%d", int(m.cfg.ConnectionTimeout.Seconds())))
	}
	return args
}

func (m *MariaDB) env() map[string]string {
	if m.cfg.Password == "" {
		return nil
	}
	return map[string]string{"MYSQL_PWD": m.cfg.Password}
}

func (m *MariaDB) ListDatabases(ctx context.Context) ([]string, error) {
	args := append(m.connArgs(), "-sN", "-e", "SHOW DATABASES")
	cmd := util.Command(ctx, binClient, args, m.env())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, toolErr(binClient, "show databases", err, stderr.Bytes())
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *MariaDB) Dump(ctx context.Context, name, dest string) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	args := append(m.connArgs(),
		"--complete-insert", "--routines", "--triggers", "--single-transaction",
		name)
	cmd := util.Command(ctx, binDump, args, m.env())
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return toolErr(binDump, "dump "+name, err, stderr.Bytes())
	}
	return out.Close()
}

func (m *MariaDB) Drop(ctx context.Context, name string) error {
	args := append(m.connArgs(), "-s", "-f", "drop", name)
	cmd := util.Command(ctx, binAdmin, args, m.env())
	out, err := cmd.CombinedOutput()
	if err != nil {
		if databaseAbsent(out) {
			return nil
		}
		return toolErr(binAdmin, "drop "+name, err, out)
	}
	return nil
}

func (m *MariaDB) Create(ctx context.Context, name string) error {
	args := append(m.connArgs(), "-s", "-f", "create", name)
	cmd := util.Command(ctx, binAdmin, args, m.env())
	if out, err := cmd.CombinedOutput(); err != nil {
		return toolErr(binAdmin, "create "+name, err, out)
	}
	return nil
}

func (m *MariaDB) Load(ctx context.Context, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	args := append(m.connArgs(), "-D", name)
	cmd := util.Command(ctx, binClient, args, m.env())
	cmd.Stdin = in
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return toolErr(binClient, "load "+name, err, stderr.Bytes())
	}
	return nil
}

func databaseAbsent(output []byte) bool {
	text := strings.ToLower(string(output))
	return strings.Contains(text, "doesn't exist") ||
		strings.Contains(text, "does not exist") ||
		strings.Contains(text, "unknown database")
}

func toolErr(tool, step string, err error, output []byte) error {
	detail := strings.TrimSpace(string(output))
	if detail == "" {
		return fmt.Errorf("%s %s: %w", tool, step, err)
	}
	return fmt.Errorf("%s %s: %w: %s", tool, step, err, detail)
}

var _ Client = (*MariaDB)(nil)
