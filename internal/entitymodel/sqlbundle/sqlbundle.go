// Package sqlbundle exposes the benchmark schema DDL bundles for the SQL stores.
package sqlbundle

import (
	"bufio"
	"regexp"
	"strings"

	sqldocs "spectrabench/docs/schema/sql"
)

// Names of the indexes every bundle declares.
const (
	IndexExperimentsNetwork   = "idx_experiments_network"
	IndexExperimentsAlgorithm = "idx_experiments_algorithm"
	IndexExperimentsDatetime  = "idx_experiments_datetime"
	IndexNetworksSize         = "idx_networks_size"
	IndexAlgorithmsCategory   = "idx_algorithms_category"
)

// PerformanceView is the name of the derived per-(network, algorithm) summary view.
const PerformanceView = "algorithm_performance"

// Tables lists the base tables in dependency order.
var Tables = []string{"networks", "algorithms", "system_configs", "experiments", "visualizations"}

// Indexes lists the secondary indexes declared by the bundles.
var Indexes = []string{
	IndexExperimentsNetwork,
	IndexExperimentsAlgorithm,
	IndexExperimentsDatetime,
	IndexNetworksSize,
	IndexAlgorithmsCategory,
}

// SQLite returns the SQLite DDL for the benchmark schema.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres DDL for the benchmark schema.
func Postgres() string {
	return sqldocs.Postgres
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}

var indexDecl = regexp.MustCompile(`(?i)^CREATE\s+INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?(\w+)`)

// WithoutIndexes returns the statements of ddl minus every CREATE INDEX.
// Stores built from the result must answer queries identically to stores
// built from the full bundle.
func WithoutIndexes(ddl string) []string {
	var out []string
	for _, stmt := range SplitStatements(ddl) {
		if indexDecl.MatchString(stmt) {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// DeclaredIndexes returns the index names created by ddl in declaration order.
func DeclaredIndexes(ddl string) []string {
	var out []string
	for _, stmt := range SplitStatements(ddl) {
		if m := indexDecl.FindStringSubmatch(stmt); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}
