package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// EngineKind is the closed enumeration of §3.4.
type EngineKind string

const (
	EngineMergeTree           EngineKind = "MergeTree"
	EngineReplacingMergeTree  EngineKind = "ReplacingMergeTree"
	EngineAggregatingMergeTree EngineKind = "AggregatingMergeTree"
	EngineSummingMergeTree    EngineKind = "SummingMergeTree"
	EngineS3Queue             EngineKind = "S3Queue"
	// EngineUnknown covers engines not in the closed set (e.g. Buffer,
	// Distributed). The diff engine treats these as not supporting
	// ORDER BY, per §3.4.
	EngineUnknown EngineKind = "Unknown"
)

// Engine is the tagged representation of §3.4.
type Engine struct {
	Kind EngineKind

	// ReplacingMergeTree
	Ver        string // optional column expression
	IsDeleted  string // optional column expression

	// S3Queue
	S3Path      string
	Format      string
	Compression string
	Headers     map[string]string
	AWSKey      string
	AWSSecret   string

	// Unknown
	RawName string

	// Settings are alterable table settings (ALTER TABLE MODIFY
	// SETTING), never part of the non-alterable hash.
	Settings map[string]string
}

// SupportsOrderBy reports whether this engine variant accepts an
// ORDER BY clause. True for all MergeTree-family engines and S3Queue;
// false for anything unmodeled (Buffer, Distributed, ...).
func (e *Engine) SupportsOrderBy() bool {
	switch e.Kind {
	case EngineMergeTree, EngineReplacingMergeTree, EngineAggregatingMergeTree, EngineSummingMergeTree, EngineS3Queue:
		return true
	default:
		return false
	}
}

// Validate enforces: ReplacingMergeTree requires a non-empty order_by
// on the owning table; that check lives in Table.Validate since
// Engine alone doesn't know the table's order_by.
func (e *Engine) Validate() error {
	if e.Kind == "" {
		return fmt.Errorf("engine: missing kind")
	}
	return nil
}

// RenderSQL renders the canonical SQL engine clause, including
// credentials when applicable (live DDL needs real credentials; the
// infrastructure map never persists them — see §9 "Credentials-in-wire").
func (e *Engine) RenderSQL() string {
	switch e.Kind {
	case EngineMergeTree:
		return "MergeTree"
	case EngineReplacingMergeTree:
		if e.Ver == "" && e.IsDeleted == "" {
			return "ReplacingMergeTree"
		}
		parts := []string{}
		if e.Ver != "" {
			parts = append(parts, e.Ver)
		}
		if e.IsDeleted != "" {
			parts = append(parts, e.IsDeleted)
		}
		return fmt.Sprintf("ReplacingMergeTree(%s)", strings.Join(parts, ", "))
	case EngineAggregatingMergeTree:
		return "AggregatingMergeTree"
	case EngineSummingMergeTree:
		return "SummingMergeTree"
	case EngineS3Queue:
		args := []string{quoteSingle(e.S3Path)}
		if e.AWSKey != "" || e.AWSSecret != "" {
			args = append(args, quoteSingle(e.AWSKey), quoteSingle(e.AWSSecret))
		} else if e.Headers["NOSIGN"] == "true" {
			args = append(args, "NOSIGN")
		}
		args = append(args, quoteSingle(e.Format))
		if e.Compression != "" {
			args = append(args, quoteSingle(e.Compression))
		}
		return fmt.Sprintf("S3Queue(%s)", strings.Join(args, ", "))
	default:
		return e.RawName
	}
}

// ToProtoString renders a stable, credential-stripped form suitable
// for the infrastructure map's wire representation. Credential
// positions are replaced with "[HIDDEN]" the same way the live
// database's own introspection does, so round-tripping an
// introspected engine never re-exposes a secret.
func (e *Engine) ToProtoString() string {
	if e.Kind != EngineS3Queue {
		return e.RenderSQL()
	}
	args := []string{quoteSingle(e.S3Path)}
	switch {
	case e.AWSKey != "" || e.AWSSecret != "":
		args = append(args, "[HIDDEN]", "[HIDDEN]")
	case e.Headers["NOSIGN"] == "true":
		args = append(args, "NOSIGN")
	}
	args = append(args, quoteSingle(e.Format))
	if e.Compression != "" {
		args = append(args, quoteSingle(e.Compression))
	}
	return fmt.Sprintf("S3Queue(%s)", strings.Join(args, ", "))
}

// nonAlterableEncoding returns the deterministic, ordered byte
// encoding of the engine's non-alterable parameters: everything
// except Settings. Credentials are encoded exactly as stored (the
// hash is for change detection only, never authentication, per §4.1).
func (e *Engine) nonAlterableEncoding(database string) []byte {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteByte(0)
	b.WriteString(database)
	b.WriteByte(0)
	switch e.Kind {
	case EngineReplacingMergeTree:
		b.WriteString(e.Ver)
		b.WriteByte(0)
		b.WriteString(e.IsDeleted)
	case EngineS3Queue:
		b.WriteString(e.S3Path)
		b.WriteByte(0)
		b.WriteString(e.Format)
		b.WriteByte(0)
		b.WriteString(e.Compression)
		b.WriteByte(0)
		b.WriteString(e.AWSKey)
		b.WriteByte(0)
		b.WriteString(e.AWSSecret)
		b.WriteByte(0)
		keys := make([]string, 0, len(e.Headers))
		for k := range e.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(e.Headers[k])
			b.WriteByte(0)
		}
	default:
		b.WriteString(e.RawName)
	}
	return []byte(b.String())
}

// Hash computes the SHA-256 over an ordered, deterministic encoding
// of the engine's non-alterable parameters plus the owning table's
// database, per §4.1. Used only for change detection, never
// authentication.
func (e *Engine) Hash(database string) string {
	sum := sha256.Sum256(e.nonAlterableEncoding(database))
	return hex.EncodeToString(sum[:])
}

var s3QueueArgsRe = regexp.MustCompile(`^S3Queue\((.*)\)$`)

// TryParseEngine accepts the forms emitted by the live database's
// schema introspection: Shared.../Replicated... prefixes are
// stripped, and the comma-quoted S3Queue parameter list is parsed
// tolerating single-quoted values with backslash-escaped quotes and
// the literal NOSIGN / credential-between-path-and-format dialects,
// per §4.1.
func TryParseEngine(s string) (*Engine, error) {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Shared", "Replicated"} {
		if strings.HasPrefix(s, prefix) {
			rest := strings.TrimPrefix(s, prefix)
			// ReplicatedMergeTree('/path','{replica}') style params are
			// replication wiring, not engine-identity; strip them.
			if idx := strings.Index(rest, "("); idx >= 0 {
				name := rest[:idx]
				if isKnownKind(name) {
					s = name
				} else {
					s = rest
				}
			} else {
				s = rest
			}
		}
	}

	switch {
	case s == "MergeTree" || strings.HasPrefix(s, "MergeTree("):
		return &Engine{Kind: EngineMergeTree}, nil
	case strings.HasPrefix(s, "AggregatingMergeTree"):
		return &Engine{Kind: EngineAggregatingMergeTree}, nil
	case strings.HasPrefix(s, "SummingMergeTree"):
		return &Engine{Kind: EngineSummingMergeTree}, nil
	case strings.HasPrefix(s, "ReplacingMergeTree"):
		e := &Engine{Kind: EngineReplacingMergeTree}
		inner := extractParens(s)
		if inner != "" {
			parts := splitTopLevelComma(inner)
			if len(parts) >= 1 {
				e.Ver = strings.TrimSpace(parts[0])
			}
			if len(parts) >= 2 {
				e.IsDeleted = strings.TrimSpace(parts[1])
			}
		}
		return e, nil
	case strings.HasPrefix(s, "S3Queue"):
		m := s3QueueArgsRe.FindStringSubmatch(s)
		if m == nil {
			return nil, fmt.Errorf("malformed S3Queue engine string: %q", s)
		}
		parts := splitTopLevelComma(m[1])
		e := &Engine{Kind: EngineS3Queue, Headers: map[string]string{}}
		if len(parts) == 0 {
			return nil, fmt.Errorf("S3Queue requires at least a path")
		}
		e.S3Path = unquoteSingle(parts[0])
		rest := parts[1:]
		switch {
		case len(rest) >= 3:
			// path, key, secret, format[, compression]
			if strings.EqualFold(strings.TrimSpace(rest[0]), "NOSIGN") {
				e.Headers["NOSIGN"] = "true"
				rest = rest[1:]
			} else {
				e.AWSKey = nullableUnquote(rest[0])
				e.AWSSecret = nullableUnquote(rest[1])
				rest = rest[2:]
			}
			if len(rest) >= 1 {
				e.Format = unquoteSingle(rest[0])
			}
			if len(rest) >= 2 {
				e.Compression = unquoteSingle(rest[1])
			}
		case len(rest) >= 1 && strings.EqualFold(strings.TrimSpace(rest[0]), "NOSIGN"):
			e.Headers["NOSIGN"] = "true"
			if len(rest) >= 2 {
				e.Format = unquoteSingle(rest[1])
			}
			if len(rest) >= 3 {
				e.Compression = unquoteSingle(rest[2])
			}
		default:
			// public bucket, no credentials: path, format[, compression]
			if len(rest) >= 1 {
				e.Format = unquoteSingle(rest[0])
			}
			if len(rest) >= 2 {
				e.Compression = unquoteSingle(rest[1])
			}
		}
		return e, nil
	default:
		return &Engine{Kind: EngineUnknown, RawName: s}, nil
	}
}

func isKnownKind(s string) bool {
	switch s {
	case "MergeTree", "ReplacingMergeTree", "AggregatingMergeTree", "SummingMergeTree", "S3Queue":
		return true
	}
	return false
}

func extractParens(s string) string {
	start := strings.Index(s, "(")
	end := strings.LastIndex(s, ")")
	if start < 0 || end <= start {
		return ""
	}
	return s[start+1 : end]
}

// splitTopLevelComma splits on commas not inside single-quoted strings.
func splitTopLevelComma(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == '\'':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ',' && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if strings.TrimSpace(cur.String()) != "" || len(out) > 0 {
		out = append(out, cur.String())
	}
	return out
}

func unquoteSingle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = s[1 : len(s)-1]
		s = strings.ReplaceAll(s, `\'`, `'`)
	}
	return s
}

func nullableUnquote(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return unquoteSingle(s)
}

func quoteSingle(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// formatU8 renders an enum member integer value; kept separate so the
// DDL renderer and the hash encoder agree on formatting.
func formatU8(v int) string {
	return strconv.Itoa(v)
}
