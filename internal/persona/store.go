// Package persona is the single disk chokepoint spec §9 calls for: every
// layer re-reads persona/social documents fresh on every LLM call (so edits
// land live), but the truncation rule of spec §4.5 must be enforced exactly
// once rather than duplicated across callers. Grounded on the teacher's
// reload-every-call pattern in pkg/llm/history.go and pkg/config/config.go,
// generalized into one Store instead of three ad hoc file readers.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"roomkeeper/internal/config"
)

// Store reads and writes every on-disk document named in spec §6, rooted at
// one per-assistant workspace directory.
type Store struct {
	root string
	sys  *config.SystemConfig

	// writeMu serializes writes per path so two tools never interleave a
	// write to the same document (spec §5: "written by exactly one actor
	// at a time in practice because the built-in tool executor serializes
	// writes per path").
	writeMu sync.Mutex
}

func New(root string, sys *config.SystemConfig) *Store {
	return &Store{root: root, sys: sys}
}

func (s *Store) path(parts ...string) string {
	return filepath.Join(append([]string{s.root}, parts...)...)
}

// Truncate applies the single truncation rule of spec §4.5: when content
// exceeds maxChars, keep headPct of maxChars from the start and tailPct of
// maxChars from the end, joined by an elision marker.
func Truncate(content string, maxChars int, headPct, tailPct float64) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	head := int(float64(maxChars) * headPct)
	tail := int(float64(maxChars) * tailPct)
	if head+tail >= len(content) {
		return content
	}
	return content[:head] + "\n...[truncated]...\n" + content[len(content)-tail:]
}

func (s *Store) truncate(content string, maxChars int) string {
	return Truncate(content, maxChars, s.sys.PersonaTruncateHeadPct, s.sys.PersonaTruncateTailPct)
}

// readDoc is the chokepoint every other read method funnels through: missing
// files read as "", and the result is always passed through the truncation
// rule once.
func (s *Store) readDoc(relPath string, maxChars int) (string, error) {
	raw, err := os.ReadFile(s.path(relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("persona: read %s: %w", relPath, err)
	}
	return s.truncate(string(raw), maxChars), nil
}

func (s *Store) writeDoc(relPath, content string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	full := s.path(relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("persona: mkdir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("persona: write %s: %w", relPath, err)
	}
	return nil
}

// Soul, User, Memory read the three persona documents (spec §6), each
// truncated per the persona max-chars limit.
func (s *Store) Soul() (string, error) { return s.readDoc("SOUL.md", s.sys.PersonaMaxChars) }
func (s *Store) User() (string, error) { return s.readDoc("USER.md", s.sys.PersonaMaxChars) }
func (s *Store) Memory() (string, error) { return s.readDoc("MEMORY.md", s.sys.PersonaMaxChars) }

func (s *Store) WriteMemory(content string) error { return s.writeDoc("MEMORY.md", content) }

// SocialMemory reads/writes the cross-group agent notes document.
func (s *Store) SocialMemory() (string, error) {
	return s.readDoc(filepath.Join("social", "SOCIAL_MEMORY.md"), s.sys.PersonaMaxChars)
}

func (s *Store) WriteSocialMemory(content string) error {
	return s.writeDoc(filepath.Join("social", "SOCIAL_MEMORY.md"), content)
}

func groupRulePath(targetID string) string {
	return filepath.Join("social", fmt.Sprintf("GROUP_RULE_%s.md", targetID))
}

// GroupRule reads the per-target rule document (max 10 000 chars, spec §6).
func (s *Store) GroupRule(targetID string) (string, error) {
	return s.readDoc(groupRulePath(targetID), s.sys.GroupRuleMaxChars)
}

func (s *Store) WriteGroupRule(targetID, content string) error {
	if len(content) > s.sys.GroupRuleMaxChars {
		content = content[:s.sys.GroupRuleMaxChars]
	}
	return s.writeDoc(groupRulePath(targetID), content)
}

const defaultReplyStrategy = `Reply only when you have something genuinely new to add. Prefer silence ([沉默]) over restating a point already made in this conversation unless directly addressed again.`

// ReplyStrategy reads the tunable reply-policy document, injecting a
// built-in default when absent (spec §6).
func (s *Store) ReplyStrategy() (string, error) {
	content, err := s.readDoc(filepath.Join("social", "REPLY_STRATEGY.md"), s.sys.ReplyStrategyMaxChars)
	if err != nil {
		return "", err
	}
	if content == "" {
		return defaultReplyStrategy, nil
	}
	return content, nil
}

func (s *Store) WriteReplyStrategy(content string) error {
	if len(content) > s.sys.ReplyStrategyMaxChars {
		content = content[:s.sys.ReplyStrategyMaxChars]
	}
	return s.writeDoc(filepath.Join("social", "REPLY_STRATEGY.md"), content)
}

func groupBufferPath(targetID string) string {
	return filepath.Join("social", fmt.Sprintf("GROUP_%s.md", targetID))
}

// GroupBufferRaw reads a target's raw rolling-summary archive, unfiltered
// and untruncated — the daily-compression job needs the exact byte content
// to split on "## <date>" sections (spec §4.6).
func (s *Store) GroupBufferRaw(targetID string) (string, error) {
	raw, err := os.ReadFile(s.path(groupBufferPath(targetID)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("persona: read group buffer %s: %w", targetID, err)
	}
	return string(raw), nil
}

// AppendGroupBufferSection appends a "## <ISO8601>" section (spec §6's wire
// format for this file) to the target's archive.
func (s *Store) AppendGroupBufferSection(targetID, isoTimestamp, body string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	full := s.path(groupBufferPath(targetID))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("persona: append group buffer %s: %w", targetID, err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "\n## %s\n\n%s\n", isoTimestamp, body)
	return err
}

// WriteGroupBufferRaw overwrites a target's archive wholesale, used by the
// compression job after stripping completed past-date sections.
func (s *Store) WriteGroupBufferRaw(targetID, content string) error {
	return s.writeDoc(groupBufferPath(targetID), content)
}

func dailyDigestPath(date string) string {
	return filepath.Join("social", fmt.Sprintf("DAILY_%s.md", date))
}

func (s *Store) WriteDailyDigest(date, content string) error {
	return s.writeDoc(dailyDigestPath(date), content)
}

func (s *Store) DailyDigest(date string) (string, error) {
	return s.readDoc(dailyDigestPath(date), 0)
}

// KnownTarget is one entry of the persisted targets.json list (spec §6).
type KnownTarget struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

const knownTargetsPath = "social/targets.json"

// KnownTargets reads the persisted target list, accepting the legacy bare
// string-array format on read (spec §3/§6).
func (s *Store) KnownTargets() ([]KnownTarget, error) {
	raw, err := os.ReadFile(s.path(knownTargetsPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persona: read known targets: %w", err)
	}

	var targets []KnownTarget
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &targets); err == nil {
		return targets, nil
	}

	var legacy []string
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &legacy); err != nil {
		return nil, nil // structural parse failure => "document absent" per spec §7
	}
	targets = make([]KnownTarget, 0, len(legacy))
	for _, id := range legacy {
		targets = append(targets, KnownTarget{ID: id})
	}
	return targets, nil
}

func (s *Store) WriteKnownTargets(targets []KnownTarget) error {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(targets, "", "  ")
	if err != nil {
		return fmt.Errorf("persona: marshal known targets: %w", err)
	}
	return s.writeDoc(knownTargetsPath, string(raw))
}

// CompressMeta is the `{ lastCompressTime: ISO8601 }` document of spec §6.
type CompressMeta struct {
	LastCompressTime string `json:"lastCompressTime"`
}

const compressMetaPath = "social/compress_meta.json"

func (s *Store) CompressMeta() (CompressMeta, error) {
	raw, err := os.ReadFile(s.path(compressMetaPath))
	if err != nil {
		return CompressMeta{}, nil
	}
	var meta CompressMeta
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &meta); err != nil {
		return CompressMeta{}, nil
	}
	return meta, nil
}

func (s *Store) WriteCompressMeta(meta CompressMeta) error {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(meta)
	if err != nil {
		return fmt.Errorf("persona: marshal compress meta: %w", err)
	}
	return s.writeDoc(compressMetaPath, string(raw))
}
