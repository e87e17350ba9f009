// Skill store. A skill is one SKILL.md per folder: a YAML front-matter
// block (name, description, enabled) followed by a free-form markdown body.

package store

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maruel/chatdb/internal/models"
)

const (
	skillFileName        = "SKILL.md"
	frontMatterDelimiter = "---"
)

type skillFrontMatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Enabled     bool   `yaml:"enabled"`
}

// SaveSkill writes the skill document and upserts the skills index.
func (s *Store) SaveSkill(sk *models.Skill) error {
	if sk.Name == "" {
		return errSkillNameRequired
	}
	data, err := formatSkill(sk)
	if err != nil {
		return err
	}
	if err := s.fs.WriteBlob(skillPath(sk.Name), data); err != nil {
		return err
	}
	return s.UpsertIndexEntry(CollectionSkills, models.IndexEntry{ID: sk.Name, Title: sk.Name, Updated: nowUTC()})
}

// LoadSkill reads and parses a skill document. A parse failure is logged
// and treated as not found; it never reaches the caller as an error.
func (s *Store) LoadSkill(name string) (*models.Skill, bool, error) {
	data, ok, err := s.fs.ReadBlob(skillPath(name))
	if err != nil || !ok {
		return nil, false, err
	}
	sk, err := parseSkill(data)
	if err != nil {
		slog.Warn("Discarding unparseable skill document", "skill", name, "err", err)
		return nil, false, nil
	}
	if sk.Name == "" {
		sk.Name = name
	}
	return sk, true, nil
}

// SetSkillEnabled toggles the enabled flag by rewriting the front matter
// only; the body bytes are preserved verbatim.
func (s *Store) SetSkillEnabled(name string, enabled bool) error {
	data, ok, err := s.fs.ReadBlob(skillPath(name))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	front, body, found := splitFrontMatter(string(data))
	if !found {
		return fmt.Errorf("skill %s has no front matter", name)
	}
	var meta skillFrontMatter
	if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
		return fmt.Errorf("failed to parse skill %s front matter: %w", name, err)
	}
	meta.Enabled = enabled
	out, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to serialize skill %s front matter: %w", name, err)
	}
	var sb strings.Builder
	sb.WriteString(frontMatterDelimiter + "\n")
	sb.Write(out)
	sb.WriteString(frontMatterDelimiter)
	sb.WriteString(body)
	return s.fs.WriteText(skillPath(name), sb.String())
}

// DeleteSkill removes the skill folder and its index entry.
func (s *Store) DeleteSkill(name string) error {
	if name == "" {
		return errSkillNameRequired
	}
	if err := s.fs.RemoveAll(entityDir(CollectionSkills, name)); err != nil {
		return err
	}
	return s.RemoveIndexEntry(CollectionSkills, name)
}

// ListSkillNames enumerates the skill folders, sorted.
func (s *Store) ListSkillNames() ([]string, error) {
	return s.fs.ListDirs(CollectionSkills)
}

// LoadAllSkills loads every parseable skill. Unparseable documents are
// skipped, not fatal.
func (s *Store) LoadAllSkills() ([]*models.Skill, error) {
	names, err := s.ListSkillNames()
	if err != nil {
		return nil, err
	}
	skills := make([]*models.Skill, 0, len(names))
	for _, name := range names {
		sk, ok, err := s.LoadSkill(name)
		if err != nil {
			return nil, err
		}
		if ok {
			skills = append(skills, sk)
		}
	}
	return skills, nil
}

func skillPath(name string) string {
	return path.Join(entityDir(CollectionSkills, name), skillFileName)
}

// formatSkill renders front matter plus body.
func formatSkill(sk *models.Skill) ([]byte, error) {
	meta := skillFrontMatter{Name: sk.Name, Description: sk.Description, Enabled: sk.Enabled}
	out, err := yaml.Marshal(&meta)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize skill front matter: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(frontMatterDelimiter + "\n")
	sb.Write(out)
	sb.WriteString(frontMatterDelimiter + "\n\n")
	sb.WriteString(sk.Body)
	return []byte(sb.String()), nil
}

// parseSkill splits the front matter from the body and decodes it.
func parseSkill(data []byte) (*models.Skill, error) {
	front, body, found := splitFrontMatter(string(data))
	if !found {
		return nil, fmt.Errorf("missing front-matter block")
	}
	var meta skillFrontMatter
	if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
		return nil, fmt.Errorf("front-matter parse error: %w", err)
	}
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")
	return &models.Skill{
		Name:        meta.Name,
		Description: meta.Description,
		Enabled:     meta.Enabled,
		Body:        body,
	}, nil
}

// splitFrontMatter returns the YAML block between the delimiters and the
// raw remainder starting at the newline after the closing delimiter. The
// remainder is kept verbatim so enablement toggles never touch the body.
func splitFrontMatter(content string) (front, rest string, found bool) {
	s := strings.TrimPrefix(content, "\uFEFF")
	if !strings.HasPrefix(s, frontMatterDelimiter+"\n") {
		return "", "", false
	}
	s = s[len(frontMatterDelimiter)+1:]
	idx := strings.Index(s, "\n"+frontMatterDelimiter)
	if idx == -1 {
		return "", "", false
	}
	return s[:idx+1], s[idx+1+len(frontMatterDelimiter):], true
}
