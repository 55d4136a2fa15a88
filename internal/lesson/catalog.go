package lesson

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/roundy-world/lesson-server/internal/infrastructure/validate"
	"github.com/roundy-world/lesson-server/internal/sandbox"
	"gopkg.in/yaml.v3"
)

//go:embed lessons.yaml
var embeddedCatalog []byte

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Catalog read-only set of lessons ordered by id
type Catalog struct {
	lessons []*Lesson
	byID    map[int]*Lesson
}

type catalogFile struct {
	Lessons []*Lesson `yaml:"lessons"`
}

// LoadCatalog parse the catalog at path, or the embedded one when path is empty
func LoadCatalog(path string, defaultReward int, v validate.Validator) (*Catalog, error) {
	data := embeddedCatalog
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lesson catalog: %w", err)
		}
		data = content
	}
	return ParseCatalog(data, defaultReward, v)
}

// ParseCatalog decode and validate a YAML catalog, lessons without a reward get
// defaultReward
func ParseCatalog(data []byte, defaultReward int, v validate.Validator) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode lesson catalog: %w", err)
	}

	c := &Catalog{byID: make(map[int]*Lesson, len(file.Lessons))}
	for i, l := range file.Lessons {
		if l == nil {
			return nil, fmt.Errorf("lesson #%d is empty", i)
		}
		if errs := v.Struct(l); len(errs) > 0 {
			return nil, fmt.Errorf("lesson #%d: %w", i, errs)
		}
		if !identifierPattern.MatchString(l.EntryPointName) {
			return nil, fmt.Errorf("lesson %d: entry point %q is not an identifier", l.ID, l.EntryPointName)
		}
		if _, ok := c.byID[l.ID]; ok {
			return nil, fmt.Errorf("lesson %d is defined twice", l.ID)
		}
		if err := normalizeCases(l); err != nil {
			return nil, fmt.Errorf("lesson %d: %w", l.ID, err)
		}
		if l.Reward == 0 {
			l.Reward = defaultReward
		}
		c.byID[l.ID] = l
		c.lessons = append(c.lessons, l)
	}
	if _, ok := c.byID[FirstLessonID]; !ok {
		return nil, fmt.Errorf("lesson catalog must contain lesson %d", FirstLessonID)
	}

	sort.Slice(c.lessons, func(i, j int) bool { return c.lessons[i].ID < c.lessons[j].ID })
	return c, nil
}

func normalizeCases(l *Lesson) error {
	for i, tc := range l.TestCases {
		input, err := sandbox.Normalize(tc.Input)
		if err != nil {
			return fmt.Errorf("test case %d input: %w", i, err)
		}
		expected, err := sandbox.Normalize(tc.ExpectedOutput)
		if err != nil {
			return fmt.Errorf("test case %d expected output: %w", i, err)
		}
		if _, err := json.Marshal([]interface{}{input, expected}); err != nil {
			return fmt.Errorf("test case %d: %w", i, err)
		}
		tc.Input = input.([]interface{})
		tc.ExpectedOutput = expected
	}
	return nil
}

// Get lesson by id
func (c *Catalog) Get(id int) (*Lesson, bool) {
	l, ok := c.byID[id]
	return l, ok
}

// Next the lesson unlocked by completing id, 0 when id is the last of the chain
func (c *Catalog) Next(id int) int {
	if _, ok := c.byID[id+1]; ok {
		return id + 1
	}
	return 0
}

// All lessons ordered by id, callers must not modify them
func (c *Catalog) All() []*Lesson {
	return c.lessons
}

// Len number of lessons
func (c *Catalog) Len() int {
	return len(c.lessons)
}
