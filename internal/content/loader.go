package content

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// triggerFile is the on-disk shape of triggers.yaml.
type triggerFile struct {
	Triggers map[string][]string `yaml:"triggers"`
}

// responseFile is the on-disk shape of responses.yaml.
type responseFile struct {
	Responses map[string][]string `yaml:"responses"`
}

// questionFile is the on-disk shape of questions.yaml.
type questionFile struct {
	Weeks []weekEntry `yaml:"weeks"`
}

type weekEntry struct {
	Week      int             `yaml:"week"`
	Theme     string          `yaml:"theme"`
	Questions []questionEntry `yaml:"questions"`
}

type questionEntry struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Question string `yaml:"question"`
}

// Sources bundles the three content documents for [Load]. Any nil reader
// falls back to the embedded default for that document.
type Sources struct {
	Triggers  io.Reader
	Responses io.Reader
	Questions io.Reader
}

// LoadDefaults builds a [Library] from the content embedded in the binary.
func LoadDefaults() (*Library, error) {
	return Load(Sources{})
}

// LoadDir builds a [Library] from triggers.yaml, responses.yaml, and
// questions.yaml found under dir. Files that do not exist fall back to the
// embedded defaults, so a deployment can override just one document.
func LoadDir(dir string) (*Library, error) {
	var src Sources
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	open := func(name string) (io.Reader, error) {
		f, err := os.Open(dir + "/" + name)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("content: open %s/%s: %w", dir, name, err)
		}
		closers = append(closers, f)
		return f, nil
	}

	var err error
	if src.Triggers, err = open("triggers.yaml"); err != nil {
		return nil, err
	}
	if src.Responses, err = open("responses.yaml"); err != nil {
		return nil, err
	}
	if src.Questions, err = open("questions.yaml"); err != nil {
		return nil, err
	}
	return Load(src)
}

// Load decodes and validates the three content documents and assembles an
// immutable [Library]. Any validation failure is returned as a joined error
// listing every problem found; the process is expected to refuse to start
// on error rather than run with partial content.
func Load(src Sources) (*Library, error) {
	var tf triggerFile
	if err := decodeStrict(orDefault(src.Triggers, defaultTriggers), &tf); err != nil {
		return nil, fmt.Errorf("content: decode triggers: %w", err)
	}
	var rf responseFile
	if err := decodeStrict(orDefault(src.Responses, defaultResponses), &rf); err != nil {
		return nil, fmt.Errorf("content: decode responses: %w", err)
	}
	var qf questionFile
	if err := decodeStrict(orDefault(src.Questions, defaultQuestions), &qf); err != nil {
		return nil, fmt.Errorf("content: decode questions: %w", err)
	}

	lib := &Library{
		triggers:  make(map[Intent][]string, len(tf.Triggers)),
		responses: make(map[ResponseCategory][]string, len(rf.Responses)),
	}

	var errs []error

	// Trigger sets: every category recognised, every phrase unique after
	// normalization within its category, no empty phrases.
	for cat, phrases := range tf.Triggers {
		in := Intent(cat)
		if !in.IsValid() {
			errs = append(errs, fmt.Errorf("triggers: unknown category %q", cat))
			continue
		}
		seen := make(map[string]string, len(phrases))
		for i, p := range phrases {
			norm := Normalize(p)
			if norm == "" {
				errs = append(errs, fmt.Errorf("triggers.%s[%d]: phrase %q is empty after normalization", cat, i, p))
				continue
			}
			if prev, dup := seen[norm]; dup {
				errs = append(errs, fmt.Errorf("triggers.%s[%d]: phrase %q duplicates %q", cat, i, p, prev))
				continue
			}
			seen[norm] = p
		}
		lib.triggers[in] = phrases
	}
	for _, in := range Intents {
		if len(lib.triggers[in]) == 0 {
			errs = append(errs, fmt.Errorf("triggers: category %q has no phrases", in))
		}
	}

	// Response banks: every required category present and non-empty.
	for cat, variants := range rf.Responses {
		lib.responses[ResponseCategory(cat)] = variants
	}
	for _, rc := range ResponseCategories {
		if len(lib.responses[rc]) == 0 {
			errs = append(errs, fmt.Errorf("responses: category %q has no variants", rc))
		}
	}

	// Question bank: weeks dense from 1, each week exactly the six distinct
	// type tags, ids unique bank-wide, question text non-empty.
	sort.SliceStable(qf.Weeks, func(i, j int) bool { return qf.Weeks[i].Week < qf.Weeks[j].Week })
	ids := make(map[string]int, len(qf.Weeks)*6)
	for i, we := range qf.Weeks {
		if we.Week != i+1 {
			errs = append(errs, fmt.Errorf("questions: expected week %d, found week %d (weeks must be dense from 1)", i+1, we.Week))
		}
		if we.Theme == "" {
			errs = append(errs, fmt.Errorf("questions: week %d has no theme", we.Week))
		}

		week := Week{Number: we.Week, Theme: we.Theme}
		byType := make(map[QuestionType]Question, 6)
		for j, qe := range we.Questions {
			qt := QuestionType(qe.Type)
			if !qt.IsValid() {
				errs = append(errs, fmt.Errorf("questions: week %d question %d: unknown type %q", we.Week, j, qe.Type))
				continue
			}
			if qe.ID == "" || qe.Question == "" {
				errs = append(errs, fmt.Errorf("questions: week %d question %d: id and question text are required", we.Week, j))
				continue
			}
			if prev, dup := ids[qe.ID]; dup {
				errs = append(errs, fmt.Errorf("questions: week %d: id %q already used in week %d", we.Week, qe.ID, prev))
				continue
			}
			ids[qe.ID] = we.Week
			if _, dup := byType[qt]; dup {
				errs = append(errs, fmt.Errorf("questions: week %d: duplicate type %q", we.Week, qt))
				continue
			}
			byType[qt] = Question{
				ID:    qe.ID,
				Week:  we.Week,
				Theme: we.Theme,
				Type:  qt,
				Text:  qe.Question,
			}
		}

		// Present questions in the fixed posing order.
		for _, qt := range QuestionTypeOrder {
			q, ok := byType[qt]
			if !ok {
				errs = append(errs, fmt.Errorf("questions: week %d is missing a %q question", we.Week, qt))
				continue
			}
			week.Questions = append(week.Questions, q)
		}
		lib.weeks = append(lib.weeks, week)
	}
	if len(lib.weeks) == 0 {
		errs = append(errs, errors.New("questions: bank is empty"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("content: validation failed: %w", err)
	}
	return lib, nil
}

// decodeStrict decodes YAML rejecting unknown fields to catch typos early.
func decodeStrict(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	return dec.Decode(out)
}

func orDefault(r io.Reader, embedded string) io.Reader {
	if r != nil {
		return r
	}
	return strings.NewReader(embedded)
}
